// Package userconfig keeps per-user CLI defaults in ~/.config/sitecms/config.json.
package userconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// UserConfig holds the defaults remembered between CLI runs
type UserConfig struct {
	APIURL       string `json:"api_url,omitempty"`
	DashboardURL string `json:"dashboard_url,omitempty"`
	LastEmail    string `json:"last_email,omitempty"`
}

// Path returns the location of the config file
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".config", "sitecms", "config.json"), nil
}

// Load reads the config file. A missing file yields an empty config.
func Load() (*UserConfig, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &UserConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user config file: %w", err)
	}

	cfg := &UserConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse user config file %s: %w", path, err)
	}
	return cfg, nil
}

// Save replaces the config file. The file is written next to the target and
// renamed so a crash never leaves a truncated config behind.
func Save(cfg *UserConfig) error {
	path, err := Path()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal user config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("failed to write user config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write user config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write user config file: %w", err)
	}
	// CreateTemp already uses 0600
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write user config file: %w", err)
	}
	return nil
}

// Update loads the config, applies fn and saves the result
func Update(fn func(cfg *UserConfig)) error {
	cfg, err := Load()
	if err != nil {
		return err
	}

	fn(cfg)
	return Save(cfg)
}
