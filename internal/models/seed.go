package models

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// Seed describes initial content loaded into an empty database
type Seed struct {
	Admin       *SeedAdmin       `yaml:"admin"`
	Company     map[string]any   `yaml:"company"`
	HeroBanners []map[string]any `yaml:"hero_banners"`
	Products    []map[string]any `yaml:"products"`
	Services    []map[string]any `yaml:"services"`
	Team        []map[string]any `yaml:"team"`
	News        []map[string]any `yaml:"news"`
}

// SeedAdmin is the first administrator account
type SeedAdmin struct {
	Email    string `yaml:"email"`
	Username string `yaml:"username"`
	FullName string `yaml:"full_name"`
	Password string `yaml:"password"`
}

// LoadSeed reads a YAML seed file
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes YAML seed data
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if seed.Admin != nil && (seed.Admin.Email == "" || seed.Admin.Password == "") {
		return nil, fmt.Errorf("seed admin requires email and password")
	}
	return &seed, nil
}

// SeedResult counts rows inserted per table
type SeedResult map[string]int

// ApplySeed inserts seed rows into tables that are still empty. hash turns
// the admin's plain password into a stored hash.
func ApplySeed(db *gorm.DB, seed *Seed, hash func(string) (string, error)) (SeedResult, error) {
	result := SeedResult{}

	err := db.Transaction(func(tx *gorm.DB) error {
		if seed.Admin != nil {
			var count int64
			if err := tx.Model(&User{}).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				passwordHash, err := hash(seed.Admin.Password)
				if err != nil {
					return fmt.Errorf("failed to hash admin password: %w", err)
				}
				username := seed.Admin.Username
				if username == "" {
					username = seed.Admin.Email
				}
				admin := &User{
					Email:        seed.Admin.Email,
					Username:     username,
					FullName:     seed.Admin.FullName,
					PasswordHash: passwordHash,
					Role:         RoleAdmin,
					IsActive:     true,
				}
				if err := tx.Create(admin).Error; err != nil {
					return fmt.Errorf("failed to create admin: %w", err)
				}
				result["users"] = 1
			}
		}

		if seed.Company != nil {
			n, err := seedRows(tx, []map[string]any{seed.Company}, func() any { return &Company{} }, &Company{})
			if err != nil {
				return fmt.Errorf("company: %w", err)
			}
			if n > 0 {
				result["company"] = n
			}
		}

		tables := []struct {
			name  string
			rows  []map[string]any
			newFn func() any
			model any
		}{
			{"hero_banners", seed.HeroBanners, func() any { return &HeroBanner{IsActive: true} }, &HeroBanner{}},
			{"products", seed.Products, func() any { return &Product{IsActive: true} }, &Product{}},
			{"services", seed.Services, func() any { return &Service{IsActive: true} }, &Service{}},
			{"team_members", seed.Team, func() any { return &TeamMember{IsActive: true} }, &TeamMember{}},
			{"news", seed.News, func() any { return &News{Category: NewsCategoryGeneral} }, &News{}},
		}
		for _, table := range tables {
			n, err := seedRows(tx, table.rows, table.newFn, table.model)
			if err != nil {
				return fmt.Errorf("%s: %w", table.name, err)
			}
			if n > 0 {
				result[table.name] = n
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func seedRows(tx *gorm.DB, rows []map[string]any, newFn func() any, model any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	var count int64
	if err := tx.Model(model).Count(&count).Error; err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	for _, row := range rows {
		raw, err := json.Marshal(row)
		if err != nil {
			return 0, err
		}
		record := newFn()
		if err := json.Unmarshal(raw, record); err != nil {
			return 0, err
		}
		if news, ok := record.(*News); ok {
			if news.Slug == "" {
				news.Slug = Slugify(news.Title)
			}
			if news.IsPublished && news.PublishedAt == nil {
				now := time.Now().UTC()
				news.PublishedAt = &now
			}
		}
		if err := tx.Create(record).Error; err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}
