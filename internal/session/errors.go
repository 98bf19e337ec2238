package session

import (
	"context"
	"errors"
	"fmt"
)

// Authentication failure kinds. Backends report one of these so callers can
// tell an inline form error from a retryable failure or a lost session.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNetworkFailure     = errors.New("network failure")
	ErrSessionExpired     = errors.New("session expired")
)

var (
	// ErrSuperseded is returned by a login whose result was discarded because a
	// newer login or logout was issued before it resolved.
	ErrSuperseded = errors.New("superseded by a newer session request")
	// ErrClosed is returned by operations on a closed provider
	ErrClosed = errors.New("session provider closed")
	// ErrNoToken is returned by a TokenStore holding no token
	ErrNoToken = errors.New("no stored token")
)

// classify maps an arbitrary backend error onto the failure kinds
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrNetworkFailure),
		errors.Is(err, ErrSessionExpired),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
}

// Message returns the user-facing text for an authentication error
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, ErrSessionExpired):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, ErrNetworkFailure),
		errors.Is(err, context.DeadlineExceeded):
		return "Could not reach the server. Please try again."
	default:
		return "Sign-in failed. Please try again."
	}
}
