package auth

import (
	"time"

	"github.com/sitecms/sitecms/internal/models"
)

// SessionData represents the authenticated session context for a request
type SessionData struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	TokenID    string    `json:"token_id"`
	ExpiresAt  time.Time `json:"expires_at"`
	AuthMethod string    `json:"auth_method"` // "bearer", "cookie"
}

// IsAdmin reports whether the session belongs to an administrator
func (s *SessionData) IsAdmin() bool {
	return s.Role == models.RoleAdmin
}
