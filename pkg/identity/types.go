package identity

import (
	"net/mail"
	"strings"
	"time"

	"github.com/platinummonkey/atrium/pkg/apperrors"
)

// User is an authenticated principal known to Atrium
type User struct {
	ID              string    `json:"id"`
	ExternalSubject string    `json:"external_subject"`
	Email           string    `json:"email"`
	EmailVerified   bool      `json:"email_verified"`
	DisplayName     string    `json:"display_name"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Claims are the identity attributes extracted from a verified token
type Claims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// Validate checks that the claims identify a principal
func (c Claims) Validate() error {
	if strings.TrimSpace(c.Subject) == "" {
		return apperrors.Validation("subject is required")
	}
	if _, err := NormalizeEmail(c.Email); err != nil {
		return err
	}
	return nil
}

// NormalizeEmail trims and lowercases an address and checks that it parses as a bare address.
func NormalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", apperrors.Validation("email is required")
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", apperrors.Validation("invalid email address %q", email)
	}
	return normalized, nil
}

// MatchesEmail reports whether the user holds a verified address equal to email
func (u *User) MatchesEmail(email string) bool {
	if u == nil || !u.EmailVerified {
		return false
	}
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Email, normalized)
}
