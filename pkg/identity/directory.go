package identity

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/atrium/pkg/apperrors"
	"github.com/platinummonkey/atrium/pkg/storage"
)

const userColumns = `id, external_subject, email, email_verified, display_name, created_at, updated_at`

// Directory stores users keyed by their identity provider subject
type Directory struct {
	db  *sql.DB
	now func() time.Time
}

// NewDirectory creates a user directory backed by db
func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db, now: time.Now}
}

// Resolve returns the user for the claims' subject, creating it on first sight. Email,
// verification state and display name are refreshed from the claims on every call.
func (d *Directory) Resolve(ctx context.Context, claims Claims) (*User, error) {
	if err := claims.Validate(); err != nil {
		return nil, err
	}
	email, _ := NormalizeEmail(claims.Email)
	name := strings.TrimSpace(claims.Name)
	if name == "" {
		name = email
	}
	now := storage.Timestamp(d.now())

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO users (id, external_subject, email, email_verified, display_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (external_subject) DO UPDATE
		SET email = excluded.email,
		    email_verified = excluded.email_verified,
		    display_name = excluded.display_name,
		    updated_at = excluded.updated_at
	`, uuid.NewString(), claims.Subject, email, claims.EmailVerified, name, now)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", storage.TranslateError(err))
	}

	return d.scanOne(d.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_subject = $1`, claims.Subject))
}

// GetUser returns a user by id
func (d *Directory) GetUser(ctx context.Context, id string) (*User, error) {
	return d.scanOne(d.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// FindByEmail returns the user registered with email, preferring verified and older accounts.
// q lets callers look the user up inside their own transaction.
func (d *Directory) FindByEmail(ctx context.Context, q storage.Querier, email string) (*User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if q == nil {
		q = d.db
	}
	return d.scanOne(q.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
		ORDER BY email_verified DESC, created_at ASC
		LIMIT 1
	`, normalized))
}

// DeleteUser removes a user account. Memberships cascade; authored records keep a NULL author.
func (d *Directory) DeleteUser(ctx context.Context, id string) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", storage.TranslateError(err))
	}
	n, err := storage.RowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NotFound("user %s", id)
	}
	return nil
}

func (d *Directory) scanOne(row *sql.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID, &user.ExternalSubject, &user.Email, &user.EmailVerified,
		&user.DisplayName, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
