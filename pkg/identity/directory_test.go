package identity

import (
	"context"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/atrium/pkg/apperrors"
	"github.com/platinummonkey/atrium/pkg/storage/storagetest"
)

func TestDirectory_Resolve(t *testing.T) {
	db := storagetest.NewSQLite(t)
	dir := NewDirectory(db)
	ctx := context.Background()

	t.Run("creates on first sight", func(t *testing.T) {
		user, err := dir.Resolve(ctx, Claims{Subject: "auth0|1", Email: "  Alice@Example.COM ", EmailVerified: true})
		require.NoError(t, err)
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.Equal(t, "alice@example.com", user.DisplayName)
		assert.True(t, user.EmailVerified)
	})

	t.Run("refreshes on later logins", func(t *testing.T) {
		first, err := dir.Resolve(ctx, Claims{Subject: "auth0|2", Email: "bob@example.com"})
		require.NoError(t, err)
		assert.False(t, first.EmailVerified)

		second, err := dir.Resolve(ctx, Claims{Subject: "auth0|2", Email: "bob@example.com", EmailVerified: true, Name: "Bob"})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.True(t, second.EmailVerified)
		assert.Equal(t, "Bob", second.DisplayName)
	})

	t.Run("rejects invalid claims", func(t *testing.T) {
		_, err := dir.Resolve(ctx, Claims{Email: "x@example.com"})
		assert.ErrorIs(t, err, apperrors.ErrValidation)

		_, err = dir.Resolve(ctx, Claims{Subject: "s", Email: "not an email"})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})
}

func TestDirectory_FindByEmail(t *testing.T) {
	db := storagetest.NewSQLite(t)
	dir := NewDirectory(db)
	ctx := context.Background()

	_, err := dir.Resolve(ctx, Claims{Subject: "a", Email: "shared@example.com"})
	require.NoError(t, err)
	verified, err := dir.Resolve(ctx, Claims{Subject: "b", Email: "shared@example.com", EmailVerified: true})
	require.NoError(t, err)

	found, err := dir.FindByEmail(ctx, nil, "SHARED@example.com")
	require.NoError(t, err)
	assert.Equal(t, verified.ID, found.ID)

	_, err = dir.FindByEmail(ctx, db, "nobody@example.com")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDirectory_DeleteUser(t *testing.T) {
	db := storagetest.NewSQLite(t)
	dir := NewDirectory(db)
	ctx := context.Background()

	owner, err := dir.Resolve(ctx, Claims{Subject: "owner", Email: "owner@example.com", EmailVerified: true})
	require.NoError(t, err)
	ws := storagetest.InsertWorkspace(t, db, owner.ID, "Team")
	storagetest.InsertMembership(t, db, ws, owner.ID, "owner")

	require.NoError(t, dir.DeleteUser(ctx, owner.ID))

	var ownerID *string
	require.NoError(t, db.QueryRow(`SELECT owner_id FROM workspaces WHERE id = $1`, ws).Scan(&ownerID))
	assert.Nil(t, ownerID)

	var members int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM workspace_memberships WHERE workspace_id = $1`, ws).Scan(&members))
	assert.Zero(t, members)

	assert.ErrorIs(t, dir.DeleteUser(ctx, owner.ID), apperrors.ErrNotFound)
}

func TestDirectory_GetUserQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := NewDirectory(db)

	mock.ExpectQuery(`SELECT id, external_subject, email, email_verified, display_name, created_at, updated_at FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnError(fmt.Errorf("database connection error"))

	user, err := dir.GetUser(context.Background(), "u1")
	require.Error(t, err)
	assert.Nil(t, user)
	assert.Contains(t, err.Error(), "failed to get user")
	assert.False(t, apperrors.IsClassified(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"Alice@Example.com", "alice@example.com", false},
		{"  bob@example.com\t", "bob@example.com", false},
		{"", "", true},
		{"no-at-sign", "", true},
		{"Alice <alice@example.com>", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeEmail(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUser_MatchesEmail(t *testing.T) {
	u := &User{Email: "carol@example.com", EmailVerified: true}
	assert.True(t, u.MatchesEmail("Carol@Example.com"))
	assert.False(t, u.MatchesEmail("dave@example.com"))

	u.EmailVerified = false
	assert.False(t, u.MatchesEmail("carol@example.com"))

	var nilUser *User
	assert.False(t, nilUser.MatchesEmail("carol@example.com"))
}
