//go:build integration

package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/atrium/pkg/apperrors"
	"github.com/platinummonkey/atrium/pkg/identity"
	"github.com/platinummonkey/atrium/pkg/storage"
	"github.com/platinummonkey/atrium/pkg/storage/storagetest"
)

// setupPostgres starts a disposable PostgreSQL container and returns a migrated database
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("atrium_test"),
		postgres.WithUsername("atrium"),
		postgres.WithPassword("atrium_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := storage.Open(ctx, storage.Config{
		Driver:   storage.DriverPostgres,
		URL:      dsn,
		MaxConns: 20,
		MinConns: 2,
		Timeout:  10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, storage.NewMigrator(db, storagetest.QuietLogger()).Up(ctx))
	return db
}

func TestPostgres_ConcurrentAcceptAndDefaultSwap(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	svc := New(db, Options{Logger: storagetest.QuietLogger()})

	resolve := func(email string) *identity.User {
		u, err := svc.Directory().Resolve(ctx, identity.Claims{Subject: "sub|" + email, Email: email, EmailVerified: true})
		require.NoError(t, err)
		return u
	}
	owner := resolve("owner@example.com")
	guest := resolve("guest@example.com")

	ws, err := svc.CreateWorkspace(ctx, owner, "Team")
	require.NoError(t, err)

	inv, err := svc.CreateInvite(ctx, owner, CreateInviteRequest{WorkspaceID: ws.ID, Email: guest.Email, Role: "editor"})
	require.NoError(t, err)

	// Accept and reject race on one token; exactly one wins
	var g errgroup.Group
	results := make([]error, 16)
	for i := range results {
		i := i
		g.Go(func() error {
			if i%2 == 0 {
				_, results[i] = svc.AcceptInvite(ctx, inv.Token, guest)
			} else {
				results[i] = svc.RejectInvite(ctx, inv.Token)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	}
	assert.Equal(t, 1, wins)

	var ids []string
	for i := 0; i < 10; i++ {
		c, err := svc.CreateCanvas(ctx, owner, ws.ID, fmt.Sprintf("Canvas %d", i))
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}

	raceSetDefault(t, svc, db, ws, owner, ids, 100)
}
