package invites

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/atrium/pkg/storage"
	"github.com/platinummonkey/atrium/pkg/storage/storagetest"
)

func expiredInvites(t *testing.T, f *fixture, emails ...string) {
	t.Helper()
	clock := f.manager.now
	f.manager.now = func() time.Time { return clock().Add(-DefaultValidity - time.Minute) }
	for _, e := range emails {
		f.invite(t, e, "viewer")
	}
	f.manager.now = clock
}

func TestSweeper_RunOnceWithRedisLease(t *testing.T) {
	f := newFixture(t)
	expiredInvites(t, f, "a@example.com", "b@example.com")

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client, err := storage.NewRedisClient(context.Background(), storage.RedisConfig{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer client.Close()
	leaser := storage.NewRedisLeaser(client, "atrium:lease:")

	sweeper := NewSweeper(f.manager, leaser, SweeperConfig{LeaseTTL: time.Minute}, storagetest.QuietLogger())

	// Another replica holds the lease.
	held, err := leaser.Acquire(context.Background(), sweepLeaseName, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, held)

	n, ran, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Zero(t, n)

	require.NoError(t, held.Release(context.Background()))

	n, ran, err = sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, int64(2), n)
	assert.False(t, mr.Exists("atrium:lease:"+sweepLeaseName), "lease is released after the sweep")

	n, ran, err = sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Zero(t, n)
}

func TestSweeper_LeaseError(t *testing.T) {
	f := newFixture(t)
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := storage.NewRedisClient(context.Background(), storage.RedisConfig{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer client.Close()
	mr.Close()

	sweeper := NewSweeper(f.manager, storage.NewRedisLeaser(client, "atrium:lease:"), SweeperConfig{}, storagetest.QuietLogger())
	_, ran, err := sweeper.RunOnce(context.Background())
	assert.Error(t, err)
	assert.False(t, ran)
}

func TestSweeper_Schedule(t *testing.T) {
	f := newFixture(t)
	expiredInvites(t, f, "c@example.com")

	sweeper := NewSweeper(f.manager, nil, SweeperConfig{Schedule: "@every 1s"}, storagetest.QuietLogger())
	require.NoError(t, sweeper.Start())
	assert.Error(t, sweeper.Start(), "starting twice fails")

	assert.Eventually(t, func() bool {
		var n int
		if err := f.db.QueryRow(`SELECT COUNT(*) FROM workspace_invites WHERE status = 'expired'`).Scan(&n); err != nil {
			return false
		}
		return n == 1
	}, 5*time.Second, 100*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sweeper.Stop(ctx)
	sweeper.Stop(ctx)
}

func TestSweeper_InvalidSchedule(t *testing.T) {
	f := newFixture(t)
	sweeper := NewSweeper(f.manager, nil, SweeperConfig{Schedule: "not a schedule"}, storagetest.QuietLogger())
	assert.ErrorContains(t, sweeper.Start(), "invalid sweep schedule")
}
