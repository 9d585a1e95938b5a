package invites

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/atrium/pkg/storage"
)

const sweepLeaseName = "invite-sweep"

// SweeperConfig controls the periodic expiry sweep
type SweeperConfig struct {
	// Schedule is a cron expression, e.g. "@every 5m"
	Schedule string
	// LeaseTTL bounds how long one replica holds the sweep lease
	LeaseTTL time.Duration
}

// Sweeper runs Manager.Sweep on a cron schedule. The lease keeps replicas from sweeping at
// the same time; a sweep that runs twice is harmless either way.
type Sweeper struct {
	manager *Manager
	leaser  storage.Leaser
	config  SweeperConfig
	logger  logrus.FieldLogger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewSweeper creates a sweeper. A nil leaser sweeps on every tick.
func NewSweeper(manager *Manager, leaser storage.Leaser, cfg SweeperConfig, logger logrus.FieldLogger) *Sweeper {
	if leaser == nil {
		leaser = storage.LocalLeaser{}
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 5m"
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = time.Minute
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Sweeper{manager: manager, leaser: leaser, config: cfg, logger: logger}
}

// RunOnce performs one sweep if the lease is free. It reports whether a sweep ran.
func (s *Sweeper) RunOnce(ctx context.Context) (expired int64, ran bool, err error) {
	lease, err := s.leaser.Acquire(ctx, sweepLeaseName, s.config.LeaseTTL)
	if err != nil {
		return 0, false, err
	}
	if lease == nil {
		s.logger.Debug("Invite sweep lease held elsewhere, skipping")
		return 0, false, nil
	}
	defer func() {
		if rerr := lease.Release(context.Background()); rerr != nil {
			s.logger.WithError(rerr).Warn("Failed to release sweep lease")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.config.LeaseTTL)
	defer cancel()

	start := time.Now()
	expired, err = s.manager.Sweep(ctx)
	if err != nil {
		return 0, true, err
	}
	s.logger.WithFields(logrus.Fields{
		"expired":  expired,
		"duration": time.Since(start),
	}).Info("Swept expired invites")
	return expired, true, nil
}

// Start schedules sweeps until Stop is called
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}

	c := cron.New()
	_, err := c.AddFunc(s.config.Schedule, func() {
		if _, _, err := s.RunOnce(context.Background()); err != nil {
			s.logger.WithError(err).Error("Invite sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.config.Schedule, err)
	}

	c.Start()
	s.cron = c
	s.logger.WithField("schedule", s.config.Schedule).Info("Invite sweeper started")
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish or ctx to end
func (s *Sweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	done := c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.logger.Info("Invite sweeper stopped")
}
