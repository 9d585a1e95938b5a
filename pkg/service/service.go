// Package service is the operation facade of Atrium. Every operation runs through the
// authorization gateway, names the workspace it acts on explicitly, and invalidates the
// permission cache for the users whose access it changed.
//
// Errors leaving this package are always classified: unclassified failures are logged by
// the gateway with workspace, operation and actor, then replaced by apperrors.ErrInternal.
package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/atrium/pkg/apperrors"
	"github.com/platinummonkey/atrium/pkg/authz"
	"github.com/platinummonkey/atrium/pkg/canvases"
	"github.com/platinummonkey/atrium/pkg/identity"
	"github.com/platinummonkey/atrium/pkg/invites"
	"github.com/platinummonkey/atrium/pkg/observability"
	"github.com/platinummonkey/atrium/pkg/rbac"
	"github.com/platinummonkey/atrium/pkg/storage"
	"github.com/platinummonkey/atrium/pkg/workspaces"
)

// Options configures a Service. Every field is optional.
type Options struct {
	InviteValidity time.Duration
	// CacheBackend holds permission snapshots; nil means an in-process LRU
	CacheBackend authz.Backend
	Logger       logrus.FieldLogger
	Metrics      *observability.Metrics
	OTelMetrics  *observability.OTelMetrics
}

// Service exposes the workspace, membership, canvas and invitation operations
type Service struct {
	directory *identity.Directory
	members   *workspaces.Store
	canvases  *canvases.Manager
	invites   *invites.Manager
	resolver  *authz.Resolver
	gateway   *authz.Gateway
	cache     *authz.Cache
	logger    logrus.FieldLogger
}

// New wires every component over db
func New(db *sql.DB, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	directory := identity.NewDirectory(db)
	members := workspaces.NewStore(db)
	resolver := authz.NewResolver(members)

	return &Service{
		directory: directory,
		members:   members,
		canvases:  canvases.NewManager(db, logger, opts.Metrics),
		invites: invites.NewManager(db, members, directory,
			invites.Config{Validity: opts.InviteValidity}, logger, opts.Metrics),
		resolver: resolver,
		gateway:  authz.NewGateway(resolver, logger, opts.Metrics, opts.OTelMetrics),
		cache:    authz.NewCache(resolver, opts.CacheBackend, logger, opts.Metrics),
		logger:   logger,
	}
}

// Directory returns the identity directory transports resolve callers with
func (s *Service) Directory() *identity.Directory { return s.directory }

// Invites returns the invitation manager, for the expiry sweeper
func (s *Service) Invites() *invites.Manager { return s.invites }

// Canvases returns the canvas manager, for backfills
func (s *Service) Canvases() *canvases.Manager { return s.canvases }

// exec runs fn behind the gateway and hides unclassified failures from the caller
func (s *Service) exec(ctx context.Context, op authz.Operation, fn authz.Handler) error {
	return sanitize(s.gateway.Execute(ctx, op, fn))
}

// sanitize hides unclassified failures and strips schema detail from constraint violations
func sanitize(err error) error {
	if err == nil {
		return nil
	}
	if !apperrors.IsClassified(err) {
		return apperrors.ErrInternal
	}
	if _, ok := storage.AsConstraintError(err); ok {
		return apperrors.Kind(err)
	}
	return err
}

func requireActor(actor *identity.User) error {
	if actor == nil || actor.ID == "" {
		return apperrors.Forbidden("an authenticated user is required")
	}
	return nil
}

// Authorize reports whether userID holds every permission in workspaceID. A workspace the
// user cannot see is reported as not allowed, not as an error.
func (s *Service) Authorize(ctx context.Context, userID, workspaceID string, perms ...rbac.Permission) (bool, error) {
	d, err := s.gateway.Authorize(ctx, userID, workspaceID, perms...)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"operation":    "authorize",
			"workspace_id": workspaceID,
			"actor_id":     userID,
		}).WithError(err).Error("Authorization lookup failed")
		return false, sanitize(err)
	}
	return d.Allowed, nil
}

// PermissionsByWorkspace returns the actor's effective permissions in every workspace,
// served from the permission cache
func (s *Service) PermissionsByWorkspace(ctx context.Context, actor *identity.User) (*authz.Snapshot, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var snap *authz.Snapshot
	err := s.exec(ctx, authz.Operation{Name: "permissions.by_workspace", UserID: actor.ID}, func(ctx context.Context) error {
		var err error
		snap, err = s.cache.Snapshot(ctx, actor.ID)
		return err
	})
	return snap, err
}

// RedirectTarget picks the workspace the actor should land on, preferring current
func (s *Service) RedirectTarget(ctx context.Context, actor *identity.User, current string) (string, bool, error) {
	if err := requireActor(actor); err != nil {
		return "", false, err
	}
	var (
		target string
		ok     bool
	)
	err := s.exec(ctx, authz.Operation{Name: "workspace.redirect", UserID: actor.ID, WorkspaceID: current}, func(ctx context.Context) error {
		var err error
		target, ok, err = s.cache.RedirectTarget(ctx, actor.ID, current)
		return err
	})
	return target, ok, err
}
