package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/atrium/pkg/apperrors"
	"github.com/platinummonkey/atrium/pkg/contextkeys"
	"github.com/platinummonkey/atrium/pkg/observability"
	"github.com/platinummonkey/atrium/pkg/rbac"
	"github.com/platinummonkey/atrium/pkg/workspaces"
)

// Decision reasons
const (
	ReasonAllowed = "allowed"
	// ReasonNotFound hides whether the workspace exists from non-members
	ReasonNotFound = "not found"
	ReasonMissing  = "missing permissions"
)

// Decision is the outcome of an authorization check
type Decision struct {
	Allowed bool
	Reason  string
	Missing []rbac.Permission
	// Membership and Effective describe the caller; Membership is nil for non-members
	Membership *workspaces.Membership
	Effective  rbac.PermissionSet
}

// Decide evaluates required against a caller's standing. Every required permission must be held.
func Decide(m *workspaces.Membership, effective rbac.PermissionSet, required ...rbac.Permission) Decision {
	if len(effective) == 0 {
		return Decision{Reason: ReasonNotFound, Missing: required, Effective: rbac.NewPermissionSet()}
	}
	if missing := effective.Missing(required...); len(missing) > 0 {
		return Decision{Reason: ReasonMissing, Missing: missing, Membership: m, Effective: effective}
	}
	return Decision{Allowed: true, Reason: ReasonAllowed, Membership: m, Effective: effective}
}

// Role returns the caller's role, or "" for non-members
func (d Decision) Role() rbac.Role {
	if d.Membership == nil {
		return ""
	}
	return d.Membership.Role
}

// Err converts a deny into ErrNotFound or ErrForbidden; nil when allowed
func (d Decision) Err(workspaceID string) error {
	switch {
	case d.Allowed:
		return nil
	case d.Reason == ReasonNotFound:
		return apperrors.NotFound("workspace %s not found", workspaceID)
	default:
		return apperrors.Forbidden("missing %v", d.Missing)
	}
}

// DecisionFromContext returns the decision the authorization interceptor made for the
// running operation
func DecisionFromContext(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(contextkeys.DecisionKey).(Decision)
	return d, ok
}

// Operation names a gateway call and what it requires. An empty Required skips the
// authorization step, for operations authorized by something other than membership
// (for example holding an invite token).
type Operation struct {
	Name        string
	UserID      string
	WorkspaceID string
	Required    []rbac.Permission
}

// Handler is an operation body or the remainder of the chain
type Handler func(ctx context.Context) error

// Interceptor wraps the remainder of the chain
type Interceptor func(ctx context.Context, op Operation, next Handler) error

// Gateway authorizes operations and runs them through the interceptor chain
type Gateway struct {
	resolver *Resolver
	logger   logrus.FieldLogger
	metrics  *observability.Metrics
	otel     *observability.OTelMetrics
	tracer   trace.Tracer
	chain    []Interceptor
}

// NewGateway creates a gateway. metrics and otelMetrics may be nil.
func NewGateway(resolver *Resolver, logger logrus.FieldLogger, metrics *observability.Metrics, otelMetrics *observability.OTelMetrics) *Gateway {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	g := &Gateway{
		resolver: resolver,
		logger:   logger,
		metrics:  metrics,
		otel:     otelMetrics,
		tracer:   observability.Tracer(),
	}
	g.chain = []Interceptor{
		g.recovery,
		g.logging,
		g.measure,
		g.tracing,
		g.authorization,
	}
	return g
}

// Authorize decides whether userID holds every permission in workspaceID
func (g *Gateway) Authorize(ctx context.Context, userID, workspaceID string, perms ...rbac.Permission) (Decision, error) {
	return g.authorize(ctx, "authorize", userID, workspaceID, perms)
}

func (g *Gateway) authorize(ctx context.Context, operation, userID, workspaceID string, perms []rbac.Permission) (Decision, error) {
	m, effective, err := g.resolver.Membership(ctx, userID, workspaceID)
	if err != nil {
		return Decision{}, err
	}
	d := Decide(m, effective, perms...)
	g.metrics.RecordDecision(operation, d.Allowed)
	g.otel.RecordDecision(ctx, operation, d.Allowed)
	if !d.Allowed {
		observability.FromContext(ctx, g.logger).WithFields(logrus.Fields{
			"operation":    operation,
			"workspace_id": workspaceID,
			"actor_id":     userID,
			"reason":       d.Reason,
			"missing":      fmt.Sprint(d.Missing),
		}).Debug("Access denied")
	}
	return d, nil
}

// Check is a boolean pre-check for transports; lookup failures count as deny
func (g *Gateway) Check(ctx context.Context, userID, workspaceID string, perms ...rbac.Permission) bool {
	d, err := g.Authorize(ctx, userID, workspaceID, perms...)
	return err == nil && d.Allowed
}

// Execute runs fn behind the interceptor chain
func (g *Gateway) Execute(ctx context.Context, op Operation, fn Handler) error {
	return g.run(ctx, op, 0, fn)
}

func (g *Gateway) run(ctx context.Context, op Operation, i int, fn Handler) error {
	if i == len(g.chain) {
		return fn(ctx)
	}
	return g.chain[i](ctx, op, func(ctx context.Context) error {
		return g.run(ctx, op, i+1, fn)
	})
}

func (g *Gateway) recovery(ctx context.Context, op Operation, next Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			observability.LogPanic(observability.FromContext(ctx, g.logger), op.Name, r)
			err = fmt.Errorf("%w: panic in %s", apperrors.ErrInternal, op.Name)
		}
	}()
	return next(ctx)
}

func (g *Gateway) logging(ctx context.Context, op Operation, next Handler) error {
	err := next(ctx)
	if err == nil {
		return nil
	}
	entry := observability.FromContext(ctx, g.logger).WithFields(logrus.Fields{
		"operation":    op.Name,
		"workspace_id": op.WorkspaceID,
		"actor_id":     op.UserID,
	}).WithError(err)
	if apperrors.IsClassified(err) {
		entry.Debug("Operation rejected")
	} else {
		entry.Error("Operation failed")
	}
	return err
}

func (g *Gateway) measure(ctx context.Context, op Operation, next Handler) error {
	start := time.Now()
	err := next(ctx)
	code := apperrors.Code(err)
	g.metrics.RecordOperation(op.Name, time.Since(start), code)
	g.otel.RecordOperation(ctx, op.Name, time.Since(start), code)
	return err
}

func (g *Gateway) tracing(ctx context.Context, op Operation, next Handler) error {
	ctx, span := g.tracer.Start(ctx, op.Name, trace.WithAttributes(
		attribute.String("atrium.operation", op.Name),
		attribute.String("atrium.workspace_id", op.WorkspaceID),
		attribute.String("atrium.actor_id", op.UserID),
	))
	defer span.End()

	err := next(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperrors.Code(err))
	}
	return err
}

func (g *Gateway) authorization(ctx context.Context, op Operation, next Handler) error {
	if len(op.Required) == 0 {
		return next(ctx)
	}
	d, err := g.authorize(ctx, op.Name, op.UserID, op.WorkspaceID, op.Required)
	if err != nil {
		return err
	}
	if err := d.Err(op.WorkspaceID); err != nil {
		return err
	}
	return next(context.WithValue(ctx, contextkeys.DecisionKey, d))
}
