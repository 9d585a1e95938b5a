package invites

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/atrium/pkg/apperrors"
	"github.com/platinummonkey/atrium/pkg/identity"
	"github.com/platinummonkey/atrium/pkg/observability"
	"github.com/platinummonkey/atrium/pkg/rbac"
	"github.com/platinummonkey/atrium/pkg/storage"
	"github.com/platinummonkey/atrium/pkg/workspaces"
)

const inviteColumns = `id, workspace_id, invited_by, email, user_id, role, permissions, token, expires_at,
	status, accepted_at, rejected_at, cancelled_at, message, metadata, created_at, updated_at`

const maxTokenAttempts = 3

var errTokenCollision = errors.New("invite token collision")

// transitionQueries move a pending, unexpired invite to a terminal status. $1 is now, $2 the id.
var transitionQueries = map[Status]string{
	StatusAccepted: `
		UPDATE workspace_invites SET status = 'accepted', accepted_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'pending' AND expires_at >= $1`,
	StatusRejected: `
		UPDATE workspace_invites SET status = 'rejected', rejected_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'pending' AND expires_at >= $1`,
	StatusCancelled: `
		UPDATE workspace_invites SET status = 'cancelled', cancelled_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'pending' AND expires_at >= $1`,
}

// Config tunes invitation issuance
type Config struct {
	Validity time.Duration
}

// Manager owns the invitation lifecycle
type Manager struct {
	db        *sql.DB
	members   *workspaces.Store
	directory *identity.Directory
	validity  time.Duration
	now       func() time.Time
	tokens    func() (string, error)
	logger    logrus.FieldLogger
	metrics   *observability.Metrics
}

// NewManager creates an invitation manager. A zero Validity means DefaultValidity.
func NewManager(db *sql.DB, members *workspaces.Store, directory *identity.Directory, cfg Config,
	logger logrus.FieldLogger, metrics *observability.Metrics) *Manager {

	if cfg.Validity <= 0 {
		cfg.Validity = DefaultValidity
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Manager{
		db:        db,
		members:   members,
		directory: directory,
		validity:  cfg.Validity,
		now:       time.Now,
		tokens:    generateToken,
		logger:    logger,
		metrics:   metrics,
	}
}

// generateToken returns 32 random bytes, hex encoded
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (m *Manager) timestamp() time.Time {
	return storage.Timestamp(m.now())
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanInvite(row scanner) (*Invite, error) {
	inv := &Invite{}
	var invitedBy, userID, message sql.NullString
	var acceptedAt, rejectedAt, cancelledAt sql.NullTime
	err := row.Scan(
		&inv.ID, &inv.WorkspaceID, &invitedBy, &inv.Email, &userID, &inv.Role, &inv.Permissions,
		&inv.Token, &inv.ExpiresAt, &inv.Status, &acceptedAt, &rejectedAt, &cancelledAt,
		&message, &inv.Metadata, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.InvitedBy = invitedBy.String
	inv.UserID = userID.String
	inv.Message = message.String
	inv.AcceptedAt = timePtr(acceptedAt)
	inv.RejectedAt = timePtr(rejectedAt)
	inv.CancelledAt = timePtr(cancelledAt)
	return inv, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (m *Manager) scanOne(row *sql.Row) (*Invite, error) {
	inv, err := scanInvite(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("invite not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}
	return inv, nil
}

func (m *Manager) byID(ctx context.Context, q storage.Querier, id string) (*Invite, error) {
	return m.scanOne(q.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM workspace_invites WHERE id = $1`, id))
}

func (m *Manager) byToken(ctx context.Context, q storage.Querier, token string) (*Invite, error) {
	if token == "" {
		return nil, apperrors.NotFound("invite not found")
	}
	return m.scanOne(q.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM workspace_invites WHERE token = $1`, token))
}

// Get returns an invite by id
func (m *Manager) Get(ctx context.Context, id string) (*Invite, error) {
	return m.byID(ctx, m.db, id)
}

// GetByToken returns the invite a token redeems, for previewing before accepting
func (m *Manager) GetByToken(ctx context.Context, token string) (*Invite, error) {
	return m.byToken(ctx, m.db, token)
}

// List returns a workspace's invites, newest first, optionally filtered by status
func (m *Manager) List(ctx context.Context, workspaceID string, status *Status) ([]*Invite, error) {
	query := `SELECT ` + inviteColumns + ` FROM workspace_invites WHERE workspace_id = $1`
	args := []interface{}{workspaceID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer rows.Close()

	var out []*Invite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// Create issues an invitation on behalf of inviter. The role may not be owner and may not
// outrank the inviter; extra permissions must all be held by the inviter.
func (m *Manager) Create(ctx context.Context, inviter Inviter, req CreateRequest) (*Invite, error) {
	if strings.TrimSpace(req.WorkspaceID) == "" {
		return nil, apperrors.Validation("workspace_id is required")
	}
	email, err := identity.NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	role, err := rbac.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}
	if role == rbac.RoleOwner {
		return nil, apperrors.Validation("invitations cannot grant the owner role")
	}
	if role.Outranks(inviter.Role) {
		return nil, apperrors.Forbidden("cannot invite as %s while holding %s", role, inviter.Role)
	}
	perms, err := rbac.ParsePermissions(req.Permissions)
	if err != nil {
		return nil, err
	}
	if missing := inviter.Effective.Missing(perms.Slice()...); len(missing) > 0 {
		return nil, apperrors.Forbidden("cannot grant permissions you do not hold: %v", missing)
	}
	message := strings.TrimSpace(req.Message)
	if len(message) > MaxMessageLength {
		return nil, apperrors.Validation("message must be at most %d characters", MaxMessageLength)
	}
	metadata := req.Metadata
	if metadata == nil {
		metadata = Metadata{}
	}

	inv := &Invite{
		ID:          uuid.NewString(),
		WorkspaceID: req.WorkspaceID,
		InvitedBy:   inviter.UserID,
		Email:       email,
		Role:        role,
		Permissions: perms,
		Status:      StatusPending,
		Message:     message,
		Metadata:    metadata,
	}

	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		inv.Token, err = m.tokens()
		if err != nil {
			return nil, fmt.Errorf("failed to generate token: %w", err)
		}
		err = storage.WithTx(ctx, m.db, func(tx *sql.Tx) error {
			return m.insert(ctx, tx, inv)
		})
		if !errors.Is(err, errTokenCollision) {
			break
		}
		m.logger.WithField("workspace_id", inv.WorkspaceID).Warn("Invite token collision, regenerating")
	}
	if err != nil {
		return nil, err
	}

	m.metrics.RecordInviteTransition(string(StatusPending), 1)
	m.logger.WithFields(logrus.Fields{
		"workspace_id": inv.WorkspaceID,
		"invite_id":    inv.ID,
		"actor_id":     inviter.UserID,
		"role":         inv.Role,
	}).Info("Created invite")
	return inv, nil
}

func (m *Manager) insert(ctx context.Context, tx *sql.Tx, inv *Invite) error {
	now := m.timestamp()

	inv.UserID = ""
	user, err := m.directory.FindByEmail(ctx, tx, inv.Email)
	switch {
	case err == nil:
		if _, err := m.members.GetMembership(ctx, tx, user.ID, inv.WorkspaceID); err == nil {
			return apperrors.Duplicate("%s is already a member of workspace %s", inv.Email, inv.WorkspaceID)
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		if user.EmailVerified {
			inv.UserID = user.ID
		}
	case !errors.Is(err, apperrors.ErrNotFound):
		return err
	}

	// A stale pending invite would otherwise hold the pending-email index until the next sweep.
	if _, err := tx.ExecContext(ctx, `
		UPDATE workspace_invites SET status = 'expired', updated_at = $1
		WHERE workspace_id = $2 AND email = $3 AND status = 'pending' AND expires_at < $1
	`, now, inv.WorkspaceID, inv.Email); err != nil {
		return fmt.Errorf("failed to expire stale invite: %w", storage.TranslateError(err))
	}

	inv.ExpiresAt = storage.Timestamp(now.Add(m.validity))
	inv.CreatedAt, inv.UpdatedAt = now, now

	result, err := tx.ExecContext(ctx, `
		INSERT INTO workspace_invites (
			id, workspace_id, invited_by, email, user_id, role, permissions, token, expires_at,
			status, message, metadata, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', $10, $11, $12, $12)
		ON CONFLICT DO NOTHING
	`, inv.ID, inv.WorkspaceID, nullable(inv.InvitedBy), inv.Email, nullable(inv.UserID), inv.Role,
		inv.Permissions, inv.Token, inv.ExpiresAt, nullable(inv.Message), inv.Metadata, now)
	if err != nil {
		return fmt.Errorf("failed to create invite: %w", storage.TranslateError(err))
	}
	n, err := storage.RowsAffected(result)
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var pending int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM workspace_invites
		WHERE workspace_id = $1 AND email = $2 AND status = 'pending'
	`, inv.WorkspaceID, inv.Email).Scan(&pending); err != nil {
		return fmt.Errorf("failed to check pending invites: %w", err)
	}
	if pending > 0 {
		return apperrors.Duplicate("a pending invite for %s already exists", inv.Email)
	}
	return errTokenCollision
}

// Accept redeems token for actor and returns the resulting membership. An existing
// membership is only ever raised: the role becomes the higher of the two and overrides are
// unioned.
func (m *Manager) Accept(ctx context.Context, token string, actor *identity.User) (*workspaces.Membership, error) {
	if actor == nil {
		return nil, apperrors.Forbidden("an authenticated user is required to accept an invite")
	}

	var membership *workspaces.Membership
	_, err := m.transition(ctx, StatusAccepted,
		func(q storage.Querier) (*Invite, error) { return m.byToken(ctx, q, token) },
		func(inv *Invite) error {
			if inv.UserID != "" && inv.UserID == actor.ID {
				return nil
			}
			if actor.MatchesEmail(inv.Email) {
				return nil
			}
			return apperrors.Forbidden("invite was issued to a different user")
		},
		func(tx *sql.Tx, inv *Invite) error {
			var err error
			membership, err = m.members.MergeMembership(ctx, tx, actor.ID, inv.WorkspaceID, inv.Role, inv.Permissions)
			return err
		},
		actor.ID,
	)
	if err != nil {
		return nil, err
	}
	return membership, nil
}

// Reject declines the invite token redeems
func (m *Manager) Reject(ctx context.Context, token string) (*Invite, error) {
	return m.transition(ctx, StatusRejected,
		func(q storage.Querier) (*Invite, error) { return m.byToken(ctx, q, token) },
		nil, nil, "")
}

// Cancel withdraws a pending invite. Callers check invite:cancel on its workspace first.
func (m *Manager) Cancel(ctx context.Context, inviteID, actorID string) (*Invite, error) {
	return m.transition(ctx, StatusCancelled,
		func(q storage.Querier) (*Invite, error) { return m.byID(ctx, q, inviteID) },
		nil, nil, actorID)
}

// transition moves one pending invite to status to. A pending invite whose window has
// passed is marked expired instead, and the caller gets ErrExpiredInvite.
func (m *Manager) transition(ctx context.Context, to Status,
	find func(q storage.Querier) (*Invite, error),
	check func(inv *Invite) error,
	after func(tx *sql.Tx, inv *Invite) error,
	actorID string) (*Invite, error) {

	var out *Invite
	expired := false
	err := storage.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		inv, err := find(tx)
		if err != nil {
			return err
		}
		if inv.Status.IsTerminal() {
			return apperrors.Conflict("invite is already %s", inv.Status)
		}

		now := m.timestamp()
		if inv.ExpiresAt.Before(now) {
			expired, err = m.expireOne(ctx, tx, inv.ID, now)
			if err == nil && !expired {
				err = apperrors.Conflict("invite changed concurrently")
			}
			return err
		}

		if check != nil {
			if err := check(inv); err != nil {
				return err
			}
		}

		result, err := tx.ExecContext(ctx, transitionQueries[to], now, inv.ID)
		if err != nil {
			return fmt.Errorf("failed to update invite: %w", storage.TranslateError(err))
		}
		n, err := storage.RowsAffected(result)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperrors.Conflict("invite changed concurrently")
		}

		inv.Status = to
		inv.UpdatedAt = now
		stamp := now
		switch to {
		case StatusAccepted:
			inv.AcceptedAt = &stamp
		case StatusRejected:
			inv.RejectedAt = &stamp
		case StatusCancelled:
			inv.CancelledAt = &stamp
		}

		if after != nil {
			if err := after(tx, inv); err != nil {
				return err
			}
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		m.metrics.RecordInviteTransition(string(StatusExpired), 1)
		return nil, apperrors.Expired("invite has expired")
	}

	m.metrics.RecordInviteTransition(string(to), 1)
	m.logger.WithFields(logrus.Fields{
		"workspace_id": out.WorkspaceID,
		"invite_id":    out.ID,
		"actor_id":     actorID,
		"status":       to,
	}).Info("Invite transitioned")
	return out, nil
}

// expireOne applies the lazy expiry. It reports true when the invite is expired afterwards,
// including when a concurrent sweep got there first.
func (m *Manager) expireOne(ctx context.Context, tx *sql.Tx, id string, now time.Time) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE workspace_invites SET status = 'expired', updated_at = $1
		WHERE id = $2 AND status = 'pending' AND expires_at < $1
	`, now, id)
	if err != nil {
		return false, fmt.Errorf("failed to expire invite: %w", storage.TranslateError(err))
	}
	n, err := storage.RowsAffected(result)
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	var status Status
	if err := tx.QueryRowContext(ctx, `SELECT status FROM workspace_invites WHERE id = $1`, id).Scan(&status); err != nil {
		return false, fmt.Errorf("failed to read invite status: %w", err)
	}
	return status == StatusExpired, nil
}

// Sweep marks every pending invite past its window as expired and returns how many changed
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	now := m.timestamp()
	result, err := m.db.ExecContext(ctx, `
		UPDATE workspace_invites SET status = 'expired', updated_at = $1
		WHERE status = 'pending' AND expires_at < $1
	`, now)
	if err != nil {
		err = fmt.Errorf("failed to sweep invites: %w", storage.TranslateError(err))
		m.metrics.RecordSweep(0, err)
		return 0, err
	}
	n, err := storage.RowsAffected(result)
	m.metrics.RecordSweep(n, err)
	if err != nil {
		return 0, err
	}
	return n, nil
}
