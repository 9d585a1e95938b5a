package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/atrium/pkg/apperrors"
	"github.com/platinummonkey/atrium/pkg/authz"
	"github.com/platinummonkey/atrium/pkg/identity"
	"github.com/platinummonkey/atrium/pkg/invites"
	"github.com/platinummonkey/atrium/pkg/rbac"
	"github.com/platinummonkey/atrium/pkg/workspaces"
)

// CreateInviteRequest describes an invitation to issue
type CreateInviteRequest = invites.CreateRequest

// CreateInvite issues an invitation into req.WorkspaceID. Requires workspace:invite.
func (s *Service) CreateInvite(ctx context.Context, actor *identity.User, req CreateInviteRequest) (*invites.Invite, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var inv *invites.Invite
	err := s.exec(ctx, authz.Operation{
		Name:        "invite.create",
		UserID:      actor.ID,
		WorkspaceID: req.WorkspaceID,
		Required:    []rbac.Permission{rbac.PermWorkspaceInvite},
	}, func(ctx context.Context) error {
		d, _ := authz.DecisionFromContext(ctx)
		var err error
		inv, err = s.invites.Create(ctx, invites.Inviter{
			UserID:    actor.ID,
			Role:      d.Role(),
			Effective: d.Effective,
		}, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidateInvitee(ctx, inv)
	return inv, nil
}

// AcceptInvite redeems token for actor. Holding the token is the authorization.
func (s *Service) AcceptInvite(ctx context.Context, token string, actor *identity.User) (*workspaces.Membership, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var m *workspaces.Membership
	err := s.exec(ctx, authz.Operation{Name: "invite.accept", UserID: actor.ID}, func(ctx context.Context) error {
		var err error
		m, err = s.invites.Accept(ctx, token, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, actor.ID)
	return m, nil
}

// RejectInvite declines the invite token redeems
func (s *Service) RejectInvite(ctx context.Context, token string) error {
	var inv *invites.Invite
	err := s.exec(ctx, authz.Operation{Name: "invite.reject"}, func(ctx context.Context) error {
		var err error
		inv, err = s.invites.Reject(ctx, token)
		return err
	})
	if err != nil {
		return err
	}
	s.invalidateInvitee(ctx, inv)
	return nil
}

// CancelInvite withdraws a pending invite. Requires invite:cancel on the invite's workspace;
// callers who cannot see that workspace get ErrNotFound.
func (s *Service) CancelInvite(ctx context.Context, inviteID string, actor *identity.User) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	inv, err := s.invites.Get(ctx, inviteID)
	if err != nil {
		if !apperrors.IsClassified(err) {
			s.logger.WithFields(logrus.Fields{
				"operation": "invite.cancel",
				"invite_id": inviteID,
				"actor_id":  actor.ID,
			}).WithError(err).Error("Invite lookup failed")
		}
		return sanitize(err)
	}
	err = s.exec(ctx, authz.Operation{
		Name:        "invite.cancel",
		UserID:      actor.ID,
		WorkspaceID: inv.WorkspaceID,
		Required:    []rbac.Permission{rbac.PermInviteCancel},
	}, func(ctx context.Context) error {
		var err error
		inv, err = s.invites.Cancel(ctx, inviteID, actor.ID)
		return err
	})
	if err != nil {
		return err
	}
	s.invalidateInvitee(ctx, inv)
	return nil
}

// invalidateInvitee drops the cached permissions of the user an invite is addressed to,
// whether it names them directly or only by email
func (s *Service) invalidateInvitee(ctx context.Context, inv *invites.Invite) {
	if inv == nil {
		return
	}
	userID := inv.UserID
	if userID == "" {
		u, err := s.directory.FindByEmail(ctx, nil, inv.Email)
		if err != nil {
			if !errors.Is(err, apperrors.ErrNotFound) {
				s.logger.WithError(err).WithField("invite_id", inv.ID).Warn("Invitee lookup failed")
			}
			return
		}
		userID = u.ID
	}
	s.cache.Invalidate(ctx, userID)
}

// SweepExpiredInvites marks every overdue pending invite expired
func (s *Service) SweepExpiredInvites(ctx context.Context) (int64, error) {
	var n int64
	err := s.exec(ctx, authz.Operation{Name: "invite.sweep"}, func(ctx context.Context) error {
		var err error
		n, err = s.invites.Sweep(ctx)
		return err
	})
	return n, err
}

// GetInviteByToken previews an invitation before it is accepted or rejected
func (s *Service) GetInviteByToken(ctx context.Context, token string) (*invites.Invite, error) {
	var inv *invites.Invite
	err := s.exec(ctx, authz.Operation{Name: "invite.preview"}, func(ctx context.Context) error {
		var err error
		inv, err = s.invites.GetByToken(ctx, token)
		return err
	})
	return inv, err
}

// ListInvites lists a workspace's invitations, optionally filtered by status ("" for all).
// Requires invite:read.
func (s *Service) ListInvites(ctx context.Context, actor *identity.User, workspaceID, status string) ([]*invites.Invite, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var filter *invites.Status
	if status != "" {
		st, err := invites.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		filter = &st
	}

	var list []*invites.Invite
	err := s.exec(ctx, authz.Operation{
		Name:        "invite.list",
		UserID:      actor.ID,
		WorkspaceID: workspaceID,
		Required:    []rbac.Permission{rbac.PermInviteRead},
	}, func(ctx context.Context) error {
		var err error
		list, err = s.invites.List(ctx, workspaceID, filter)
		return err
	})
	return list, err
}
