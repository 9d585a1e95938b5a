package service

import (
	"context"

	"github.com/platinummonkey/atrium/pkg/authz"
	"github.com/platinummonkey/atrium/pkg/canvases"
	"github.com/platinummonkey/atrium/pkg/identity"
	"github.com/platinummonkey/atrium/pkg/rbac"
)

func canvasOp(name string, actor *identity.User, workspaceID string, perm rbac.Permission) authz.Operation {
	return authz.Operation{
		Name:        name,
		UserID:      actor.ID,
		WorkspaceID: workspaceID,
		Required:    []rbac.Permission{perm},
	}
}

// CreateCanvas adds a canvas; the workspace's first canvas becomes its default
func (s *Service) CreateCanvas(ctx context.Context, actor *identity.User, workspaceID, name string) (*canvases.Canvas, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var c *canvases.Canvas
	err := s.exec(ctx, canvasOp("canvas.create", actor, workspaceID, rbac.PermCanvasCreate), func(ctx context.Context) error {
		var err error
		c, err = s.canvases.CreateCanvas(ctx, workspaceID, name, actor.ID)
		return err
	})
	return c, err
}

// ListCanvases lists a workspace's canvases in position order
func (s *Service) ListCanvases(ctx context.Context, actor *identity.User, workspaceID string) ([]*canvases.Canvas, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var list []*canvases.Canvas
	err := s.exec(ctx, canvasOp("canvas.list", actor, workspaceID, rbac.PermCanvasRead), func(ctx context.Context) error {
		var err error
		list, err = s.canvases.ListCanvases(ctx, workspaceID)
		return err
	})
	return list, err
}

// SetDefaultCanvas makes canvasID the workspace's default. Requires canvas:set_default.
func (s *Service) SetDefaultCanvas(ctx context.Context, workspaceID, canvasID string, actor *identity.User) (*canvases.Canvas, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var c *canvases.Canvas
	err := s.exec(ctx, canvasOp("canvas.set_default", actor, workspaceID, rbac.PermCanvasSetDefault), func(ctx context.Context) error {
		var err error
		c, err = s.canvases.SetDefaultCanvas(ctx, workspaceID, canvasID)
		return err
	})
	return c, err
}

// RenameCanvas renames a canvas. Requires canvas:update.
func (s *Service) RenameCanvas(ctx context.Context, actor *identity.User, workspaceID, canvasID, name string) (*canvases.Canvas, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var c *canvases.Canvas
	err := s.exec(ctx, canvasOp("canvas.rename", actor, workspaceID, rbac.PermCanvasUpdate), func(ctx context.Context) error {
		var err error
		c, err = s.canvases.RenameCanvas(ctx, workspaceID, canvasID, name)
		return err
	})
	return c, err
}

// MoveCanvas changes a canvas's position. Requires canvas:update.
func (s *Service) MoveCanvas(ctx context.Context, actor *identity.User, workspaceID, canvasID string, position int) (*canvases.Canvas, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var c *canvases.Canvas
	err := s.exec(ctx, canvasOp("canvas.move", actor, workspaceID, rbac.PermCanvasUpdate), func(ctx context.Context) error {
		var err error
		c, err = s.canvases.MoveCanvas(ctx, workspaceID, canvasID, position)
		return err
	})
	return c, err
}

// DeleteCanvas deletes a canvas. Requires canvas:delete.
func (s *Service) DeleteCanvas(ctx context.Context, actor *identity.User, workspaceID, canvasID string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	return s.exec(ctx, canvasOp("canvas.delete", actor, workspaceID, rbac.PermCanvasDelete), func(ctx context.Context) error {
		return s.canvases.DeleteCanvas(ctx, workspaceID, canvasID)
	})
}

// Backfill repairs canvas invariants across every workspace
func (s *Service) Backfill(ctx context.Context) (*canvases.BackfillReport, error) {
	var report *canvases.BackfillReport
	err := s.exec(ctx, authz.Operation{Name: "canvas.backfill"}, func(ctx context.Context) error {
		var err error
		report, err = s.canvases.Backfill(ctx)
		return err
	})
	return report, err
}
