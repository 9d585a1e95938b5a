package api

import (
	"net/http"

	"github.com/platinummonkey/atrium/pkg/apperrors"
	"github.com/platinummonkey/atrium/pkg/httputil"
	"github.com/platinummonkey/atrium/pkg/rbac"
)

func (s *Server) createWorkspace(w http.ResponseWriter, r *http.Request) {
	var req createWorkspaceRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	ws, err := s.svc.CreateWorkspace(r.Context(), actor(r), req.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, ws)
}

func (s *Server) getWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := s.svc.GetWorkspace(r.Context(), actor(r), httputil.PathString(r, "workspace"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, ws)
}

func (s *Server) deleteWorkspace(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteWorkspace(r.Context(), actor(r), httputil.PathString(r, "workspace")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// authorize answers whether a user holds a set of permissions. Callers may only ask about
// themselves unless they can manage members.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	perms, err := rbac.ParsePermissions(req.Permissions)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if len(perms) == 0 {
		httputil.WriteError(w, apperrors.Validation("at least one permission is required"))
		return
	}

	ctx := r.Context()
	me := actor(r)
	workspaceID := httputil.PathString(r, "workspace")
	subject := me.ID
	if req.UserID != "" && req.UserID != me.ID {
		ok, err := s.svc.Authorize(ctx, me.ID, workspaceID, rbac.PermWorkspaceManageMembers)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if !ok {
			httputil.WriteError(w, apperrors.Forbidden("cannot check another member's permissions"))
			return
		}
		subject = req.UserID
	}

	allowed, err := s.svc.Authorize(ctx, subject, workspaceID, perms.Slice()...)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, authorizeResponse{Allowed: allowed})
}

func (s *Server) myPermissions(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.PermissionsByWorkspace(r.Context(), actor(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, snap)
}

func (s *Server) myRedirect(w http.ResponseWriter, r *http.Request) {
	current := httputil.ParseQueryString(r, "current", "")
	target, ok, err := s.svc.RedirectTarget(r.Context(), actor(r), current)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, redirectResponse{WorkspaceID: target, Found: ok})
}
