package api

import (
	"net/http"

	"github.com/platinummonkey/atrium/pkg/httputil"
	"github.com/platinummonkey/atrium/pkg/service"
)

func (s *Server) createInvite(w http.ResponseWriter, r *http.Request) {
	var req createInviteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	inv, err := s.svc.CreateInvite(r.Context(), actor(r), service.CreateInviteRequest{
		WorkspaceID: httputil.PathString(r, "workspace"),
		Email:       req.Email,
		Role:        req.Role,
		Permissions: req.Permissions,
		Message:     req.Message,
		Metadata:    req.Metadata,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, createInviteResponse{Invite: inv, Token: inv.Token})
}

func (s *Server) listInvites(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListInvites(r.Context(), actor(r),
		httputil.PathString(r, "workspace"), httputil.ParseQueryString(r, "status", ""))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

func (s *Server) cancelInvite(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.CancelInvite(r.Context(), httputil.PathString(r, "invite"), actor(r)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) previewInvite(w http.ResponseWriter, r *http.Request) {
	inv, err := s.svc.GetInviteByToken(r.Context(), httputil.PathString(r, "token"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, inv)
}

func (s *Server) acceptInvite(w http.ResponseWriter, r *http.Request) {
	user := actor(r)
	if user == nil {
		httputil.WriteUnauthorized(w, "sign in to accept an invitation")
		return
	}
	m, err := s.svc.AcceptInvite(r.Context(), httputil.PathString(r, "token"), user)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

func (s *Server) rejectInvite(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RejectInvite(r.Context(), httputil.PathString(r, "token")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
