package api

import (
	"net/http"

	"github.com/platinummonkey/atrium/pkg/httputil"
)

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.svc.ListMembers(r.Context(), actor(r), httputil.PathString(r, "workspace"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

func (s *Server) assignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	m, err := s.svc.AssignRole(r.Context(), actor(r),
		httputil.PathString(r, "user"), httputil.PathString(r, "workspace"), req.Role)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

func (s *Server) grantPermissions(w http.ResponseWriter, r *http.Request) {
	var req permissionsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	m, err := s.svc.GrantPermissions(r.Context(), actor(r),
		httputil.PathString(r, "user"), httputil.PathString(r, "workspace"), req.Permissions)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

func (s *Server) revokePermissions(w http.ResponseWriter, r *http.Request) {
	var req permissionsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	m, err := s.svc.RevokePermissions(r.Context(), actor(r),
		httputil.PathString(r, "user"), httputil.PathString(r, "workspace"), req.Permissions)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	err := s.svc.RemoveMember(r.Context(), actor(r),
		httputil.PathString(r, "user"), httputil.PathString(r, "workspace"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
