package api

import (
	"net/http"

	"github.com/platinummonkey/atrium/pkg/apperrors"
	"github.com/platinummonkey/atrium/pkg/canvases"
	"github.com/platinummonkey/atrium/pkg/httputil"
)

func (s *Server) listCanvases(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListCanvases(r.Context(), actor(r), httputil.PathString(r, "workspace"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

func (s *Server) createCanvas(w http.ResponseWriter, r *http.Request) {
	var req createCanvasRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	c, err := s.svc.CreateCanvas(r.Context(), actor(r), httputil.PathString(r, "workspace"), req.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, c)
}

func (s *Server) updateCanvas(w http.ResponseWriter, r *http.Request) {
	var req updateCanvasRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == nil && req.Position == nil {
		httputil.WriteError(w, apperrors.Validation("name or position is required"))
		return
	}

	ctx := r.Context()
	workspaceID := httputil.PathString(r, "workspace")
	canvasID := httputil.PathString(r, "canvas")

	var (
		c   *canvases.Canvas
		err error
	)
	if req.Name != nil {
		if c, err = s.svc.RenameCanvas(ctx, actor(r), workspaceID, canvasID, *req.Name); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	if req.Position != nil {
		if c, err = s.svc.MoveCanvas(ctx, actor(r), workspaceID, canvasID, *req.Position); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	httputil.WriteSuccess(w, c)
}

func (s *Server) deleteCanvas(w http.ResponseWriter, r *http.Request) {
	err := s.svc.DeleteCanvas(r.Context(), actor(r), httputil.PathString(r, "workspace"), httputil.PathString(r, "canvas"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) setDefaultCanvas(w http.ResponseWriter, r *http.Request) {
	var req setDefaultCanvasRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	c, err := s.svc.SetDefaultCanvas(r.Context(), httputil.PathString(r, "workspace"), req.CanvasID, actor(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, c)
}
