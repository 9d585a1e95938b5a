package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/atrium/pkg/httputil"
	"github.com/platinummonkey/atrium/pkg/identity"
	"github.com/platinummonkey/atrium/pkg/middleware"
	"github.com/platinummonkey/atrium/pkg/observability"
	"github.com/platinummonkey/atrium/pkg/service"
)

const maxRequestBytes = 1 << 20

// Server represents our API server
type Server struct {
	svc     *service.Service
	router  *mux.Router
	auth    *middleware.BearerAuth
	limiter middleware.Limiter
	logger  logrus.FieldLogger
	metrics *observability.Metrics
}

// NewServer creates a new API server. A nil limiter uses an in-process limiter.
func NewServer(svc *service.Service, verifier identity.TokenVerifier, limiter middleware.Limiter,
	logger logrus.FieldLogger, metrics *observability.Metrics) *Server {

	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if limiter == nil {
		limiter = middleware.NewLocalLimiter(middleware.TokenRateLimitConfig(), 0)
	}
	s := &Server{
		svc:     svc,
		router:  mux.NewRouter(),
		auth:    middleware.NewBearerAuth(verifier, svc.Directory(), logger),
		limiter: limiter,
		logger:  logger,
		metrics: metrics,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "not_found", "no such route")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))

	v1 := s.router.PathPrefix("/v1").Subrouter()

	// Token routes: anonymous allowed, rate limited per user or IP
	tokens := v1.PathPrefix("/invites/token/{token}").Subrouter()
	tokens.Use(s.auth.Optional().Handler)
	tokens.Use(middleware.RateLimit(s.limiter, s.logger))
	tokens.HandleFunc("", s.previewInvite).Methods(http.MethodGet)
	tokens.HandleFunc("/accept", s.acceptInvite).Methods(http.MethodPost)
	tokens.HandleFunc("/reject", s.rejectInvite).Methods(http.MethodPost)

	authed := v1.NewRoute().Subrouter()
	authed.Use(s.auth.Handler)

	// Workspaces
	authed.HandleFunc("/workspaces", s.createWorkspace).Methods(http.MethodPost)
	authed.HandleFunc("/workspaces/{workspace}", s.getWorkspace).Methods(http.MethodGet)
	authed.HandleFunc("/workspaces/{workspace}", s.deleteWorkspace).Methods(http.MethodDelete)
	authed.HandleFunc("/workspaces/{workspace}/authorize", s.authorize).Methods(http.MethodPost)

	// Members
	authed.HandleFunc("/workspaces/{workspace}/members", s.listMembers).Methods(http.MethodGet)
	authed.HandleFunc("/workspaces/{workspace}/members/{user}/role", s.assignRole).Methods(http.MethodPut)
	authed.HandleFunc("/workspaces/{workspace}/members/{user}/permissions/grant", s.grantPermissions).Methods(http.MethodPost)
	authed.HandleFunc("/workspaces/{workspace}/members/{user}/permissions/revoke", s.revokePermissions).Methods(http.MethodPost)
	authed.HandleFunc("/workspaces/{workspace}/members/{user}", s.removeMember).Methods(http.MethodDelete)

	// Canvases
	authed.HandleFunc("/workspaces/{workspace}/canvases", s.listCanvases).Methods(http.MethodGet)
	authed.HandleFunc("/workspaces/{workspace}/canvases", s.createCanvas).Methods(http.MethodPost)
	authed.HandleFunc("/workspaces/{workspace}/canvases/{canvas}", s.updateCanvas).Methods(http.MethodPatch)
	authed.HandleFunc("/workspaces/{workspace}/canvases/{canvas}", s.deleteCanvas).Methods(http.MethodDelete)
	authed.HandleFunc("/workspaces/{workspace}/default-canvas", s.setDefaultCanvas).Methods(http.MethodPut)

	// Invites
	authed.HandleFunc("/workspaces/{workspace}/invites", s.listInvites).Methods(http.MethodGet)
	authed.HandleFunc("/workspaces/{workspace}/invites", s.createInvite).Methods(http.MethodPost)
	authed.HandleFunc("/invites/{invite}", s.cancelInvite).Methods(http.MethodDelete)

	// Current user
	authed.HandleFunc("/me/permissions", s.myPermissions).Methods(http.MethodGet)
	authed.HandleFunc("/me/redirect", s.myRedirect).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler without the outer middleware
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the router wrapped with tracing, request ids, logging, panic recovery and
// body limits
func (s *Server) Handler() http.Handler {
	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
		httputil.MaxBytesMiddleware(maxRequestBytes),
	)
	return otelhttp.NewHandler(chain(s.router), "atrium.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method
		}))
}

// actor returns the authenticated user; the auth middleware guarantees one on authed routes
func actor(r *http.Request) *identity.User {
	return middleware.UserFromContext(r.Context())
}
