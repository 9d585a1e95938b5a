package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/atrium/pkg/contextkeys"
	"github.com/platinummonkey/atrium/pkg/httputil"
	"github.com/platinummonkey/atrium/pkg/identity"
	"github.com/platinummonkey/atrium/pkg/observability"
)

// UserResolver maps verified claims to a directory user, creating it on first sight
type UserResolver interface {
	Resolve(ctx context.Context, claims identity.Claims) (*identity.User, error)
}

// BearerAuth authenticates requests with an ID token in the Authorization header
type BearerAuth struct {
	verifier identity.TokenVerifier
	users    UserResolver
	logger   logrus.FieldLogger
	optional bool
}

// NewBearerAuth creates the authentication middleware
func NewBearerAuth(verifier identity.TokenVerifier, users UserResolver, logger logrus.FieldLogger) *BearerAuth {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &BearerAuth{verifier: verifier, users: users, logger: logger}
}

// Optional returns a copy that lets requests without a token through anonymously
func (m *BearerAuth) Optional() *BearerAuth {
	c := *m
	c.optional = true
	return &c
}

// Handler wraps an HTTP handler with authentication
func (m *BearerAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		// Format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		ctx := r.Context()
		claims, err := m.verifier.Verify(ctx, strings.TrimSpace(parts[1]))
		if err != nil {
			observability.FromContext(ctx, m.logger).WithError(err).Debug("Token verification failed")
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		user, err := m.users.Resolve(ctx, claims)
		if err != nil {
			observability.FromContext(ctx, m.logger).WithError(err).Error("Failed to resolve user")
			httputil.WriteError(w, err)
			return
		}

		ctx = contextkeys.WithUser(ctx, user)
		ctx = contextkeys.WithUserID(ctx, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFromContext returns the authenticated user, or nil for anonymous requests
func UserFromContext(ctx context.Context) *identity.User {
	user, _ := contextkeys.GetUser(ctx).(*identity.User)
	return user
}
