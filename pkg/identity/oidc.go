package identity

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/platinummonkey/atrium/pkg/apperrors"
)

// TokenVerifier turns a raw bearer token into identity claims
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (Claims, error)
}

// OIDCConfig configures ID token verification
type OIDCConfig struct {
	IssuerURL       string
	ClientID        string
	SkipIssuerCheck bool
}

// Validate checks the OIDC configuration
func (c OIDCConfig) Validate() error {
	if c.IssuerURL == "" {
		return fmt.Errorf("issuer_url is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	return nil
}

// OIDCVerifier verifies OpenID Connect ID tokens
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the issuer and builds a verifier. client, when non-nil, is used for
// discovery and key fetches.
func NewOIDCVerifier(ctx context.Context, cfg OIDCConfig, client *http.Client) (*OIDCVerifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{
			ClientID:        cfg.ClientID,
			SkipIssuerCheck: cfg.SkipIssuerCheck,
		}),
	}, nil
}

// NewOIDCVerifierWithKeySet builds a verifier against a fixed key set, skipping discovery
func NewOIDCVerifierWithKeySet(issuer, clientID string, keySet oidc.KeySet) *OIDCVerifier {
	return &OIDCVerifier{
		verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: clientID}),
	}
}

// Verify checks the token signature, issuer, audience and expiry and extracts the claims
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return Claims{}, apperrors.Forbidden("invalid ID token: %v", err)
	}

	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return Claims{}, apperrors.Validation("failed to parse claims: %v", err)
	}
	if claims.Subject == "" {
		claims.Subject = idToken.Subject
	}
	if err := claims.Validate(); err != nil {
		return Claims{}, err
	}
	return claims, nil
}
