package identity

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/atrium/pkg/apperrors"
)

const testIssuer = "https://issuer.example.com"

func signToken(t *testing.T, key *rsa.PrivateKey, claims map[string]interface{}) string {
	t.Helper()
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: key}, nil)
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	jws, err := signer.Sign(payload)
	require.NoError(t, err)
	raw, err := jws.CompactSerialize()
	require.NoError(t, err)
	return raw
}

func newTestVerifier(t *testing.T) (*OIDCVerifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	return NewOIDCVerifierWithKeySet(testIssuer, "atrium", keySet), key
}

func TestOIDCVerifier_Verify(t *testing.T) {
	v, key := newTestVerifier(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).Unix()

	t.Run("valid token", func(t *testing.T) {
		raw := signToken(t, key, map[string]interface{}{
			"iss": testIssuer, "aud": "atrium", "exp": exp,
			"sub": "auth0|42", "email": "erin@example.com", "email_verified": true, "name": "Erin",
		})
		claims, err := v.Verify(ctx, raw)
		require.NoError(t, err)
		assert.Equal(t, Claims{Subject: "auth0|42", Email: "erin@example.com", EmailVerified: true, Name: "Erin"}, claims)
	})

	t.Run("wrong audience", func(t *testing.T) {
		raw := signToken(t, key, map[string]interface{}{
			"iss": testIssuer, "aud": "someone-else", "exp": exp, "sub": "x", "email": "x@example.com",
		})
		_, err := v.Verify(ctx, raw)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("expired", func(t *testing.T) {
		raw := signToken(t, key, map[string]interface{}{
			"iss": testIssuer, "aud": "atrium", "exp": time.Now().Add(-time.Hour).Unix(), "sub": "x", "email": "x@example.com",
		})
		_, err := v.Verify(ctx, raw)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("missing email", func(t *testing.T) {
		raw := signToken(t, key, map[string]interface{}{
			"iss": testIssuer, "aud": "atrium", "exp": exp, "sub": "x",
		})
		_, err := v.Verify(ctx, raw)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("foreign key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		raw := signToken(t, other, map[string]interface{}{
			"iss": testIssuer, "aud": "atrium", "exp": exp, "sub": "x", "email": "x@example.com",
		})
		_, err = v.Verify(ctx, raw)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})
}

func TestOIDCConfig_Validate(t *testing.T) {
	assert.NoError(t, OIDCConfig{IssuerURL: testIssuer, ClientID: "atrium"}.Validate())
	assert.EqualError(t, OIDCConfig{ClientID: "atrium"}.Validate(), "issuer_url is required")
	assert.EqualError(t, OIDCConfig{IssuerURL: testIssuer}.Validate(), "client_id is required")
}
