package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/atrium/pkg/apperrors"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	err := WriteJSON(w, http.StatusOK, map[string]string{"message": "success"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		code    string
		message bool
	}{
		{apperrors.Validation("email is required"), http.StatusBadRequest, "validation", true},
		{apperrors.NotFound("workspace w1"), http.StatusNotFound, "not_found", true},
		{apperrors.Duplicate("pending invite"), http.StatusConflict, "duplicate", true},
		{apperrors.InvalidReference("no user"), http.StatusUnprocessableEntity, "invalid_reference", true},
		{apperrors.Expired("invite"), http.StatusGone, "expired_invite", true},
		{apperrors.Forbidden("missing perms"), http.StatusForbidden, "forbidden", true},
		{apperrors.Conflict("lost race"), http.StatusConflict, "conflict", true},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "internal", false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error)
			if tt.message {
				assert.Equal(t, tt.err.Error(), body.Message)
			} else {
				assert.Empty(t, body.Message)
				assert.NotContains(t, w.Body.String(), "pq:")
			}
		})
	}
}

func TestWriteUnauthorized(t *testing.T) {
	w := httptest.NewRecorder()
	WriteUnauthorized(w, "missing bearer token")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
	assert.Contains(t, w.Body.String(), "missing bearer token")
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	WriteNoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
