package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/atrium/pkg/apperrors"
)

func TestParseJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	var p payload
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Roadmap"}`))
	require.NoError(t, ParseJSON(req, &p))
	assert.Equal(t, "Roadmap", p.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	assert.ErrorIs(t, ParseJSON(req, &p), apperrors.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nmae":"typo"}`))
	assert.ErrorIs(t, ParseJSON(req, &p), apperrors.ErrValidation)

	w := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`nope`))
	assert.False(t, ParseJSONOrError(w, req, &p))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPathString(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/workspaces/w1", nil)
	req = mux.SetURLVars(req, map[string]string{"workspace": "w1"})
	assert.Equal(t, "w1", PathString(req, "workspace"))
	assert.Empty(t, PathString(req, "canvas"))
}

func TestParseQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?position=3&status=pending&bad=x", nil)

	n, err := ParseQueryInt(req, "position", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = ParseQueryInt(req, "missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = ParseQueryInt(req, "bad", 0)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	assert.Equal(t, "pending", ParseQueryString(req, "status", ""))
	assert.Equal(t, "all", ParseQueryString(req, "other", "all"))
}
