package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// okHandler answers 200 "ok".
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
})

func call(t *testing.T, mw func(http.Handler) http.Handler, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/zones/a.b", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mw(okHandler).ServeHTTP(rec, req)
	return rec
}

func TestAPIKey_ModeNone_PassesThrough(t *testing.T) {
	// No key in request; should still pass because mode != "apikey".
	rec := call(t, APIKey("none", "x-api-key", "secret"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestAPIKey_EmptyKey_PassesThrough(t *testing.T) {
	// key="" means auth is not configured → allow all.
	rec := call(t, APIKey("apikey", "x-api-key", ""), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKey_CorrectKey_Passes(t *testing.T) {
	rec := call(t, APIKey("apikey", "x-api-key", "supersecret"),
		map[string]string{"X-Api-Key": "supersecret"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKey_BearerToken_Passes(t *testing.T) {
	rec := call(t, APIKey("apikey", "x-api-key", "supersecret"),
		map[string]string{"Authorization": "Bearer supersecret"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKey_WrongKey_Unauthorized(t *testing.T) {
	rec := call(t, APIKey("apikey", "x-api-key", "supersecret"),
		map[string]string{"X-Api-Key": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEqual(t, "ok", rec.Body.String(), "handler ran despite bad key")
}

func TestAPIKey_MissingHeader_Unauthorized(t *testing.T) {
	rec := call(t, APIKey("apikey", "x-api-key", "supersecret"), nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
}

func TestAPIKey_CustomHeader(t *testing.T) {
	mw := APIKey("apikey", "x-tw-key", "k")
	assert.Equal(t, http.StatusOK, call(t, mw, map[string]string{"X-Tw-Key": "k"}).Code)
	// The default header name is not consulted when a custom one is set.
	assert.Equal(t, http.StatusUnauthorized, call(t, mw, map[string]string{"X-Api-Key": "k"}).Code)
}
