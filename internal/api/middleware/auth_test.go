package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/periodical/internal/core"
)

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakeKeyLookup struct {
	hash string
}

func (f *fakeKeyLookup) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	return fakeRow{scan: func(dest ...any) error {
		if args[0] != f.hash {
			return pgx.ErrNoRows
		}
		*(dest[0].(*string)) = "key-1"
		*(dest[1].(*[]string)) = []string{"backups:read"}
		return nil
	}}
}

func okHandler(seen **APIKeyIdentity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = GetIdentity(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth_MissingKey(t *testing.T) {
	// Auth checks the header before any DB lookup, so a nil lookup is safe here.
	handler := Auth(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/v1/backups", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "missing API key", body["error"])
}

func TestAuth_ValidKey(t *testing.T) {
	var seen *APIKeyIdentity
	handler := Auth(&fakeKeyLookup{hash: core.HashAPIKey("pmk_good")})(okHandler(&seen))

	req := httptest.NewRequest("GET", "/api/v1/backups", nil)
	req.Header.Set("Authorization", "Bearer pmk_good")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "key-1", seen.ID)
	assert.Equal(t, []string{"backups:read"}, seen.Scopes)
}

func TestAuth_UnknownKey(t *testing.T) {
	var seen *APIKeyIdentity
	handler := Auth(&fakeKeyLookup{hash: core.HashAPIKey("pmk_good")})(okHandler(&seen))

	req := httptest.NewRequest("GET", "/api/v1/backups", nil)
	req.Header.Set("X-API-Key", "pmk_bad")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, seen)
}

func TestExtractAPIKey(t *testing.T) {
	tests := []struct {
		name   string
		auth   string
		apiKey string
		want   string
	}{
		{"bearer token", "Bearer pmk_abc123", "", "pmk_abc123"},
		{"empty", "", "", ""},
		{"no prefix", "pmk_abc123", "", ""},
		{"basic auth ignored", "Basic dXNlcjpwYXNz", "", ""},
		{"x-api-key header", "", "pmk_header", "pmk_header"},
		{"bearer wins", "Bearer pmk_bearer", "pmk_header", "pmk_bearer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			if tt.apiKey != "" {
				req.Header.Set("X-API-Key", tt.apiKey)
			}
			assert.Equal(t, tt.want, extractAPIKey(req))
		})
	}
}

func TestHasScope(t *testing.T) {
	read := &APIKeyIdentity{Scopes: []string{"backups:read"}}
	admin := &APIKeyIdentity{Scopes: []string{"backups:admin"}}
	all := &APIKeyIdentity{Scopes: []string{"*:*"}}

	assert.True(t, HasScope(read, "backups", "read"))
	assert.False(t, HasScope(read, "backups", "write"))
	assert.True(t, HasScope(admin, "backups", "write"))
	assert.True(t, HasScope(all, "backups", "admin"))
	assert.False(t, HasScope(nil, "backups", "read"))
}

func TestRequireScope(t *testing.T) {
	handler := RequireScope("backups", "admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/api/v1/backups/restore", nil)
	req = req.WithContext(context.WithValue(req.Context(), APIKeyIdentityKey, &APIKeyIdentity{Scopes: []string{"backups:read"}}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "requires backups:admin")
}

func TestMaintenance(t *testing.T) {
	active := true
	handler := Maintenance(func() bool { return active }, "/api/v1/backups", "/healthz")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
	)

	serve := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		return rec
	}

	rec := serve("/api/v1/issues")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, serve("/api/v1/backups/history").Code)
	assert.Equal(t, http.StatusOK, serve("/api/v1/backups").Code)
	assert.Equal(t, http.StatusOK, serve("/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve("/api/v1/backupsX").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve("/healthzz").Code)

	active = false
	assert.Equal(t, http.StatusOK, serve("/api/v1/issues").Code)
}

func TestStatusWriter_Unwrap(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}
	assert.Same(t, rec, sw.Unwrap())
}
