package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubpay/pkg/requestcontext"
	"clubpay/pkg/testutil"
)

const signingKey = "test-signing-key"

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestRequestID_ReusesOrMints(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-1", seen)
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "req-1", seen)
}

func TestRecover_Returns500(t *testing.T) {
	r := chi.NewRouter()
	Common(r, newLogger(), nil)
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}

func TestRequireAdmin(t *testing.T) {
	validator := NewTokenValidator(signingKey, "")
	var subject string
	h := RequireAdmin(validator, newLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = requestcontext.AdminSubject(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"wrong key", "Bearer " + testutil.SignAdminToken(t, "other-key", "ops", AdminRole), http.StatusUnauthorized},
		{"no admin role", "Bearer " + testutil.SignAdminToken(t, signingKey, "fan", "member"), http.StatusForbidden},
		{"admin", "Bearer " + testutil.SignAdminToken(t, signingKey, "ops", AdminRole), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/broadcasts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tt.status, rec.Code)
		})
	}
	assert.Equal(t, "ops", subject)
}

func TestTokenValidator_Unconfigured(t *testing.T) {
	_, err := NewTokenValidator("", "").ValidateToken("x")
	require.Error(t, err)
}
