package handlers

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// ErrInvalidTokenHash is returned for a configured hash bcrypt cannot read.
var ErrInvalidTokenHash = errors.New("auth: admin token hash is not a bcrypt hash")

// BearerAuth checks "Authorization: Bearer <token>" against a bcrypt hash.
// A zero hash disables the check.
type BearerAuth struct {
	hash []byte
}

// NewBearerAuth creates a new authenticator. An empty hash disables auth.
func NewBearerAuth(hash string) (*BearerAuth, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return &BearerAuth{}, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, errors.Join(ErrInvalidTokenHash, err)
	}
	return &BearerAuth{hash: []byte(hash)}, nil
}

// Enabled reports whether requests are checked.
func (a *BearerAuth) Enabled() bool {
	return len(a.hash) > 0
}

// Verify reports whether token matches the configured hash.
func (a *BearerAuth) Verify(token string) bool {
	if !a.Enabled() {
		return true
	}
	return bcrypt.CompareHashAndPassword(a.hash, []byte(token)) == nil
}

// Middleware rejects requests without a valid bearer token.
func (a *BearerAuth) Middleware(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="cf-progress-hub"`)
			writeError(w, http.StatusUnauthorized, "missing_token", "Bearer token is required")
			return
		}
		if !a.Verify(token) {
			writeError(w, http.StatusUnauthorized, "invalid_token", "Invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(auth[len(prefix):])
	return token, token != ""
}

// ══════════════════════════════════════════════════════════════════════════════
// SECURITY HEADERS MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// SecurityHeadersMiddleware adds security-related headers.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST SIZE LIMIT MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// RequestSizeLimitMiddleware limits the size of request bodies. A
// non-positive limit disables it.
func RequestSizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if maxBytes <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// writeError writes the error envelope used by the API.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"success":false,"error":{"code":"` + code + `","message":"` + message + `"}}` + "\n"))
}
