// Package auth resolves how telemetry senders and API callers authenticate.
//
// The mode is decided once at startup. An unset shared secret yields Open mode,
// which accepts every request and is reported as a warning by the caller.
package auth

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"tickguard/internal/model"
)

var (
	ErrMissingCredential = fmt.Errorf("%w: missing authorization header", model.ErrAuth)
	ErrInvalidCredential = fmt.Errorf("%w: invalid api key", model.ErrAuth)
)

type Mode struct {
	secret []byte
}

func NewMode(secret string) Mode {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return Mode{}
	}
	return Mode{secret: []byte(secret)}
}

func (m Mode) Open() bool {
	return len(m.secret) == 0
}

func (m Mode) String() string {
	if m.Open() {
		return "open"
	}
	return "secret"
}

// Check validates an Authorization header value against the mode.
func (m Mode) Check(header string) error {
	if m.Open() {
		return nil
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return ErrMissingCredential
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if subtle.ConstantTimeCompare([]byte(token), m.secret) != 1 {
		return ErrInvalidCredential
	}
	return nil
}

// Warn logs the startup warning for open mode.
func (m Mode) Warn(logger *slog.Logger, surface string) {
	if !m.Open() || logger == nil {
		return
	}
	logger.Warn("shared secret not set, allowing all requests", "surface", surface)
}

// Middleware rejects requests that fail Check: 401 for a missing bearer
// header, 403 for a wrong secret.
func (m Mode) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch err := m.Check(r.Header.Get("Authorization")); err {
		case nil:
			next.ServeHTTP(w, r)
		case ErrMissingCredential:
			writeError(w, http.StatusUnauthorized, "Missing authorization header")
		default:
			writeError(w, http.StatusForbidden, "Invalid API key")
		}
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, "{\"error\":%q}\n", msg)
}
