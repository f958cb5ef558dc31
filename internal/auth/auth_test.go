package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tickguard/internal/model"
)

func TestOpenModeAllowsEverything(t *testing.T) {
	m := NewMode("   ")
	if !m.Open() {
		t.Fatalf("expected open mode for blank secret")
	}
	if err := m.Check(""); err != nil {
		t.Fatalf("open mode rejected request: %v", err)
	}
}

func TestSecretModeCheck(t *testing.T) {
	m := NewMode("s3cret")
	if err := m.Check(""); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected missing credential, got %v", err)
	}
	if err := m.Check("Basic s3cret"); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected missing credential for non-bearer, got %v", err)
	}
	if err := m.Check("Bearer nope"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
	if err := m.Check("Bearer nope"); !errors.Is(err, model.ErrAuth) {
		t.Fatalf("expected auth error class")
	}
	if err := m.Check("Bearer s3cret"); err != nil {
		t.Fatalf("valid secret rejected: %v", err)
	}
}

func TestMiddlewareStatusCodes(t *testing.T) {
	m := NewMode("s3cret")
	var reached int
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached++
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		header string
		status int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer wrong", http.StatusForbidden},
		{"Bearer s3cret", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/events", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Fatalf("header %q: status %d, want %d", tc.header, rec.Code, tc.status)
		}
	}
	if reached != 1 {
		t.Fatalf("handler reached %d times, want 1", reached)
	}
}
