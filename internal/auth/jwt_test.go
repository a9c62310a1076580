package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newIssuer() *TokenIssuer {
	return NewTokenIssuer([]byte("test-secret"), time.Hour)
}

func TestTokenIssuer_IssueVerifyRoundTrip(t *testing.T) {
	issuer := newIssuer()

	token, err := issuer.Issue("alice")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	identity, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if identity != "alice" {
		t.Errorf("identity = %q, want %q", identity, "alice")
	}
}

func TestTokenIssuer_VerifyRejectsBadTokens(t *testing.T) {
	issuer := newIssuer()

	t.Run("garbage token", func(t *testing.T) {
		if _, err := issuer.Verify("not-a-token"); err == nil {
			t.Error("Verify() expected error")
		}
	})

	t.Run("wrong signing key", func(t *testing.T) {
		other := NewTokenIssuer([]byte("other-secret"), time.Hour)
		token, err := other.Issue("alice")
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		if _, err := issuer.Verify(token); err == nil {
			t.Error("Verify() expected error for token signed with another key")
		}
	})

	t.Run("expired token", func(t *testing.T) {
		expired := NewTokenIssuer([]byte("test-secret"), -time.Hour)
		token, err := expired.Issue("alice")
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		if _, err := issuer.Verify(token); err == nil {
			t.Error("Verify() expected error for expired token")
		}
	})
}

func TestMiddleware(t *testing.T) {
	issuer := newIssuer()

	handler := Middleware(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := CallerFromContext(r.Context())
		if !ok {
			t.Error("no identity in context")
		}
		w.Write([]byte(identity))
	}))

	t.Run("valid token reaches the handler", func(t *testing.T) {
		token, err := issuer.Issue("alice")
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if rec.Body.String() != "alice" {
			t.Errorf("body = %q, want %q", rec.Body.String(), "alice")
		}
	})

	t.Run("missing header is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("malformed header is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic abc123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("invalid token is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer bogus")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})
}
