package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dav22-wa/uni-mood-share/internal/models"
)

// The authed limiter runs behind RequireAuth, so per-user limits must
// key on the session's user and never collapse onto the shared IP.
func TestAuthedLimitsKeyOnUser(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{}, AuthedLimits())

	user := &models.User{ID: uuid.New()}
	req := httptest.NewRequest(http.MethodPost, "/mood", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserContextKey, user))

	limit := rl.findLimit(req)
	if limit == nil {
		t.Fatal("POST /mood should carry a limit")
	}
	if got, want := limit.KeyFunc(req), "user:"+user.ID.String(); got != want {
		t.Errorf("key = %q, want %q", got, want)
	}

	// No session on the context degrades to the IP.
	anon := httptest.NewRequest(http.MethodPost, "/mood", nil)
	anon.RemoteAddr = "203.0.113.9:4242"
	if got := rl.findLimit(anon).KeyFunc(anon); got != "ip:203.0.113.9" {
		t.Errorf("anonymous key = %q", got)
	}
}

func TestPublicLimitsCoverRegisterOnly(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{}, PublicLimits())

	reg := httptest.NewRequest(http.MethodPost, "/register", nil)
	if rl.findLimit(reg) == nil {
		t.Error("POST /register should carry a limit")
	}
	mood := httptest.NewRequest(http.MethodPost, "/mood", nil)
	if rl.findLimit(mood) != nil {
		t.Error("authed endpoints are not the public limiter's business")
	}
}

func TestWhitelistExemptsIPAndCIDR(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{
		Whitelist: []string{"198.51.100.7", "10.0.0.0/8"},
	}, PublicLimits())

	for _, ip := range []string{"198.51.100.7", "10.1.2.3"} {
		if !rl.isWhitelisted(ip) {
			t.Errorf("%s should be whitelisted", ip)
		}
	}
	if rl.isWhitelisted("203.0.113.9") {
		t.Error("203.0.113.9 should not be whitelisted")
	}
}
