package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func limitedRouter(rps float64, burst int, pre ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	for _, h := range pre {
		r.Use(h)
	}
	rl := NewRateLimiter(rps, burst, KeyByUserOrIP())
	r.Use(rl.Handler())
	r.POST("/admin/newsletters", func(c *gin.Context) { c.Status(http.StatusSeeOther) })
	return r
}

func post(r *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/newsletters", nil))
	return w
}

func TestRateLimiterExhaustsBurst(t *testing.T) {
	r := limitedRouter(0.0001, 2)

	for i := 0; i < 2; i++ {
		if w := post(r); w.Code != http.StatusSeeOther {
			t.Fatalf("request %d: got %d, want 303", i, w.Code)
		}
	}

	w := post(r)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("over-budget request: got %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("429 must carry Retry-After")
	}
	if !strings.Contains(w.Body.String(), "rate_limited") {
		t.Fatalf("429 body: %q", w.Body.String())
	}
}

func TestRateLimiterKeysAreIsolated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rl := NewRateLimiter(0.0001, 1, KeyByUserOrIP())
	r.Use(func(c *gin.Context) {
		c.Set("userID", c.GetHeader("X-User-ID"))
		c.Next()
	}, rl.Handler())
	r.POST("/admin/newsletters", func(c *gin.Context) { c.Status(http.StatusSeeOther) })

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/admin/newsletters", nil)
		req.Header.Set("X-User-ID", user)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("alice"); code != http.StatusSeeOther {
		t.Fatalf("alice first: got %d, want 303", code)
	}
	if code := send("alice"); code != http.StatusTooManyRequests {
		t.Fatalf("alice second: got %d, want 429", code)
	}
	// A different identity draws from its own bucket.
	if code := send("bob"); code != http.StatusSeeOther {
		t.Fatalf("bob first: got %d, want 303", code)
	}
}

func TestRateLimiterReplayBypass(t *testing.T) {
	// Near-zero budget with burst 1: without the bypass, only the first
	// request could pass.
	markReplay := func(c *gin.Context) { c.Set(ctxKeyIdemReplay, true); c.Next() }
	r := limitedRouter(0.0001, 1, markReplay)

	for i := 0; i < 3; i++ {
		if w := post(r); w.Code != http.StatusSeeOther {
			t.Fatalf("replay %d: got %d, want 303", i, w.Code)
		}
	}
}

func TestRateLimiterBypassViaIdempotencyLookup(t *testing.T) {
	// Full wiring: the validator's lookup reports a completed submission and
	// the limiter lets the replay through even with its budget spent.
	lookup := func(context.Context, string, string) (bool, error) { return true, nil }
	r := limitedRouter(0.0001, 1, IdempotencyValidator(lookup))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/admin/newsletters", nil)
		req.Header.Set(HeaderIdempotencyKey, "replayed-key")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusSeeOther {
			t.Fatalf("replay %d: got %d, want 303", i, w.Code)
		}
	}
}

func TestNewRateLimiterCoercesBurst(t *testing.T) {
	rl := NewRateLimiter(1, 0, KeyByUserOrIP())
	if rl.burst != 1 {
		t.Fatalf("burst: got %d, want 1", rl.burst)
	}
}
