package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.POST("/admin/newsletters", func(c *gin.Context) {
		c.Status(http.StatusSeeOther)
	})

	base := testutil.ToFloat64(httpRequests.WithLabelValues("POST", "/admin/newsletters", "303"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/newsletters", nil))
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status: got %d, want 303", w.Code)
	}

	got := testutil.ToFloat64(httpRequests.WithLabelValues("POST", "/admin/newsletters", "303"))
	if got != base+1 {
		t.Fatalf("request counter: got %v, want %v", got, base+1)
	}
	if inflight := testutil.ToFloat64(httpInflight); inflight != 0 {
		t.Fatalf("inflight gauge after completion: got %v, want 0", inflight)
	}
}

func TestMetricsUnmatchedRouteUsesRawPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())

	base := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/no-such-route", "404"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/no-such-route", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", w.Code)
	}

	got := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/no-such-route", "404"))
	if got != base+1 {
		t.Fatalf("fallback counter: got %v, want %v", got, base+1)
	}
}
