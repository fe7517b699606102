package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// captureLogs swaps the global logger for a buffer for the duration of the
// test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := log.Logger
	origLvl := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() {
		log.Logger = orig
		zerolog.SetGlobalLevel(origLvl)
	})
	return &buf
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("response should carry a generated X-Request-ID")
	}
}

func TestRequestIDPropagatesClientValue(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "client-rid-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-rid-1" {
		t.Fatalf("request id: got %q, want client-rid-1", got)
	}
}

func TestLoggerLevelsTrackStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogs(t)

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.POST("/admin/newsletters", func(c *gin.Context) { c.Status(http.StatusSeeOther) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	cases := []struct {
		method, path, level string
	}{
		{http.MethodPost, "/admin/newsletters", "info"},
		{http.MethodGet, "/missing", "warn"},
		{http.MethodGet, "/boom", "error"},
	}
	for _, tc := range cases {
		buf.Reset()
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))

		var line map[string]any
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("%s %s: parse log line %q: %v", tc.method, tc.path, buf.String(), err)
		}
		if line["level"] != tc.level {
			t.Fatalf("%s %s: level %v, want %s", tc.method, tc.path, line["level"], tc.level)
		}
		if line["path"] != tc.path || line["method"] != tc.method {
			t.Fatalf("log line fields: %v", line)
		}
	}
}

func TestLoggerFromIsRequestScoped(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogs(t)

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.POST("/admin/newsletters", func(c *gin.Context) {
		LoggerFrom(c).Info().Str("issue_id", "abc").Msg("issue accepted")
		c.Status(http.StatusSeeOther)
	})

	req := httptest.NewRequest(http.MethodPost, "/admin/newsletters", nil)
	req.Header.Set("X-Request-ID", "rid-77")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	out := buf.String()
	if !strings.Contains(out, `"issue_id":"abc"`) {
		t.Fatalf("handler log missing issue field: %s", out)
	}
	if !strings.Contains(out, `"request_id":"rid-77"`) {
		t.Fatalf("handler log missing correlation id: %s", out)
	}
}

func TestLoggerFromFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if lg := LoggerFrom(c); lg == nil {
		t.Fatal("LoggerFrom must never return nil")
	}
}

func TestRecoveryWritesErrorEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	captureLogs(t)

	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["code"] != "internal_error" || body["request_id"] == "" {
		t.Fatalf("error envelope: %v", body)
	}
}

func TestClip(t *testing.T) {
	if got := clip("short", 10); got != "short" {
		t.Fatalf("clip short: %q", got)
	}
	if got := clip("0123456789abc", 10); got != "0123456789…" {
		t.Fatalf("clip long: %q", got)
	}
	if got := clip("anything", 0); got != "anything" {
		t.Fatalf("clip disabled: %q", got)
	}
}
