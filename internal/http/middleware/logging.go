// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file covers the request-logging triple the router installs first:
// RequestID for correlation, Logger for structured access logs plus a
// request-scoped zerolog.Logger, and Recovery to turn panics into JSON 500s.
// Downstream code pulls the scoped logger with LoggerFrom, e.g.
//
//	middleware.LoggerFrom(c).Info().Str("issue_id", id).Msg("issue accepted")
//
// Install order is RequestID, Logger, Recovery, so a panic is logged with
// the correlation id already attached.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	// maxLoggedQuery caps how much of a raw query string ends up in a log line.
	maxLoggedQuery = 2048
)

// RequestID reuses the client-supplied X-Request-ID when present, otherwise
// generates a fresh UUID. The id is stored in the Gin context and echoed on
// the response header so clients and server logs can be correlated.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Logger emits one structured access-log line per request and stashes a
// request-scoped logger in the context for handlers and services. The line's
// level tracks the outcome: error for 5xx (or when Gin collected errors),
// warn for 4xx, info otherwise.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			// Unrouted request (404): fall back to what the client sent.
			path = c.Request.URL.Path
		}

		lg := log.With().
			Str("request_id", c.GetString(requestIDKey)).
			Str("user_id", c.GetString("userID")).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("query", clip(c.Request.URL.RawQuery, maxLoggedQuery)).
			Int64("bytes_in", c.Request.ContentLength).
			Logger()
		c.Set(loggerKey, &lg)

		c.Next()

		out := lg.With().
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size()).
			Logger()

		switch {
		case len(c.Errors) > 0:
			out.Error().Str("errors", c.Errors.String()).Msg("request")
		case c.Writer.Status() >= http.StatusInternalServerError:
			out.Error().Msg("request")
		case c.Writer.Status() >= http.StatusBadRequest:
			out.Warn().Msg("request")
		default:
			out.Info().Msg("request")
		}
	}
}

// Recovery logs a recovered panic with its stack trace and answers with the
// standard JSON error envelope, unless a partial response already went out.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				rid := c.GetString(requestIDKey)
				log.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("request_id", rid).
					Msg("panic recovered")

				if c.Writer.Written() {
					c.AbortWithStatus(http.StatusInternalServerError)
					return
				}
				c.Header(requestIDHeader, rid)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"request_id": rid,
					"code":       "internal_error",
					"message":    "internal server error",
				})
			}
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger attached by Logger. Outside a
// logged request it returns the global logger, so callers never need a nil
// check.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	lg := log.With().Logger()
	return &lg
}

// clip truncates s to max bytes for logging. Byte-granular cuts are fine
// here; the value is diagnostic only.
func clip(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
