// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency-key extraction and validation for the
// publish endpoint. Clients supply the key either as an Idempotency-Key
// header or as an idempotency_key form field (browser forms carry it as a
// hidden input). The middleware validates the key's shape, stashes the
// normalized value in the request context, and optionally performs a
// user-defined lookup to flag replays of already completed submissions so
// downstream components (rate limiter) can skip limiting for them.
//
// Coordination itself — sentinel insert, wait, replay — is owned by the
// service layer; the middleware never touches side effects.
package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// HeaderIdempotencyKey is the canonical request header that clients use to
// convey an idempotency key for unsafe operations (e.g., POST).
//
// The value is expected to be stable for a given logical submission so that
// retries (network, client, or server initiated) can be safely deduplicated.
const HeaderIdempotencyKey = "Idempotency-Key"

// formIdempotencyKey is the form-field fallback used by browser submissions.
const formIdempotencyKey = "idempotency_key"

// Context keys used internally to stash idempotency state.
// These keys are intentionally unexported and referenced via accessor helpers.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // bool: true when a stored replay exists
)

// GetIdempotencyKey returns the validated idempotency key stored in the Gin
// context by IdempotencyValidator. The second return value indicates presence.
//
// Handlers should prefer this function over reading the header directly.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the middleware detected that this request would
// replay a previously completed submission.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// ReplayLookup answers whether a completed response already exists for
// (userID, key). Implementations typically consult the idempotency table.
//
// Return exists=true when the prior response can be replayed; return an
// error only for lookup failures (which should not block normal processing).
type ReplayLookup func(ctx context.Context, userID, key string) (exists bool, err error)

// IdempotencyValidator extracts the idempotency key (header first, form
// field second), validates it, stashes it in the request context, and
// optionally checks for a prior completed submission via the supplied
// lookup. When a replay is detected, it marks the context so the rate
// limiter can skip limiting.
//
// Behavior:
//   - If no key is supplied: the middleware is a no-op; the handler decides
//     whether a key is mandatory for the route.
//   - If the key fails validation: responds 400 with a compact error body
//     before any storage is touched.
//   - If lookup indicates a replay: flags the request as a replay.
//   - Always invokes the next handler unless validation fails.
func IdempotencyValidator(lookup ReplayLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" && c.Request.Method == http.MethodPost {
			key = c.PostForm(formIdempotencyKey)
		}
		if key == "" {
			// Nothing to validate or stash; proceed.
			c.Next()
			return
		}
		if _, err := domain.NewIdempotencyKey(key); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "bad_idempotency_key",
				"message": "invalid idempotency key",
			})
			return
		}

		// Stash the normalized key for downstream use.
		c.Set(ctxKeyIdemKey, key)

		// Flag detected replays; the rate limiter reads this via IsReplay and
		// lets them through without drawing a token.
		if lookup != nil {
			uid := userIDFromCtx(c)
			if exists, _ := lookup(c.Request.Context(), uid, key); exists {
				c.Set(ctxKeyIdemReplay, true)
			}
		}

		c.Next()
	}
}

// userIDFromCtx extracts the user identifier from the Gin context as set by
// upstream authentication middleware. A development-friendly "demo-user"
// fallback is returned when no identity is available.
func userIDFromCtx(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "demo-user"
}
