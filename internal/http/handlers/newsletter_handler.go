// Newsletter HTTP handlers.
//
// This file exposes the publish endpoint:
//   - POST /admin/newsletters   (publish a newsletter issue to all confirmed subscribers)
//
// Handlers are transport-thin:
//   - extract the principal and the idempotency key (header or form field)
//   - validate & normalize the payload
//   - delegate to the application service (PublishService)
//   - replay stored responses byte-for-byte for duplicate submissions
//
// Idempotency:
// Every publish submission must carry an idempotency key. The same
// (user, key) pair always yields the same response; side effects run at
// most once. Replays additionally set `Idempotency-Replayed: true`.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/http/middleware"
	"github.com/tbourn/go-newsletter-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// PublishService defines the publish operation consumed by HTTP handlers.
//
// Implementations must be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type PublishService interface {
	// Publish executes the publish command idempotently and returns the
	// canonical (possibly replayed) HTTP-shaped result.
	Publish(ctx context.Context, userID, idempotencyKey string, content services.IssueContent) (*services.PublishResult, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the newsletter API. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	pubSvc PublishService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(pubSvc PublishService) *Handlers {
	return &Handlers{pubSvc: pubSvc}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// session middleware). If absent, it falls back to "X-User-ID" header (tests
// use it), and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// PublishNewsletterRequest is the payload for publishing an issue. It binds
// from JSON or an HTML form; browser forms additionally carry the
// idempotency key as a hidden idempotency_key field.
type PublishNewsletterRequest struct {
	// Title is used as the outbound email subject.
	Title string `json:"title" form:"title" binding:"required,min=1,max=255" example:"Issue #42"`
	// HTMLContent is the rendered HTML body.
	HTMLContent string `json:"html_content" form:"html_content" binding:"required,min=1" example:"<p>Hello!</p>"`
	// TextContent is the plain-text alternative body.
	TextContent string `json:"text_content" form:"text_content" binding:"required,min=1" example:"Hello!"`
}

//
// Handlers
//

// PublishNewsletter godoc
// @ID          publishNewsletter
// @Summary     Publish a newsletter issue
// @Description Records the issue, enqueues one delivery task per confirmed subscriber, and returns 303.
// @Description Requires an idempotency key (Idempotency-Key header or idempotency_key form field);
// @Description duplicate submissions replay the original response without re-executing side effects.
// @Tags        Newsletters
// @Accept      json
// @Accept      x-www-form-urlencoded
// @Produce     json
//
// @Param       X-User-ID        header  string  true   "Authenticated admin user"  example(admin)
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries (alphanumeric/dash, max 50 chars)"  example(abc123)
// @Param       body             body    handlers.PublishNewsletterRequest  true  "Issue payload"
//
// @Success     303  "Issue accepted; Location points at the admin newsletter page"
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed payload or idempotency key"
// @Failure     409  {object}  handlers.ErrorResponse  "A submission with this key is still being processed"
// @Failure     500  {object}  handlers.ErrorResponse  "Storage failure"
// @Router      /admin/newsletters [post]
func (h *Handlers) PublishNewsletter(c *gin.Context) {
	ctx := c.Request.Context()

	// The validated key, when the middleware saw one. Submissions without a
	// key are rejected here: without it the command cannot be retried safely.
	idemKey, ok := middleware.GetIdempotencyKey(c)
	if !ok {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "idempotency key required")
		return
	}

	var req PublishNewsletterRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title, html_content and text_content are required")
		return
	}

	result, err := h.pubSvc.Publish(ctx, userID(c), idemKey, services.IssueContent{
		Title:       strings.TrimSpace(req.Title),
		HTMLContent: req.HTMLContent,
		TextContent: req.TextContent,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidIdempotencyKey):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid idempotency key")
		case errors.Is(err, services.ErrInvalidContent):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title, html_content and text_content are required")
		case errors.Is(err, services.ErrInProgress):
			fail(c, http.StatusConflict, ErrCodeConflict, "publish already in progress for this idempotency key, retry later")
		default:
			fail(c, http.StatusInternalServerError, ErrCodePublishFailed, err.Error())
		}
		return
	}

	if result.Replayed {
		c.Header("Idempotency-Replayed", "true")
	}
	writeSaved(c, result.Response)
}
