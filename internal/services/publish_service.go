// Package services – PublishService
//
// This file implements PublishService, the application-level component that
// owns the publish command for newsletter issues. It is two tightly coupled
// pieces:
//
//   - the command coordinator: decides per request whether to start new
//     processing, wait on an in-flight duplicate, or replay a saved
//     response, using the idempotency table's unique key as the only
//     mutual-exclusion primitive (no in-memory locks, so correctness holds
//     across processes);
//   - the outbox writer: inside the single transaction opened by the
//     coordinator, records the issue, enqueues one delivery task per
//     confirmed subscriber, and saves the canonical response. A crash or
//     error rolls all of it back together, sentinel included, so a retried
//     submission starts from a clean slate.
//
// No network I/O happens here; delivery is drained asynchronously by the
// worker pool.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// the user identifier and outcome.
package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

const (
	defaultPollInterval    = 100 * time.Millisecond
	defaultMaxPollAttempts = 10

	// acceptedLocation is where the browser is redirected after a publish.
	acceptedLocation = "/admin/newsletters"

	acceptedBody = `{"message":"The newsletter issue has been accepted - emails will go out shortly."}`
)

// IssueContent is the command-specific payload of a publish submission.
type IssueContent struct {
	Title       string
	HTMLContent string
	TextContent string
}

// PublishResult carries the HTTP-shaped outcome of a publish command.
type PublishResult struct {
	// Response is the canonical response for the fingerprint: freshly
	// built on first execution, read back verbatim on replay.
	Response *domain.SavedResponse
	// Replayed is true when the response was served from the cache without
	// re-executing side effects.
	Replayed bool
	// IssueID and Enqueued are set only on first execution.
	IssueID  string
	Enqueued int64
}

// PublishService coordinates idempotent publishing of newsletter issues.
type PublishService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// PollInterval is how long to wait between attempts when another
	// request holds the fingerprint. Zero means the default (100ms).
	PollInterval time.Duration
	// MaxPollAttempts bounds the contention wait before giving up with
	// ErrInProgress. Zero means the default (10).
	MaxPollAttempts int
}

// NewPublishService constructs a PublishService with default contention
// policy.
func NewPublishService(db *gorm.DB) *PublishService {
	return &PublishService{
		DB:              db,
		PollInterval:    defaultPollInterval,
		MaxPollAttempts: defaultMaxPollAttempts,
	}
}

// Publish executes the publish command for (userID, rawKey). For a given
// fingerprint the side effects run at most once and every caller receives
// the same response bytes.
//
// Errors: domain.ErrInvalidIdempotencyKey and ErrInvalidContent are
// user-correctable (no storage touched); ErrInProgress means the polling
// budget ran out while another request held the fingerprint; anything else
// is an unexpected storage failure.
func (s *PublishService) Publish(ctx context.Context, userID, rawKey string, content IssueContent) (*PublishResult, error) {
	tr := otel.Tracer("services/PublishService")
	ctx, span := tr.Start(ctx, "Publish",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	key, err := domain.NewIdempotencyKey(rawKey)
	if err != nil {
		return nil, err
	}
	if err := validateContent(content); err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		tx := s.DB.WithContext(ctx).Begin()
		if tx.Error != nil {
			return nil, tx.Error
		}

		err := repo.InsertPendingIdempotency(ctx, tx, userID, key)
		if err == nil {
			span.SetAttributes(attribute.String("publish.outcome", "processing"))
			return s.executeCommand(ctx, tx, userID, key, content)
		}
		tx.Rollback()

		if !errors.Is(err, repo.ErrDuplicate) && !isLockContention(err) {
			return nil, err
		}

		// The fingerprint is (or was) owned by another request. A completed
		// record means we replay; a bare sentinel means the owner is still
		// mid-flight and we back off. A vanished record means the owner
		// rolled back and the next loop iteration is free to acquire.
		rec, getErr := repo.GetIdempotency(ctx, s.DB, userID, key)
		if getErr != nil && !errors.Is(getErr, repo.ErrNotFound) {
			return nil, getErr
		}
		if rec != nil && rec.Completed() {
			resp, decErr := rec.Response()
			if decErr != nil {
				return nil, decErr
			}
			span.SetAttributes(attribute.String("publish.outcome", "replayed"))
			return &PublishResult{Response: resp, Replayed: true}, nil
		}

		if attempt+1 >= s.maxPollAttempts() {
			span.SetAttributes(attribute.String("publish.outcome", "in_progress"))
			return nil, ErrInProgress
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollInterval()):
		}
	}
}

// executeCommand runs the outbox write inside the open transaction that
// holds the sentinel, saves the canonical response, and commits. Any error
// rolls the whole transaction back, sentinel included.
func (s *PublishService) executeCommand(ctx context.Context, tx *gorm.DB, userID string, key domain.IdempotencyKey, content IssueContent) (*PublishResult, error) {
	var committed bool
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	issueID, err := repo.InsertIssue(ctx, tx, content.Title, content.HTMLContent, content.TextContent)
	if err != nil {
		return nil, err
	}

	enqueued, err := repo.EnqueueDeliveryTasks(ctx, tx, issueID)
	if err != nil {
		return nil, err
	}

	resp := acceptedResponse()
	if err := repo.SaveIdempotencyResponse(ctx, tx, userID, key, resp); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	committed = true

	log.Info().
		Str("user_id", userID).
		Str("issue_id", issueID).
		Int64("enqueued", enqueued).
		Msg("newsletter issue accepted")

	return &PublishResult{
		Response: resp,
		IssueID:  issueID,
		Enqueued: enqueued,
	}, nil
}

// acceptedResponse builds the canonical response cached for the
// fingerprint: a 303 back to the newsletter admin page.
func acceptedResponse() *domain.SavedResponse {
	return &domain.SavedResponse{
		Status: http.StatusSeeOther,
		Headers: []domain.HeaderPair{
			{Name: "Location", Value: acceptedLocation},
			{Name: "Content-Type", Value: "application/json; charset=utf-8"},
		},
		Body: []byte(acceptedBody),
	}
}

// validateContent rejects publish payloads missing a title or either body.
func validateContent(c IssueContent) error {
	if strings.TrimSpace(c.Title) == "" ||
		strings.TrimSpace(c.HTMLContent) == "" ||
		strings.TrimSpace(c.TextContent) == "" {
		return ErrInvalidContent
	}
	return nil
}

func (s *PublishService) pollInterval() time.Duration {
	if s.PollInterval > 0 {
		return s.PollInterval
	}
	return defaultPollInterval
}

func (s *PublishService) maxPollAttempts() int {
	if s.MaxPollAttempts > 0 {
		return s.MaxPollAttempts
	}
	return defaultMaxPollAttempts
}

// isLockContention reports whether err is SQLite writer contention. An open
// publish transaction holds the write lock, so a concurrent duplicate's
// sentinel insert can surface as busy/locked instead of a unique violation;
// both mean the same thing here: someone else owns the fingerprint. Matching
// is anchored on the driver's SQLITE_BUSY (5) and SQLITE_LOCKED (6) message
// forms so unrelated errors that merely mention "busy" are not swallowed.
func isLockContention(err error) bool {
	if err == nil {
		return false
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "database is locked") ||
		strings.Contains(low, "database table is locked") ||
		strings.Contains(low, "sqlite_busy") ||
		strings.Contains(low, "sqlite_locked")
}
