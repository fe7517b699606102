// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file covers newsletter issues and the outbox insert
// that enqueues one delivery task per confirmed subscriber inside the
// caller's transaction.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// InsertIssue stores a new newsletter issue within the caller's transaction
// and returns its generated ID.
func InsertIssue(ctx context.Context, tx *gorm.DB, title, htmlContent, textContent string) (string, error) {
	issue := &domain.NewsletterIssue{
		ID:          uuid.NewString(),
		Title:       title,
		HTMLContent: htmlContent,
		TextContent: textContent,
		PublishedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(issue).Error; err != nil {
		return "", err
	}
	return issue.ID, nil
}

// GetIssue fetches one issue by ID or returns ErrNotFound.
func GetIssue(ctx context.Context, db *gorm.DB, id string) (*domain.NewsletterIssue, error) {
	var issue domain.NewsletterIssue
	err := db.WithContext(ctx).Where("id = ?", id).First(&issue).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// EnqueueDeliveryTasks bulk-inserts one delivery task per currently
// confirmed subscriber, within the caller's transaction. The snapshot is
// taken at enqueue time; subscribers confirmed later are not retroactively
// included. Conflicts on the (issue, recipient) key are ignored, so the
// insert is safe to re-run for the same issue. Returns the number of tasks
// created.
func EnqueueDeliveryTasks(ctx context.Context, tx *gorm.DB, issueID string) (int64, error) {
	res := tx.WithContext(ctx).Exec(`
		INSERT INTO issue_delivery_queue (newsletter_issue_id, subscriber_email, enqueued_at, attempts)
		SELECT ?, email, ?, 0
		FROM subscribers
		WHERE status = ?
		ON CONFLICT (newsletter_issue_id, subscriber_email) DO NOTHING`,
		issueID, time.Now().UTC(), domain.StatusConfirmed)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// CountDeliveryTasks returns the number of queued tasks for an issue.
func CountDeliveryTasks(ctx context.Context, db *gorm.DB, issueID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.DeliveryTask{}).
		Where("newsletter_issue_id = ?", issueID).
		Count(&n).Error
	return n, err
}
