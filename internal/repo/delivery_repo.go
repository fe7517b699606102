// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file is the queue side of the delivery pipeline:
// workers claim one task at a time with a lease column, then either delete
// the row (delivered or poison) or release it for a later retry.
//
// SQLite has no SELECT .. FOR UPDATE SKIP LOCKED, so the claim uses the
// lease-column variant of the pattern: stamp claimed_at on one unclaimed
// (or lease-expired) row and return it. Concurrent workers each get a
// different row because the stamping UPDATE is atomic, and a lease left
// behind by a crashed worker expires and the row becomes claimable again.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// ClaimedTask is the worker's view of one claimed queue row.
type ClaimedTask struct {
	NewsletterIssueID string
	SubscriberEmail   string
	Attempts          int
}

// ClaimDeliveryTask claims the oldest available delivery task: a row that is
// unclaimed, or whose lease expired more than leaseTimeout ago. Returns
// ErrNotFound when the queue has nothing claimable.
func ClaimDeliveryTask(ctx context.Context, db *gorm.DB, leaseTimeout time.Duration) (*ClaimedTask, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-leaseTimeout)

	var rows []ClaimedTask
	err := db.WithContext(ctx).Raw(`
		UPDATE issue_delivery_queue
		SET claimed_at = ?
		WHERE rowid = (
			SELECT rowid FROM issue_delivery_queue
			WHERE claimed_at IS NULL OR claimed_at < ?
			ORDER BY enqueued_at
			LIMIT 1
		)
		RETURNING newsletter_issue_id, subscriber_email, attempts`,
		now, cutoff).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// DeleteDeliveryTask removes a task row, either because delivery was
// confirmed or because the task was dropped as poison.
func DeleteDeliveryTask(ctx context.Context, db *gorm.DB, issueID, email string) error {
	return db.WithContext(ctx).Exec(`
		DELETE FROM issue_delivery_queue
		WHERE newsletter_issue_id = ? AND subscriber_email = ?`,
		issueID, email).Error
}

// ReleaseDeliveryTask returns a claimed task to the queue after a transient
// delivery failure, clearing the lease and bumping the attempt counter so a
// later claim sees how often the task has already failed.
func ReleaseDeliveryTask(ctx context.Context, db *gorm.DB, issueID, email string) error {
	return db.WithContext(ctx).Exec(`
		UPDATE issue_delivery_queue
		SET claimed_at = NULL, attempts = attempts + 1
		WHERE newsletter_issue_id = ? AND subscriber_email = ?`,
		issueID, email).Error
}
