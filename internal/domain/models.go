// Package domain defines the persistence models for subscribers, newsletter
// issues, and delivery tasks. These types are mapped with GORM and form the
// core data layer of the newsletter backend.
package domain

import (
	"time"
)

// Subscriber statuses. Only confirmed subscribers receive newsletter issues.
const (
	StatusPendingConfirmation = "pending_confirmation"
	StatusConfirmed           = "confirmed"
)

// Subscriber represents a member of the mailing list. New subscribers start
// in pending_confirmation and become eligible for delivery only once the
// (upstream) confirmation flow flips them to confirmed.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Email: unique address; the delivery queue references it directly.
//   - Name: display name, stored verbatim (validated upstream).
//   - Status: pending_confirmation or confirmed (enforced by DB constraint).
//   - SubscribedAt: when the subscription was first recorded.
type Subscriber struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	Email        string    `json:"email"         gorm:"type:varchar(320);not null;uniqueIndex:ux_subscribers_email"`
	Name         string    `json:"name"          gorm:"type:varchar(255);not null"`
	Status       string    `json:"status"        gorm:"type:varchar(32);not null;check:status IN ('pending_confirmation','confirmed')"`
	SubscribedAt time.Time `json:"subscribed_at"`
}

// TableName returns the database table name for Subscriber.
func (Subscriber) TableName() string { return "subscribers" }

// NewsletterIssue is one published edition of the newsletter. It is created
// exactly once per successful publish command and never mutated afterwards;
// the delivery queue references it by ID until every recipient is drained.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Title: subject line used for outbound mail.
//   - HTMLContent / TextContent: the two rendered bodies sent to recipients.
//   - PublishedAt: when the publish command was accepted.
type NewsletterIssue struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	Title       string    `json:"title"        gorm:"type:varchar(255);not null"`
	HTMLContent string    `json:"html_content" gorm:"type:text;not null"`
	TextContent string    `json:"text_content" gorm:"type:text;not null"`
	PublishedAt time.Time `json:"published_at"`
}

// TableName returns the database table name for NewsletterIssue.
func (NewsletterIssue) TableName() string { return "newsletter_issues" }

// DeliveryTask is one pending outbound email: issue X to recipient Y. Rows
// are inserted by the publish transaction (one per confirmed subscriber) and
// removed by the worker pool on confirmed delivery or poison drop.
//
// The composite primary key guarantees at most one task per recipient per
// issue. ClaimedAt implements a lease: a worker stamps it when it takes a
// row, and other workers skip rows whose lease has not yet expired. A lease
// left behind by a crashed worker expires and the row becomes claimable
// again.
type DeliveryTask struct {
	NewsletterIssueID string     `json:"newsletter_issue_id" gorm:"type:char(36);primaryKey"`
	SubscriberEmail   string     `json:"subscriber_email"    gorm:"type:varchar(320);primaryKey"`
	EnqueuedAt        time.Time  `json:"enqueued_at"         gorm:"index"`
	Attempts          int        `json:"attempts"            gorm:"not null;default:0"`
	ClaimedAt         *time.Time `json:"claimed_at,omitempty"`

	// Issue is the parent edition. Tasks are cascade-deleted if the issue
	// is ever removed.
	Issue NewsletterIssue `json:"-" gorm:"foreignKey:NewsletterIssueID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for DeliveryTask.
func (DeliveryTask) TableName() string { return "issue_delivery_queue" }
