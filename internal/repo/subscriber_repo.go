// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the subscriber roster consumed by the
// outbox insert. Subscription sign-up and confirmation are driven upstream;
// the helpers here keep the roster writes idempotent.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// UpsertSubscriber records a subscription attempt. Re-subscribing an email
// that already exists is treated as success and leaves the existing row
// (including its status) untouched.
func UpsertSubscriber(ctx context.Context, db *gorm.DB, email, name string) error {
	sub := &domain.Subscriber{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Status:       domain.StatusPendingConfirmation,
		SubscribedAt: time.Now().UTC(),
	}
	err := db.WithContext(ctx).Create(sub).Error
	if err != nil && isUniqueViolation(err) {
		return nil
	}
	return err
}

// ConfirmSubscriber flips a subscriber to confirmed, making them eligible
// for future issues. Missing emails return ErrNotFound; confirming twice is
// a no-op success.
func ConfirmSubscriber(ctx context.Context, db *gorm.DB, email string) error {
	res := db.WithContext(ctx).
		Model(&domain.Subscriber{}).
		Where("email = ?", email).
		Update("status", domain.StatusConfirmed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListConfirmedEmails returns the addresses of all currently confirmed
// subscribers, a point-in-time snapshot of the delivery audience.
func ListConfirmedEmails(ctx context.Context, db *gorm.DB) ([]string, error) {
	var emails []string
	err := db.WithContext(ctx).
		Model(&domain.Subscriber{}).
		Where("status = ?", domain.StatusConfirmed).
		Order("email").
		Pluck("email", &emails).Error
	return emails, err
}
