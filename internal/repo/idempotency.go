// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the response cache used to implement
// safe-retry semantics for the publish endpoint: a sentinel row inserted at
// the start of processing (unique primary key as the serialization point)
// and the saved response written in the same transaction as the command's
// side effects.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// ErrDuplicate indicates that an idempotency record already exists for the
// given (user_id, idempotency_key) fingerprint. This is the expected signal
// for duplicate submissions, not a failure.
var ErrDuplicate = errors.New("duplicate")

// InsertPendingIdempotency inserts the in-progress sentinel row for the
// fingerprint within the caller's transaction. A unique-key conflict means
// another request owns (or owned) the fingerprint and is reported as
// ErrDuplicate.
func InsertPendingIdempotency(ctx context.Context, tx *gorm.DB, userID string, key domain.IdempotencyKey) error {
	rec := &domain.IdempotencyRecord{
		UserID:         userID,
		IdempotencyKey: key.String(),
		CreatedAt:      time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetIdempotency returns the record for the fingerprint, sentinel or
// completed, or ErrNotFound. Callers distinguish the two states via
// (*domain.IdempotencyRecord).Completed.
func GetIdempotency(ctx context.Context, db *gorm.DB, userID string, key domain.IdempotencyKey) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	err := db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key.String()).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveIdempotencyResponse fills in the response columns on the sentinel row
// within the supplied transaction. It must run after every other side effect
// in that transaction; the caller commits. Completed records are never
// overwritten: updating a row that is missing or already has a response
// returns ErrNotFound.
func SaveIdempotencyResponse(ctx context.Context, tx *gorm.DB, userID string, key domain.IdempotencyKey, resp *domain.SavedResponse) error {
	headers, err := domain.EncodeHeaders(resp.Headers)
	if err != nil {
		return err
	}
	res := tx.WithContext(ctx).
		Model(&domain.IdempotencyRecord{}).
		Where("user_id = ? AND idempotency_key = ? AND response_status IS NULL", userID, key.String()).
		Updates(map[string]any{
			"response_status":  resp.Status,
			"response_headers": headers,
			"response_body":    resp.Body,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
