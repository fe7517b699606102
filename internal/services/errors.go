// Package services defines the business logic for publishing newsletter
// issues. This file centralizes common service-level error values so that
// they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrInvalidContent is returned when a publish command is missing its
	// title or both rendered bodies.
	ErrInvalidContent = errors.New("issue content is incomplete")

	// ErrInProgress is returned when another request holds the fingerprint
	// and did not complete within the polling budget. The caller may retry
	// later; the side effects were not re-executed.
	ErrInProgress = errors.New("publish already in progress for this idempotency key")
)
