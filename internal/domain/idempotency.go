// Package domain defines the core persistence models for the application.
// This file holds the idempotency types used to make the publish command
// safe under retries: the validated client-supplied key, the persisted
// record keyed by (user_id, idempotency_key), and the saved HTTP response
// that duplicate submissions replay.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MaxIdempotencyKeyLen caps the accepted key length.
const MaxIdempotencyKeyLen = 50

// ErrInvalidIdempotencyKey is returned when a client-supplied key is empty,
// too long, or contains characters outside [A-Za-z0-9-].
var ErrInvalidIdempotencyKey = errors.New("invalid idempotency key")

// IdempotencyKey is a validated, client-supplied opaque string identifying
// one logical submission from a given user. Construct it with
// NewIdempotencyKey; the zero value is not valid.
type IdempotencyKey string

// NewIdempotencyKey validates the raw key and returns it as a typed value.
// Keys must be non-empty, at most MaxIdempotencyKeyLen characters, and
// limited to ASCII letters, digits, and dashes.
func NewIdempotencyKey(raw string) (IdempotencyKey, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidIdempotencyKey)
	}
	if len(raw) > MaxIdempotencyKeyLen {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidIdempotencyKey, MaxIdempotencyKeyLen)
	}
	for _, r := range raw {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-'
		if !ok {
			return "", fmt.Errorf("%w: character %q not allowed", ErrInvalidIdempotencyKey, r)
		}
	}
	return IdempotencyKey(raw), nil
}

// String returns the raw key.
func (k IdempotencyKey) String() string { return string(k) }

// HeaderPair is one recorded response header. Order is preserved so that a
// replayed response is byte-for-byte identical to the original.
type HeaderPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SavedResponse is the side-effect-free replay artifact for duplicate
// submissions: the exact status, headers, and body produced by the first
// successful execution of a command.
type SavedResponse struct {
	Status  int
	Headers []HeaderPair
	Body    []byte
}

// IdempotencyRecord is the persisted state of one command fingerprint
// (user_id, idempotency_key). A row with a nil ResponseStatus is the
// in-progress sentinel inserted at the start of processing; the unique
// primary key makes that insert the serialization point for duplicate
// submissions. Once the response columns are filled in, the record is
// complete and forever replay-only.
type IdempotencyRecord struct {
	UserID          string    `gorm:"type:varchar(64);primaryKey"`
	IdempotencyKey  string    `gorm:"type:varchar(50);primaryKey"`
	ResponseStatus  *int      `gorm:"type:INTEGER"`
	ResponseHeaders []byte    `gorm:"type:BLOB"` // JSON-encoded ordered []HeaderPair
	ResponseBody    []byte    `gorm:"type:BLOB"`
	CreatedAt       time.Time `gorm:"type:DATETIME NOT NULL"`
}

// TableName implements the GORM tabler interface.
func (IdempotencyRecord) TableName() string { return "idempotency" }

// Completed reports whether the record carries a saved response, as opposed
// to being an in-progress sentinel.
func (r *IdempotencyRecord) Completed() bool { return r.ResponseStatus != nil }

// Response decodes the stored response. It returns an error when called on
// an incomplete (sentinel) record or when the stored headers are corrupt.
func (r *IdempotencyRecord) Response() (*SavedResponse, error) {
	if !r.Completed() {
		return nil, errors.New("idempotency record has no saved response yet")
	}
	var headers []HeaderPair
	if len(r.ResponseHeaders) > 0 {
		if err := json.Unmarshal(r.ResponseHeaders, &headers); err != nil {
			return nil, fmt.Errorf("decode saved response headers: %w", err)
		}
	}
	return &SavedResponse{
		Status:  *r.ResponseStatus,
		Headers: headers,
		Body:    r.ResponseBody,
	}, nil
}

// EncodeHeaders serializes the ordered header list for storage.
func EncodeHeaders(headers []HeaderPair) ([]byte, error) {
	if len(headers) == 0 {
		return nil, nil
	}
	return json.Marshal(headers)
}
