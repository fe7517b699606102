package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

func TestUpsertSubscriberIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := UpsertSubscriber(ctx, db, "alice@example.com", "Alice"); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := ConfirmSubscriber(ctx, db, "alice@example.com"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// Re-subscribing must not reset the confirmed status.
	if err := UpsertSubscriber(ctx, db, "alice@example.com", "Alice Again"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	emails, err := ListConfirmedEmails(ctx, db)
	if err != nil {
		t.Fatalf("list confirmed: %v", err)
	}
	if len(emails) != 1 || emails[0] != "alice@example.com" {
		t.Fatalf("confirmed emails: got %v", emails)
	}
}

func TestConfirmSubscriberMissing(t *testing.T) {
	db := newTestDB(t)

	err := ConfirmSubscriber(context.Background(), db, "ghost@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestListConfirmedEmails(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedSubscriber(t, db, "carol@example.com", domain.StatusConfirmed)
	seedSubscriber(t, db, "bob@example.com", domain.StatusConfirmed)
	seedSubscriber(t, db, "pending@example.com", domain.StatusPendingConfirmation)

	emails, err := ListConfirmedEmails(ctx, db)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(emails) != 2 || emails[0] != "bob@example.com" || emails[1] != "carol@example.com" {
		t.Fatalf("got %v, want [bob@example.com carol@example.com]", emails)
	}
}
