package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

func TestInsertAndGetIssue(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := InsertIssue(ctx, db, "Launch Notes", "<p>hi</p>", "hi")
	if err != nil {
		t.Fatalf("insert issue: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated issue id")
	}

	issue, err := GetIssue(ctx, db, id)
	if err != nil {
		t.Fatalf("get issue: %v", err)
	}
	if issue.Title != "Launch Notes" || issue.HTMLContent != "<p>hi</p>" || issue.TextContent != "hi" {
		t.Fatalf("unexpected issue content: %+v", issue)
	}
	if issue.PublishedAt.IsZero() {
		t.Fatal("published_at should be set")
	}
}

func TestGetIssueNotFound(t *testing.T) {
	db := newTestDB(t)

	if _, err := GetIssue(context.Background(), db, "no-such-issue"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestEnqueueDeliveryTasksConfirmedOnly(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedSubscriber(t, db, "alice@example.com", domain.StatusConfirmed)
	seedSubscriber(t, db, "bob@example.com", domain.StatusConfirmed)
	seedSubscriber(t, db, "pending@example.com", domain.StatusPendingConfirmation)

	issueID := seedIssue(t, db)
	n, err := EnqueueDeliveryTasks(ctx, db, issueID)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if n != 2 {
		t.Fatalf("enqueued %d tasks, want 2", n)
	}

	count, err := CountDeliveryTasks(ctx, db, issueID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("queue holds %d tasks, want 2", count)
	}
}

func TestEnqueueDeliveryTasksRerunIsNoop(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedSubscriber(t, db, "alice@example.com", domain.StatusConfirmed)
	issueID := seedIssue(t, db)

	if _, err := EnqueueDeliveryTasks(ctx, db, issueID); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	n, err := EnqueueDeliveryTasks(ctx, db, issueID)
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if n != 0 {
		t.Fatalf("second enqueue created %d tasks, want 0", n)
	}

	count, err := CountDeliveryTasks(ctx, db, issueID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("queue holds %d tasks, want 1", count)
	}
}

func TestEnqueueDeliveryTasksEmptyAudience(t *testing.T) {
	db := newTestDB(t)

	issueID := seedIssue(t, db)
	n, err := EnqueueDeliveryTasks(context.Background(), db, issueID)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if n != 0 {
		t.Fatalf("enqueued %d tasks, want 0", n)
	}
}
