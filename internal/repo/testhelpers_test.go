package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// newTestDB opens a unique in-memory database per test (keyed by the test
// name to avoid schema leakage across tests) and migrates the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// seedSubscriber inserts a subscriber row directly.
func seedSubscriber(t *testing.T, db *gorm.DB, email, status string) {
	t.Helper()
	if err := UpsertSubscriber(context.Background(), db, email, "Test Subscriber"); err != nil {
		t.Fatalf("seed subscriber %s: %v", email, err)
	}
	if status == domain.StatusConfirmed {
		if err := ConfirmSubscriber(context.Background(), db, email); err != nil {
			t.Fatalf("confirm subscriber %s: %v", email, err)
		}
	}
}

// seedIssue inserts an issue and returns its ID.
func seedIssue(t *testing.T, db *gorm.DB) string {
	t.Helper()
	id, err := InsertIssue(context.Background(), db, "Issue #1", "<p>H</p>", "H")
	if err != nil {
		t.Fatalf("seed issue: %v", err)
	}
	return id
}

// seedTask inserts one delivery task row directly, optionally pre-claimed.
func seedTask(t *testing.T, db *gorm.DB, issueID, email string, enqueuedAt time.Time, attempts int, claimedAt *time.Time) {
	t.Helper()
	task := &domain.DeliveryTask{
		NewsletterIssueID: issueID,
		SubscriberEmail:   email,
		EnqueuedAt:        enqueuedAt,
		Attempts:          attempts,
		ClaimedAt:         claimedAt,
	}
	if err := db.Create(task).Error; err != nil {
		t.Fatalf("seed task %s/%s: %v", issueID, email, err)
	}
}
