package mailer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestNewSMTPClientValidation(t *testing.T) {
	if _, err := NewSMTPClient(Config{Sender: "news@example.com"}); err == nil {
		t.Fatal("expected error for missing host")
	}
	if _, err := NewSMTPClient(Config{Host: "smtp.example.com"}); err == nil {
		t.Fatal("expected error for missing sender")
	}

	c, err := NewSMTPClient(Config{
		Host:    "smtp.example.com",
		Port:    587,
		Sender:  "news@example.com",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("valid config: %v", err)
	}
	if c == nil {
		t.Fatal("expected a client")
	}
}

func TestSendRejectsBadAddresses(t *testing.T) {
	c, err := NewSMTPClient(Config{Host: "smtp.example.com", Port: 587, Sender: "news@example.com"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	// A recipient the transport refuses is permanent: no retry can fix it.
	err = c.Send(context.Background(), Email{Recipient: "not an address", Subject: "s", TextBody: "t", HTMLBody: "<p>t</p>"})
	if err == nil {
		t.Fatal("expected error for malformed recipient")
	}
	if !IsPermanent(err) {
		t.Fatalf("malformed recipient should be permanent, got %v", err)
	}
}

func TestSendBadSenderIsPermanent(t *testing.T) {
	c, err := NewSMTPClient(Config{Host: "smtp.example.com", Port: 587, Sender: "not an address"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	err = c.Send(context.Background(), Email{Recipient: "ok@example.com", Subject: "s", TextBody: "t", HTMLBody: "<p>t</p>"})
	if !IsPermanent(err) {
		t.Fatalf("malformed sender should be permanent, got %v", err)
	}
}

func TestIsPermanent(t *testing.T) {
	if IsPermanent(nil) {
		t.Fatal("nil is not permanent")
	}
	if IsPermanent(errors.New("connection refused")) {
		t.Fatal("plain errors are transient")
	}
	wrapped := fmt.Errorf("mailbox gone: %w", ErrPermanent)
	if !IsPermanent(wrapped) {
		t.Fatal("wrapped ErrPermanent should be detected")
	}
}
