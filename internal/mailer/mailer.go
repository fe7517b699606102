// Package mailer defines the outbound mail transport consumed by the
// delivery worker pool, plus an SMTP implementation.
//
// The Client interface is deliberately narrow so that workers and tests can
// swap in fakes. Failures are split into two classes: permanent failures
// (wrapped with ErrPermanent) can never succeed and the caller should drop
// the task; everything else is transient and safe to retry.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	mail "github.com/wneessen/go-mail"
)

// ErrPermanent marks a delivery failure that retrying cannot fix, such as a
// malformed recipient address. Wrap with fmt.Errorf("%w: ...", ErrPermanent).
var ErrPermanent = errors.New("permanent delivery failure")

// IsPermanent reports whether err is a permanent delivery failure.
func IsPermanent(err error) bool { return errors.Is(err, ErrPermanent) }

// Email is one outbound message: a rendered newsletter issue addressed to a
// single recipient.
type Email struct {
	Recipient string
	Subject   string
	HTMLBody  string
	TextBody  string
}

// Client sends a single email. Implementations must be safe for concurrent
// use; the worker pool calls Send from multiple goroutines.
type Client interface {
	Send(ctx context.Context, email Email) error
}

// Config holds SMTP transport settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// Sender is the From address stamped on every outbound message.
	Sender string
	// Timeout bounds each SMTP dial+send. Zero means 30s.
	Timeout time.Duration
}

// SMTPClient delivers email over SMTP using go-mail.
type SMTPClient struct {
	client *mail.Client
	sender string
}

// NewSMTPClient validates the config and builds an SMTP-backed Client.
func NewSMTPClient(cfg Config) (*SMTPClient, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host must not be empty")
	}
	if cfg.Sender == "" {
		return nil, errors.New("smtp sender must not be empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPClient{client: client, sender: cfg.Sender}, nil
}

// Send delivers one email. A recipient address the transport refuses to
// accept is a permanent failure; network and server errors are transient
// and left to the caller's retry policy.
func (c *SMTPClient) Send(ctx context.Context, email Email) error {
	m := mail.NewMsg()
	if err := m.From(c.sender); err != nil {
		return fmt.Errorf("%w: sender %q: %v", ErrPermanent, c.sender, err)
	}
	if err := m.To(email.Recipient); err != nil {
		return fmt.Errorf("%w: recipient %q: %v", ErrPermanent, email.Recipient, err)
	}
	m.Subject(email.Subject)
	m.SetBodyString(mail.TypeTextPlain, email.TextBody)
	m.AddAlternativeString(mail.TypeTextHTML, email.HTMLBody)

	if err := c.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send to %q: %w", email.Recipient, err)
	}
	return nil
}
