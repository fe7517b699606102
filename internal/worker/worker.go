// Package worker implements the delivery worker pool that drains the
// issue_delivery_queue table into actual outbound email.
//
// Each worker runs an independent loop: claim one task (lease-column claim,
// so concurrent workers get different rows), load the issue content,
// deliver through the mail transport, then ack. Success and poison both
// delete the row; transient failure releases it for a later claim, which
// gives at-least-once delivery. No DB lock is held across the network call.
//
// Shutdown is cooperative: Stop cancels the claim loop between iterations
// and waits for in-flight delivery attempts to complete.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/mailer"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

// deliveries counts task outcomes. Outcome is one of delivered, retried,
// dropped; cardinality stays fixed.
var deliveries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "newsletter_deliveries_total",
		Help: "Total number of delivery task outcomes.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(deliveries)
}

const (
	outcomeDelivered = "delivered"
	outcomeRetried   = "retried"
	outcomeDropped   = "dropped"
)

// Config holds the pool's runtime policy. Zero values fall back to the
// defaults noted per field.
type Config struct {
	// Workers is the number of concurrent delivery loops (default 2).
	Workers int
	// PollInterval is how long a worker sleeps when the queue is empty
	// (default 5s).
	PollInterval time.Duration
	// LeaseTimeout is how long a claim is honored before other workers may
	// reclaim the row, covering crashed workers (default 1m).
	LeaseTimeout time.Duration
	// MaxAttempts is the retry budget per task before it is dropped as
	// poison (default 5).
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.LeaseTimeout <= 0 {
		c.LeaseTimeout = time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	return c
}

// Pool is a set of long-running delivery workers over one queue.
type Pool struct {
	db   *gorm.DB
	mail mailer.Client
	cfg  Config

	started int32
	closed  int32
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool creates a worker pool bound to the given database handle and mail
// transport.
func NewPool(db *gorm.DB, mail mailer.Client, cfg Config) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		db:     db,
		mail:   mail,
		cfg:    cfg.withDefaults(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker goroutines. If Start is called multiple times,
// only the first call has an effect.
func (p *Pool) Start() {
	if !atomic.CompareAndSwapInt32(&p.started, 0, 1) {
		return
	}
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
}

// Stop gracefully shuts the pool down. Workers finish their in-flight
// delivery attempt and exit; unacked tasks stay in the queue and are
// reclaimed once their lease expires. The provided context bounds how long
// to wait before giving up; its error is returned when the wait times out.
// Calling Stop multiple times is safe and only the first call has an
// effect.
func (p *Pool) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.closed, 0, 1) {
		return nil
	}

	p.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is one worker loop: claim, deliver, ack, until shutdown.
func (p *Pool) run(id int) {
	defer p.wg.Done()

	lg := log.With().Int("worker", id).Logger()
	lg.Info().Msg("delivery worker started")

	for {
		select {
		case <-p.ctx.Done():
			lg.Info().Msg("delivery worker stopped")
			return
		default:
		}

		task, err := repo.ClaimDeliveryTask(p.ctx, p.db, p.cfg.LeaseTimeout)
		if errors.Is(err, repo.ErrNotFound) {
			p.sleep()
			continue
		}
		if err != nil {
			if p.ctx.Err() == nil {
				lg.Error().Err(err).Msg("claim delivery task")
			}
			p.sleep()
			continue
		}

		// The attempt runs to completion even if Stop is called mid-send;
		// the task row is unaffected until acked either way.
		p.process(context.WithoutCancel(p.ctx), lg, task)
	}
}

// process delivers one claimed task and acks it.
func (p *Pool) process(ctx context.Context, lg zerolog.Logger, task *repo.ClaimedTask) {
	lg = lg.With().
		Str("issue_id", task.NewsletterIssueID).
		Str("email", task.SubscriberEmail).
		Int("attempts", task.Attempts).
		Logger()

	issue, err := repo.GetIssue(ctx, p.db, task.NewsletterIssueID)
	if errors.Is(err, repo.ErrNotFound) {
		// Queue row without its issue cannot ever be delivered.
		lg.Error().Msg("dropping task for missing issue")
		p.drop(ctx, lg, task)
		return
	}
	if err != nil {
		lg.Error().Err(err).Msg("load issue content")
		p.release(ctx, lg, task)
		return
	}

	err = p.mail.Send(ctx, mailer.Email{
		Recipient: task.SubscriberEmail,
		Subject:   issue.Title,
		HTMLBody:  issue.HTMLContent,
		TextBody:  issue.TextContent,
	})
	switch {
	case err == nil:
		if derr := repo.DeleteDeliveryTask(ctx, p.db, task.NewsletterIssueID, task.SubscriberEmail); derr != nil {
			// The send succeeded; a failed ack means the task may be sent
			// again later. At-least-once allows that.
			lg.Error().Err(derr).Msg("ack delivered task")
			return
		}
		deliveries.WithLabelValues(outcomeDelivered).Inc()
		lg.Debug().Msg("issue delivered")

	case mailer.IsPermanent(err):
		lg.Error().Err(err).Msg("dropping undeliverable task")
		p.drop(ctx, lg, task)

	case task.Attempts+1 >= p.cfg.MaxAttempts:
		lg.Error().Err(err).Int("max_attempts", p.cfg.MaxAttempts).Msg("dropping task after exhausted retry budget")
		p.drop(ctx, lg, task)

	default:
		lg.Warn().Err(err).Msg("transient delivery failure, task released for retry")
		p.release(ctx, lg, task)
	}
}

// drop removes a poison task from the queue.
func (p *Pool) drop(ctx context.Context, lg zerolog.Logger, task *repo.ClaimedTask) {
	if err := repo.DeleteDeliveryTask(ctx, p.db, task.NewsletterIssueID, task.SubscriberEmail); err != nil {
		lg.Error().Err(err).Msg("delete poison task")
		return
	}
	deliveries.WithLabelValues(outcomeDropped).Inc()
}

// release returns a task to the queue for a later retry.
func (p *Pool) release(ctx context.Context, lg zerolog.Logger, task *repo.ClaimedTask) {
	if err := repo.ReleaseDeliveryTask(ctx, p.db, task.NewsletterIssueID, task.SubscriberEmail); err != nil {
		lg.Error().Err(err).Msg("release delivery task")
		return
	}
	deliveries.WithLabelValues(outcomeRetried).Inc()
}

// sleep waits one poll interval or until shutdown.
func (p *Pool) sleep() {
	select {
	case <-p.ctx.Done():
	case <-time.After(p.cfg.PollInterval):
	}
}
