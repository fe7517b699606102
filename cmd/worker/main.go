// Command worker runs the delivery worker pool: long-lived loops that claim
// queued delivery tasks, send them through the SMTP transport, and ack them.
// It can run alongside any number of api and worker processes; the queue's
// lease discipline keeps concurrent workers off each other's rows.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-newsletter-backend/internal/config"
	"github.com/tbourn/go-newsletter-backend/internal/mailer"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
	"github.com/tbourn/go-newsletter-backend/internal/sysutil"
	"github.com/tbourn/go-newsletter-backend/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	smtp, err := mailer.NewSMTPClient(mailer.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		Sender:   cfg.SMTP.Sender,
		Timeout:  cfg.SMTP.Timeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("smtp client")
	}

	// Snapshot of the current delivery audience, mostly useful to sanity
	// check a fresh deployment against an empty roster.
	if emails, err := repo.ListConfirmedEmails(context.Background(), db); err == nil {
		log.Info().Int("confirmed_subscribers", len(emails)).Msg("delivery audience")
	}

	pool := worker.NewPool(db, smtp, worker.Config{
		Workers:      cfg.Worker.Workers,
		PollInterval: cfg.Worker.PollInterval,
		LeaseTimeout: cfg.Worker.LeaseTimeout,
		MaxAttempts:  cfg.Worker.MaxAttempts,
	})
	pool.Start()
	log.Info().Int("workers", cfg.Worker.Workers).Msg("delivery worker pool started")

	// Prometheus endpoint for the worker process.
	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Worker.MetricsPort,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics listener")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctxTO, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := pool.Stop(ctxTO); err != nil {
		log.Error().Err(err).Msg("worker pool shutdown")
	}
	_ = metricsSrv.Shutdown(ctxTO)
}
