package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/TrackIntake/config"
	"github.com/BearBump/TrackIntake/internal/broker/kafka"
	"github.com/BearBump/TrackIntake/internal/broker/messages"
	"github.com/BearBump/TrackIntake/internal/services/journal"
	"github.com/BearBump/TrackIntake/internal/storage/pgexports"
)

type exportConsumer interface {
	ConsumeExports(ctx context.Context, handler func(ctx context.Context, msg messages.ExportCompleted) error) error
	Close() error
}

type journalRepository interface {
	journal.Repository
	Ping(ctx context.Context) error
}

type journalFactories struct {
	newStorage  func(ctx context.Context, cfg *config.Config) (repo journalRepository, closeFn func(), err error)
	newConsumer func(cfg *config.Config, topic, group string) exportConsumer
}

func connString(cfg *config.Config) string {
	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
}

func defaultJournalFactories() journalFactories {
	return journalFactories{
		newStorage: func(ctx context.Context, cfg *config.Config) (journalRepository, func(), error) {
			st, err := openPostgresWithRetry(ctx, connString(cfg), 60*time.Second)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newConsumer: func(cfg *config.Config, topic, group string) exportConsumer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewConsumer(brokers, topic, group)
		},
	}
}

// openPostgresWithRetry ждёт, пока postgres поднимется (docker-compose стартует всё разом).
func openPostgresWithRetry(ctx context.Context, connString string, wait time.Duration) (*pgexports.Storage, error) {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgexports.New(connString)
		if err == nil {
			return st, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil, fmt.Errorf("postgres is not ready after %s: %w", wait, lastErr)
}

type journalOpts struct {
	topic         string
	consumerGroup string
	httpAddr      string
	swaggerPath   string
	onListen      func(httpAddr string)
}

func resolveJournalOpts(cfg *config.Config, swaggerPath string) journalOpts {
	topic := cfg.Kafka.ExportCompletedTopicName
	if topic == "" {
		topic = messages.TopicExportCompleted
	}
	group := cfg.Kafka.ConsumerGroup
	if group == "" {
		group = "intake-journal"
	}
	httpAddr := cfg.Intake.JournalHTTPAddr
	if httpAddr == "" {
		httpAddr = ":8082"
	}
	return journalOpts{
		topic:         topic,
		consumerGroup: group,
		httpAddr:      httpAddr,
		swaggerPath:   swaggerPath,
	}
}

// RunIntakeJournal consumes export.completed events into postgres and serves the journal over HTTP.
func RunIntakeJournal(ctx context.Context, cfg *config.Config, opts journalOpts, f journalFactories) error {
	repo, closeFn, err := f.newStorage(ctx, cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	consumer := f.newConsumer(cfg, opts.topic, opts.consumerGroup)
	defer func() { _ = consumer.Close() }()

	svc := journal.New(repo)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runJournalHTTPServer(ctx, journalHTTPOpts{
			httpAddr:    opts.httpAddr,
			swaggerPath: opts.swaggerPath,
			onListen:    opts.onListen,
			svc:         svc,
			repo:        repo,
			cfg:         cfg,
			topic:       opts.topic,
			group:       opts.consumerGroup,
		})
	}()

	slog.Info("journal consuming", "topic", opts.topic, "group", opts.consumerGroup)
	consumeErr := consumer.ConsumeExports(ctx, svc.ApplyExportCompleted)
	cancel()

	if err := <-httpErr; err != nil && err != context.Canceled {
		slog.Error("journal http server", "error", err.Error())
	}
	return consumeErr
}
