package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-data-seeder/internal/adapter/kafka"
	"github.com/couchcryptid/storm-data-seeder/internal/adapter/postgres"
	"github.com/couchcryptid/storm-data-seeder/internal/adapter/rest"
	"github.com/couchcryptid/storm-data-seeder/internal/config"
	"github.com/couchcryptid/storm-data-seeder/internal/domain"
	"github.com/couchcryptid/storm-data-seeder/internal/pipeline"
)

var errNoCount = errors.New("the kafka sink cannot count rows")

// backend is the open connection to the configured sink. Exactly one of rest
// or pool is set for the rest and postgres sinks; neither for kafka.
type backend struct {
	cfg    *config.Config
	logger *slog.Logger
	clock  clockwork.Clock

	rest    *rest.Client
	pool    *pgxpool.Pool
	writers []io.Closer
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger, clock clockwork.Clock) (*backend, error) {
	b := &backend{cfg: cfg, logger: logger, clock: clock}
	switch cfg.Sink {
	case config.SinkREST:
		b.rest = rest.NewClient(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseToken, cfg.RequestTimeout, cfg.RequestRateLimit, logger)
	case config.SinkPostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		b.pool = pool
	case config.SinkKafka:
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}
	logger.Info("sink ready", "sink", cfg.Sink)
	return b, nil
}

func (b *backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
	for _, w := range b.writers {
		if err := w.Close(); err != nil {
			b.logger.Error("kafka writer close error", "error", err)
		}
	}
}

// count runs a stand-alone row count against table.
func (b *backend) count(ctx context.Context, table, selectColumn string, filter domain.Filter) (int64, error) {
	switch {
	case b.rest != nil:
		return b.rest.Count(ctx, table, selectColumn, filter)
	case b.pool != nil:
		return postgres.Count(ctx, b.pool, table, filter)
	default:
		return 0, errNoCount
	}
}

// bindTable returns the loader for table and, when the sink can count rows,
// its verifier. key is the column the sink upserts on.
func bindTable[T domain.Keyed](b *backend, table, key string) (pipeline.BatchLoader[T], pipeline.Verifier, error) {
	switch {
	case b.rest != nil:
		t := rest.NewTable[T](b.rest, table, key)
		return t, t, nil
	case b.pool != nil:
		t, err := postgres.NewTable[T](b.pool, table, key)
		if err != nil {
			return nil, nil, err
		}
		return t, t, nil
	default:
		t := kafka.NewTopic[T](b.cfg.KafkaBrokers, b.cfg.KafkaTopicPrefix+table, table, b.clock, b.logger)
		b.writers = append(b.writers, t)
		return t, nil, nil
	}
}
