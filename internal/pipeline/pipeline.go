package pipeline

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-data-seeder/internal/domain"
	"github.com/couchcryptid/storm-data-seeder/internal/observability"
)

// BatchLoader delivers one batch of records to the destination.
type BatchLoader[T any] interface {
	LoadBatch(ctx context.Context, records []T) (domain.Outcome, error)
}

// Verifier counts rows in the destination that match a filter.
type Verifier interface {
	Count(ctx context.Context, filter domain.Filter) (int64, error)
}

// Stage is the driver's position in a run.
type Stage int

const (
	StageIdle Stage = iota
	StageReading
	StageUploading
	StageVerifying
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageReading:
		return "reading"
	case StageUploading:
		return "uploading"
	case StageVerifying:
		return "verifying"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// Summary is the result of one run.
type Summary struct {
	Entity        string
	TotalRecords  int
	TotalInserted int
	Merged        int
	Errors        int
	Batches       int
	Verified      *int64
	VerifyErr     error
	Cancelled     bool
	Duration      time.Duration
}

// ExitCode is 1 when any batch failed and 0 otherwise.
func (s Summary) ExitCode() int {
	if s.Errors > 0 {
		return 1
	}
	return 0
}

// LogValue implements slog.LogValuer.
func (s Summary) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("entity", s.Entity),
		slog.Int("total_records", s.TotalRecords),
		slog.Int("total_inserted", s.TotalInserted),
		slog.Int("merged", s.Merged),
		slog.Int("errors", s.Errors),
		slog.Int("batches", s.Batches),
		slog.Bool("cancelled", s.Cancelled),
		slog.Duration("duration", s.Duration),
	}
	if s.Verified != nil {
		attrs = append(attrs, slog.Int64("verified", *s.Verified))
	}
	return slog.GroupValue(attrs...)
}

// Options configures a Driver.
type Options struct {
	Entity    string
	BatchSize int
	// Verifier and Filter are optional; a nil Verifier skips verification.
	Verifier Verifier
	Filter   domain.Filter
	Clock    clockwork.Clock
	// OnStage, when set, is called on every stage transition.
	OnStage func(Stage)
}

// Driver runs read, upload, and verify for one entity. A Driver is not safe
// for concurrent use.
type Driver[T any] struct {
	loader  BatchLoader[T]
	logger  *slog.Logger
	metrics *observability.Metrics
	opts    Options
	stage   Stage
}

// NewDriver creates a Driver. BatchSize must be positive.
func NewDriver[T any](loader BatchLoader[T], logger *slog.Logger, metrics *observability.Metrics, opts Options) *Driver[T] {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Driver[T]{
		loader:  loader,
		logger:  logger.With("entity", opts.Entity),
		metrics: metrics,
		opts:    opts,
	}
}

// Stage reports the current stage.
func (d *Driver[T]) Stage() Stage {
	return d.stage
}

// Run drains records and delivers them in batches. A parse error aborts the
// run before any delivery. Failed batches are counted in Summary.Errors and
// never abort the run. When ctx is cancelled the remaining batches are not
// attempted and ctx's error is returned along with the partial summary.
func (d *Driver[T]) Run(ctx context.Context, records iter.Seq2[T, error]) (Summary, error) {
	start := d.opts.Clock.Now()
	summary := Summary{Entity: d.opts.Entity}
	defer func() { d.enter(StageDone) }()

	d.enter(StageReading)
	all, err := Collect(records)
	if err != nil {
		summary.TotalRecords = len(all)
		summary.Duration = d.opts.Clock.Since(start)
		return summary, err
	}
	summary.TotalRecords = len(all)

	d.enter(StageUploading)
	d.upload(ctx, all, &summary)

	if summary.Cancelled {
		summary.Duration = d.opts.Clock.Since(start)
		d.logger.Warn("run cancelled", "summary", summary)
		return summary, ctx.Err()
	}

	if d.opts.Verifier != nil {
		d.enter(StageVerifying)
		d.verify(ctx, &summary)
	}

	summary.Duration = d.opts.Clock.Since(start)
	d.logger.Info("run complete", "summary", summary)
	return summary, nil
}

func (d *Driver[T]) enter(s Stage) {
	d.stage = s
	d.logger.Debug("stage", "stage", s.String())
	if d.opts.OnStage != nil {
		d.opts.OnStage(s)
	}
}

func (d *Driver[T]) upload(ctx context.Context, records []T, summary *Summary) {
	d.metrics.PipelineRunning.Set(1)
	defer d.metrics.PipelineRunning.Set(0)

	n := 0
	for batch := range Batches(records, d.opts.BatchSize) {
		if ctx.Err() != nil {
			summary.Cancelled = true
			return
		}
		n++
		summary.Batches++

		begin := d.opts.Clock.Now()
		outcome, err := d.loader.LoadBatch(ctx, batch)
		d.metrics.BatchDuration.WithLabelValues(d.opts.Entity).Observe(d.opts.Clock.Since(begin).Seconds())
		d.metrics.BatchSize.Observe(float64(len(batch)))

		if err != nil {
			summary.Errors++
			d.metrics.BatchFailures.WithLabelValues(d.opts.Entity, failureReason(err)).Inc()
			d.logger.Error("batch failed",
				"batch", n,
				"size", len(batch),
				"error", domain.Truncate(err.Error(), domain.DiagnosticLimit),
			)
			continue
		}

		summary.TotalInserted += len(batch)
		if outcome == domain.OutcomeMerged {
			summary.Merged += len(batch)
		}
		d.metrics.RecordsLoaded.WithLabelValues(d.opts.Entity, outcome.String()).Add(float64(len(batch)))
		d.logger.Info("batch delivered",
			"batch", n,
			"size", len(batch),
			"outcome", outcome.String(),
			"inserted", summary.TotalInserted,
			"total", summary.TotalRecords,
		)
	}
}

func (d *Driver[T]) verify(ctx context.Context, summary *Summary) {
	count, err := d.opts.Verifier.Count(ctx, d.opts.Filter)
	if err != nil {
		summary.VerifyErr = err
		d.logger.Warn("verification failed", "error", domain.Truncate(err.Error(), domain.DiagnosticLimit))
		return
	}
	summary.Verified = &count
	d.metrics.VerifiedRows.WithLabelValues(d.opts.Entity).Set(float64(count))
	d.logger.Info("verified row count",
		"count", count,
		"filter_column", d.opts.Filter.Column,
		"filter_value", d.opts.Filter.Value,
	)
}

func failureReason(err error) string {
	var transportErr *domain.TransportError
	var rejectionErr *domain.RejectionError
	switch {
	case errors.As(err, &transportErr):
		return "transport"
	case errors.As(err, &rejectionErr):
		return "rejected"
	default:
		return "other"
	}
}
