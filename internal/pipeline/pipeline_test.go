package pipeline_test

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-seeder/internal/adapter/rest"
	"github.com/couchcryptid/storm-data-seeder/internal/domain"
	"github.com/couchcryptid/storm-data-seeder/internal/observability"
	"github.com/couchcryptid/storm-data-seeder/internal/pipeline"
	"github.com/couchcryptid/storm-data-seeder/internal/source"
)

// --- mocks ---

type loadFunc func(call int, batch []int) (domain.Outcome, error)

type mockLoader struct {
	batches [][]int
	fn      loadFunc
}

func (m *mockLoader) LoadBatch(_ context.Context, batch []int) (domain.Outcome, error) {
	m.batches = append(m.batches, slices.Clone(batch))
	if m.fn == nil {
		return domain.OutcomeInserted, nil
	}
	return m.fn(len(m.batches), batch)
}

type mockVerifier struct {
	count  int64
	err    error
	filter domain.Filter
}

func (m *mockVerifier) Count(_ context.Context, filter domain.Filter) (int64, error) {
	m.filter = filter
	return m.count, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seqOf(n int) iter.Seq2[int, error] {
	return func(yield func(int, error) bool) {
		for i := range n {
			if !yield(i, nil) {
				return
			}
		}
	}
}

func newDriver(loader pipeline.BatchLoader[int], metrics *observability.Metrics, opts pipeline.Options) *pipeline.Driver[int] {
	if opts.Entity == "" {
		opts.Entity = "test"
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewFakeClock()
	}
	return pipeline.NewDriver(loader, discardLogger(), metrics, opts)
}

// --- driver ---

func TestDriver_Run_HappyPath(t *testing.T) {
	ldr := &mockLoader{}
	metrics := observability.NewMetrics()
	d := newDriver(ldr, metrics, pipeline.Options{BatchSize: 50})

	summary, err := d.Run(context.Background(), seqOf(120))
	require.NoError(t, err)

	assert.Equal(t, 120, summary.TotalRecords)
	assert.Equal(t, 120, summary.TotalInserted)
	assert.Equal(t, 0, summary.Errors)
	assert.Equal(t, 3, summary.Batches)
	assert.Equal(t, 0, summary.ExitCode())
	assert.Nil(t, summary.Verified)
	assert.Equal(t, pipeline.StageDone, d.Stage())

	require.Len(t, ldr.batches, 3)
	assert.Len(t, ldr.batches[0], 50)
	assert.Len(t, ldr.batches[1], 50)
	assert.Len(t, ldr.batches[2], 20)
	assert.InDelta(t, 120, testutil.ToFloat64(metrics.RecordsLoaded.WithLabelValues("test", "inserted")), 1e-9)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 1e-9)
}

func TestDriver_Run_MergedCountsAsSuccess(t *testing.T) {
	ldr := &mockLoader{fn: func(call int, _ []int) (domain.Outcome, error) {
		if call == 2 {
			return domain.OutcomeMerged, nil
		}
		return domain.OutcomeInserted, nil
	}}
	d := newDriver(ldr, observability.NewMetrics(), pipeline.Options{BatchSize: 4})

	summary, err := d.Run(context.Background(), seqOf(10))
	require.NoError(t, err)

	assert.Equal(t, 10, summary.TotalInserted, "merged batches count by their full size")
	assert.Equal(t, 4, summary.Merged)
	assert.Equal(t, 0, summary.Errors)
}

func TestDriver_Run_FailedBatchDoesNotHalt(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"rejected", &domain.RejectionError{Status: http.StatusInternalServerError, Body: "boom"}, "rejected"},
		{"transport", &domain.TransportError{Err: context.DeadlineExceeded}, "transport"},
		{"other", errors.New("encode failed"), "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ldr := &mockLoader{fn: func(call int, _ []int) (domain.Outcome, error) {
				if call == 1 {
					return 0, tt.err
				}
				return domain.OutcomeInserted, nil
			}}
			metrics := observability.NewMetrics()
			d := newDriver(ldr, metrics, pipeline.Options{BatchSize: 2})

			summary, err := d.Run(context.Background(), seqOf(5))
			require.NoError(t, err)

			assert.Len(t, ldr.batches, 3, "later batches are still attempted")
			assert.Equal(t, 1, summary.Errors, "a failed batch counts once, not per record")
			assert.Equal(t, 3, summary.TotalInserted)
			assert.Equal(t, 1, summary.ExitCode())
			assert.InDelta(t, 1, testutil.ToFloat64(metrics.BatchFailures.WithLabelValues("test", tt.reason)), 1e-9)
		})
	}
}

func TestDriver_Run_ParseErrorAbortsBeforeDelivery(t *testing.T) {
	parseErr := &domain.ParseError{Row: 3, Field: "EVENT_ID", Err: errors.New("event id is empty")}
	records := func(yield func(int, error) bool) {
		if !yield(1, nil) || !yield(2, nil) {
			return
		}
		yield(0, parseErr)
	}

	ldr := &mockLoader{}
	d := newDriver(ldr, observability.NewMetrics(), pipeline.Options{BatchSize: 1})

	summary, err := d.Run(context.Background(), records)

	require.ErrorIs(t, err, parseErr)
	assert.Empty(t, ldr.batches)
	assert.Equal(t, 2, summary.TotalRecords)
	assert.Equal(t, 0, summary.TotalInserted)
}

func TestDriver_Run_CancelStopsBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ldr := &mockLoader{fn: func(int, []int) (domain.Outcome, error) {
		cancel()
		return domain.OutcomeInserted, nil
	}}
	verifier := &mockVerifier{count: 99}
	d := newDriver(ldr, observability.NewMetrics(), pipeline.Options{BatchSize: 2, Verifier: verifier})

	summary, err := d.Run(ctx, seqOf(6))

	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, summary.Cancelled)
	assert.Len(t, ldr.batches, 1)
	assert.Equal(t, 2, summary.TotalInserted)
	assert.Nil(t, summary.Verified, "verification is skipped after cancellation")
}

func TestDriver_Run_Verification(t *testing.T) {
	filter := domain.Filter{Column: "state", Value: "WISCONSIN"}
	verifier := &mockVerifier{count: 42}
	metrics := observability.NewMetrics()
	d := newDriver(&mockLoader{}, metrics, pipeline.Options{BatchSize: 10, Verifier: verifier, Filter: filter})

	summary, err := d.Run(context.Background(), seqOf(3))
	require.NoError(t, err)

	require.NotNil(t, summary.Verified)
	assert.Equal(t, int64(42), *summary.Verified)
	assert.Equal(t, filter, verifier.filter)
	assert.InDelta(t, 42, testutil.ToFloat64(metrics.VerifiedRows.WithLabelValues("test")), 1e-9)
}

func TestDriver_Run_VerificationFailureDoesNotChangeExitCode(t *testing.T) {
	verifier := &mockVerifier{err: &domain.VerificationError{Err: errors.New("timeout")}}
	d := newDriver(&mockLoader{}, observability.NewMetrics(), pipeline.Options{BatchSize: 10, Verifier: verifier})

	summary, err := d.Run(context.Background(), seqOf(3))
	require.NoError(t, err)

	assert.Nil(t, summary.Verified)
	require.Error(t, summary.VerifyErr)
	assert.Equal(t, 0, summary.ExitCode())
}

func TestDriver_Run_EmptyInput(t *testing.T) {
	ldr := &mockLoader{}
	d := newDriver(ldr, observability.NewMetrics(), pipeline.Options{BatchSize: 10})

	summary, err := d.Run(context.Background(), seqOf(0))
	require.NoError(t, err)

	assert.Empty(t, ldr.batches)
	assert.Equal(t, 0, summary.Batches)
	assert.Equal(t, 0, summary.ExitCode())
}

func TestDriver_Run_Duration(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ldr := &mockLoader{fn: func(int, []int) (domain.Outcome, error) {
		clock.Advance(2 * time.Second)
		return domain.OutcomeInserted, nil
	}}
	d := newDriver(ldr, observability.NewMetrics(), pipeline.Options{BatchSize: 1, Clock: clock})

	summary, err := d.Run(context.Background(), seqOf(3))
	require.NoError(t, err)
	assert.Equal(t, 6*time.Second, summary.Duration)
}

func TestDriver_Run_StageTransitions(t *testing.T) {
	var stages []pipeline.Stage
	d := newDriver(&mockLoader{}, observability.NewMetrics(), pipeline.Options{
		BatchSize: 2,
		Verifier:  &mockVerifier{count: 3},
		OnStage:   func(s pipeline.Stage) { stages = append(stages, s) },
	})
	assert.Equal(t, pipeline.StageIdle, d.Stage())

	_, err := d.Run(context.Background(), seqOf(3))
	require.NoError(t, err)

	assert.Equal(t, []pipeline.Stage{
		pipeline.StageReading,
		pipeline.StageUploading,
		pipeline.StageVerifying,
		pipeline.StageDone,
	}, stages)
	assert.Equal(t, pipeline.StageDone, d.Stage())
}

// --- end to end ---

const scenarioCSV = `EVENT_ID,EVENT_TYPE,MAGNITUDE,BEGIN_DATE_TIME,BEGIN_LAT,BEGIN_LON,EVENT_NARRATIVE,STATE
100,Thunderstorm Wind,55,08-FEB-24 18:00:00,43.0,-89.0,Trees down,WISCONSIN
101,Hail,1.75,08-FEB-24 18:49:00,43.1,-89.4,Golf ball hail,WISCONSIN
102,HAIL,,not a date,43.2,-89.5,,WISCONSIN
`

func TestEndToEnd_ThreeRowScenario(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/storm_events", r.URL.Path)
		assert.Equal(t, "resolution=merge-duplicates", r.Header.Get("Prefer"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	reader, err := source.NewReader[domain.HailRow](strings.NewReader(scenarioCSV), domain.HailRequiredColumns)
	require.NoError(t, err)

	metrics := observability.NewMetrics()
	parser := pipeline.NewParser(domain.NormalizeOptions{Category: "Hail", DefaultState: "WISCONSIN"}, nil, nil, discardLogger(), metrics)

	records, err := pipeline.Collect(parser.Hail(context.Background(), reader.Rows()))
	require.NoError(t, err)
	require.Len(t, records, 2, "non-hail row is dropped")

	assert.Equal(t, "101", records[0].EventID)
	assert.InDelta(t, 1.75, records[0].Magnitude, 1e-9)
	require.NotNil(t, records[0].BeginDateTime)
	assert.Equal(t, "2024-02-08T18:49:00", *records[0].BeginDateTime)

	assert.Equal(t, "102", records[1].EventID)
	assert.InDelta(t, 0.75, records[1].Magnitude, 1e-9)
	assert.Nil(t, records[1].BeginDateTime)
	assert.Nil(t, records[1].EventNarrative)

	batches := slices.Collect(pipeline.Batches(records, 2))
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)

	client := rest.NewClient(srv.URL, "anon-key", "token", 5*time.Second, 0, discardLogger())
	table := rest.NewTable[domain.HailRecord](client, "storm_events", "event_id")
	d := pipeline.NewDriver[domain.HailRecord](table, discardLogger(), metrics, pipeline.Options{Entity: "storm_events", BatchSize: 2})

	summary, err := d.Run(context.Background(), pipeline.FromSlice(records))
	require.NoError(t, err)

	assert.Equal(t, 1, requests)
	assert.Equal(t, 2, summary.TotalInserted)
	assert.Equal(t, 0, summary.Errors)

	stats := parser.Stats()
	assert.Equal(t, 3, stats.Read)
	assert.Equal(t, 2, stats.Kept)
	assert.Equal(t, 1, stats.Filtered)
	assert.Equal(t, 1, stats.DefaultMagnitude)
	assert.Equal(t, 1, stats.NullDates)
}
