package pipeline

import (
	"context"
	"iter"
	"log/slog"
	"strings"

	"github.com/couchcryptid/storm-data-seeder/internal/domain"
	"github.com/couchcryptid/storm-data-seeder/internal/observability"
	"github.com/couchcryptid/storm-data-seeder/internal/source"
)

// ParseStats summarizes what the parser did with the input rows.
type ParseStats struct {
	Read             int
	Kept             int
	Filtered         int
	DefaultMagnitude int
	NullDates        int
	MissingCoords    int
}

// Parser turns decoded CSV rows into store records, dropping rows outside
// the configured category and filling coordinates when a geocoder is set.
type Parser struct {
	opts     domain.NormalizeOptions
	geocoder domain.Geocoder
	rng      domain.Random
	logger   *slog.Logger
	metrics  *observability.Metrics
	stats    ParseStats
}

// NewParser creates a Parser. Pass a nil geocoder to disable coordinate
// lookups. rng feeds the fabricated storm fields and may be nil when only
// hail rows are parsed.
func NewParser(opts domain.NormalizeOptions, geocoder domain.Geocoder, rng domain.Random, logger *slog.Logger, metrics *observability.Metrics) *Parser {
	return &Parser{
		opts:     opts,
		geocoder: geocoder,
		rng:      rng,
		logger:   logger,
		metrics:  metrics,
	}
}

// Stats returns the counters accumulated so far.
func (p *Parser) Stats() ParseStats {
	return p.stats
}

// Hail yields normalized storm_events records. The sequence ends at the
// first decode or data-contract error.
func (p *Parser) Hail(ctx context.Context, rows iter.Seq2[source.Row[domain.HailRow], error]) iter.Seq2[domain.HailRecord, error] {
	const entity = "hail"
	return func(yield func(domain.HailRecord, error) bool) {
		for row, err := range rows {
			if err != nil {
				yield(domain.HailRecord{}, err)
				return
			}
			p.stats.Read++

			raw := row.Value
			if !domain.MatchesCategory(raw.EventType, p.opts.Category) {
				p.filtered(entity)
				continue
			}

			rec, err := domain.NormalizeHail(raw, row.Num, p.opts)
			if err != nil {
				yield(domain.HailRecord{}, err)
				return
			}
			rec = domain.FillHailCoordinates(ctx, rec, p.geocoder, p.logger)

			p.kept(entity, raw.Magnitude, raw.BeginDateTime, rec.BeginDateTime, rec.Latitude, rec.Longitude)
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Storms yields normalized storms records. Rows with an empty event type are
// kept since the storm export may omit the column.
func (p *Parser) Storms(ctx context.Context, rows iter.Seq2[source.Row[domain.StormRow], error]) iter.Seq2[domain.StormRecord, error] {
	const entity = "storms"
	return func(yield func(domain.StormRecord, error) bool) {
		for row, err := range rows {
			if err != nil {
				yield(domain.StormRecord{}, err)
				return
			}
			p.stats.Read++

			raw := row.Value
			if strings.TrimSpace(raw.EventType) != "" && !domain.MatchesCategory(raw.EventType, p.opts.Category) {
				p.filtered(entity)
				continue
			}

			rec, err := domain.NormalizeStorm(raw, row.Num, p.rng)
			if err != nil {
				yield(domain.StormRecord{}, err)
				return
			}
			rec = domain.FillStormCoordinates(ctx, rec, p.geocoder, p.logger)

			p.kept(entity, raw.Magnitude, raw.BeginDate, rec.Date, rec.Latitude, rec.Longitude)
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (p *Parser) filtered(entity string) {
	p.stats.Filtered++
	p.metrics.RecordsFiltered.WithLabelValues(entity).Inc()
}

func (p *Parser) kept(entity, rawMagnitude, rawDate string, date *string, lat, lon *float64) {
	p.stats.Kept++
	p.metrics.RecordsParsed.WithLabelValues(entity).Inc()

	if !domain.HasMagnitude(rawMagnitude) {
		p.stats.DefaultMagnitude++
	}
	if date == nil {
		p.stats.NullDates++
		if strings.TrimSpace(rawDate) != "" {
			p.logger.Debug("unparseable date, storing null", "entity", entity, "value", rawDate)
		}
	}
	if lat == nil || lon == nil {
		p.stats.MissingCoords++
	}
}
