package domain

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultMagnitude is used when a row has no usable magnitude. 0.75in is
	// the NWS severe-hail threshold, so unmeasured reports land at the floor.
	DefaultMagnitude = 0.75
	// DefaultSource is used when a row has no SOURCE value.
	DefaultSource = "NOAA"
	// DefaultYear is used when a row has no usable YEAR value.
	DefaultYear = 2024
	// NarrativeLimit is the column width of narrative fields in the store.
	NarrativeLimit = 500

	noaaDateLayout = "02-Jan-06 15:04:05"
	isoLayout      = "2006-01-02T15:04:05"
)

var errEmptyEventID = errors.New("event id is empty")

// Random is the pseudo-random source used to fabricate synthetic fields.
// *math/rand/v2.Rand satisfies it.
type Random interface {
	IntN(n int) int
	Float64() float64
}

// NormalizeOptions configures hail normalization.
type NormalizeOptions struct {
	Category     string // canonical event type written to the store, e.g. "Hail"
	DefaultState string // used when the row has no STATE value
}

// MatchesCategory reports whether a row's event type equals the category,
// ignoring case and surrounding whitespace.
func MatchesCategory(eventType, category string) bool {
	return strings.EqualFold(strings.TrimSpace(eventType), strings.TrimSpace(category))
}

// NormalizeHail converts a raw hail row into the storm_events schema.
// Only a missing event id is an error; every other field degrades to absent
// or to its documented default.
func NormalizeHail(row HailRow, rowNum int, opts NormalizeOptions) (HailRecord, error) {
	id := strings.TrimSpace(row.EventID)
	if id == "" {
		return HailRecord{}, &ParseError{Row: rowNum, Field: "EVENT_ID", Err: errEmptyEventID}
	}

	state := optionalString(row.State)
	if state == nil {
		state = optionalString(opts.DefaultState)
	}

	return HailRecord{
		EventID:        id,
		EventType:      opts.Category,
		EventNarrative: optionalNarrative(row.EventNarrative),
		Magnitude:      parseMagnitude(row.Magnitude),
		Location:       optionalString(row.BeginLocation),
		County:         optionalString(row.CZName),
		State:          state,
		BeginDateTime:  ParseNOAADate(row.BeginDateTime),
		Latitude:       optionalFloat(row.BeginLat),
		Longitude:      optionalFloat(row.BeginLon),
		Source:         stringOrDefault(row.Source, DefaultSource),
		Year:           intOrDefault(row.Year, DefaultYear),
		MonthName:      optionalString(row.MonthName),
	}, nil
}

// NormalizeStorm converts a raw storm row into the storms schema, drawing the
// fabricated occupancy and damage fields from rng.
func NormalizeStorm(row StormRow, rowNum int, rng Random) (StormRecord, error) {
	id := strings.TrimSpace(row.EventID)
	if id == "" {
		return StormRecord{}, &ParseError{Row: rowNum, Field: "event_id", Err: errEmptyEventID}
	}

	magnitude := parseMagnitude(row.Magnitude)

	narrative := optionalNarrative(row.EventNarrative)
	if narrative == nil {
		narrative = optionalNarrative(row.EpisodeNarrative)
	}

	return StormRecord{
		EventID:            id,
		Name:               strings.TrimSpace(row.State) + " - " + strings.TrimSpace(row.CZName),
		State:              optionalString(row.State),
		Date:               ParseNOAADate(row.BeginDate),
		Severity:           ClassifySeverity(magnitude),
		HailSize:           magnitude,
		AffectedProperties: affectedProperties(magnitude, rng),
		EstimatedDamage:    estimatedDamage(ParseDamage(row.DamageProperty), rng),
		Latitude:           optionalFloat(row.BeginLat),
		Longitude:          optionalFloat(row.BeginLon),
		Narrative:          narrative,
		County:             optionalString(row.CZName),
		Timezone:           optionalString(row.CZTimezone),
	}, nil
}

// ParseNOAADate converts a NOAA timestamp like "08-FEB-24 18:49:00" to
// ISO-8601 without a zone. It returns nil when the value does not match.
func ParseNOAADate(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse(noaaDateLayout, s)
	if err != nil {
		return nil
	}
	iso := t.Format(isoLayout)
	return &iso
}

// ParseDamage converts NOAA damage strings ("1.50K", "2M", "0.00K") to
// dollars. Empty or unparseable values yield 0.
func ParseDamage(s string) float64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0
	}

	multiplier := 1.0
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1e3
	case strings.HasSuffix(s, "M"):
		multiplier = 1e6
	case strings.HasSuffix(s, "B"):
		multiplier = 1e9
	}
	s = strings.TrimRight(s, "KMB")

	v, ok := parseFloat(s)
	if !ok || v < 0 {
		return 0
	}
	return v * multiplier
}

// affectedProperties fabricates an affected-property count; damaging hail
// (moderate and up) touches more buildings.
func affectedProperties(magnitude float64, rng Random) int {
	if magnitude >= moderateThreshold {
		return randRange(rng, 50, 500)
	}
	return randRange(rng, 10, 100)
}

func estimatedDamage(damage float64, rng Random) int64 {
	if damage > 0 {
		return int64(damage)
	}
	return int64(randRange(rng, 100_000, 5_000_000))
}

// randRange returns a uniform int in [lo, hi].
func randRange(rng Random, lo, hi int) int {
	return lo + rng.IntN(hi-lo+1)
}

func parseMagnitude(s string) float64 {
	if v, ok := parseFloat(s); ok {
		return v
	}
	return DefaultMagnitude
}

// parseFloat parses a trimmed float. Empty, malformed, and non-finite values
// report ok=false.
func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func optionalFloat(s string) *float64 {
	v, ok := parseFloat(s)
	if !ok {
		return nil
	}
	return &v
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func optionalNarrative(s string) *string {
	return optionalString(Truncate(strings.TrimSpace(s), NarrativeLimit))
}

func stringOrDefault(s, def string) string {
	if v := optionalString(s); v != nil {
		return *v
	}
	return def
}

func intOrDefault(s string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}

// HasMagnitude reports whether s holds a usable magnitude. Rows without one
// are written with DefaultMagnitude.
func HasMagnitude(s string) bool {
	_, ok := parseFloat(s)
	return ok
}
