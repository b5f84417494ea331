package domain

import (
	"context"
	"log/slog"
)

// FillHailCoordinates forward-geocodes a hail record that has no coordinates,
// using its begin location (or county) and state. The record is returned
// unchanged when geocoder is nil, coordinates already exist, or the lookup
// fails.
func FillHailCoordinates(ctx context.Context, rec HailRecord, geocoder Geocoder, logger *slog.Logger) HailRecord {
	if geocoder == nil || (rec.Latitude != nil && rec.Longitude != nil) {
		return rec
	}
	place := firstNonNil(rec.Location, rec.County)
	if lat, lon, ok := resolve(ctx, geocoder, place, deref(rec.State), rec.EventID, logger); ok {
		rec.Latitude, rec.Longitude = lat, lon
	}
	return rec
}

// FillStormCoordinates forward-geocodes a storm record that has no
// coordinates from its county and state. Leads can only be placed around
// storms with coordinates.
func FillStormCoordinates(ctx context.Context, rec StormRecord, geocoder Geocoder, logger *slog.Logger) StormRecord {
	if geocoder == nil || (rec.Latitude != nil && rec.Longitude != nil) {
		return rec
	}
	if lat, lon, ok := resolve(ctx, geocoder, deref(rec.County), deref(rec.State), rec.EventID, logger); ok {
		rec.Latitude, rec.Longitude = lat, lon
	}
	return rec
}

func resolve(ctx context.Context, geocoder Geocoder, place, state, eventID string, logger *slog.Logger) (*float64, *float64, bool) {
	if place == "" || state == "" {
		return nil, nil, false
	}

	result, err := geocoder.ForwardGeocode(ctx, place, state)
	if err != nil {
		logger.Warn("forward geocoding failed",
			"event_id", eventID,
			"place", place,
			"state", state,
			"error", err,
		)
		return nil, nil, false
	}
	if !result.Found() {
		logger.Debug("forward geocoding returned no match", "event_id", eventID, "place", place, "state", state)
		return nil, nil, false
	}

	lat, lon := result.Lat, result.Lon
	return &lat, &lon, true
}

func firstNonNil(values ...*string) string {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
