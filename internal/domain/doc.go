// Package domain models NOAA Storm Events data and the rows the seeder writes
// to the hosted store.
//
// # Data Source
//
// Input files are CSV exports from the NOAA NCEI Storm Events Database
// (https://www.ncdc.noaa.gov/stormevents/). Two header conventions are
// accepted: the upper-case bulk export (EVENT_ID, BEGIN_DATE_TIME, ...) decoded
// into [HailRow], and a lower-case export (event_id, begin_date, ...) decoded
// into [StormRow].
//
// # NOAA Data Conventions
//
// Date format:
//
//	"DD-MON-YY HH:MM:SS", e.g. "08-FEB-24 18:49:00".
//	The month abbreviation is upper-case in the export and matched without
//	regard to case. Two-digit years 69–99 map to the 1900s, 00–68 to the 2000s.
//	Values that do not match are stored as null, never guessed.
//
// Magnitude:
//
//	Hail diameter in inches as a decimal (1.75 = golf ball). Blank or
//	unparseable values fall back to [DefaultMagnitude].
//
// Damage:
//
//	Dollar amounts with a K/M/B suffix: "1.50K" = $1,500, "2M" = $2,000,000.
//	"0.00K" and blanks mean no reported damage.
//
// Narratives:
//
//	Free text that can run to several kilobytes; truncated to
//	[NarrativeLimit] runes to fit the store's column width.
//
// # Severity classification
//
//	<1.5" mild | <2.0" moderate | <3.0" severe | ≥3.0" extreme
//
// # Idempotency
//
// Every record carries the NOAA EVENT_ID (or, for leads, a UUID) as its
// unique key. Stores are written with insert-or-update semantics on that key,
// so re-running a seed converges to the same table contents.
package domain
