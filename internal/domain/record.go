package domain

// HailRow is one row of a NOAA Storm Events bulk export, decoded by header name.
// All fields stay as raw strings; coercion happens in NormalizeHail.
type HailRow struct {
	EventID        string `csv:"EVENT_ID"`
	EventType      string `csv:"EVENT_TYPE"`
	EventNarrative string `csv:"EVENT_NARRATIVE"`
	Magnitude      string `csv:"MAGNITUDE"`
	BeginLocation  string `csv:"BEGIN_LOCATION"`
	CZName         string `csv:"CZ_NAME"`
	State          string `csv:"STATE"`
	BeginDateTime  string `csv:"BEGIN_DATE_TIME"`
	BeginLat       string `csv:"BEGIN_LAT"`
	BeginLon       string `csv:"BEGIN_LON"`
	Source         string `csv:"SOURCE"`
	Year           string `csv:"YEAR"`
	MonthName      string `csv:"MONTH_NAME"`
}

// HailRequiredColumns must be present in the header of a hail export.
var HailRequiredColumns = []string{
	"EVENT_ID", "EVENT_TYPE", "MAGNITUDE", "BEGIN_DATE_TIME",
	"BEGIN_LAT", "BEGIN_LON", "EVENT_NARRATIVE",
}

// StormRow is one row of the lower-case storm export that feeds the storms
// table and lead fabrication.
type StormRow struct {
	EventID          string `csv:"event_id"`
	EventType        string `csv:"event_type"`
	BeginDate        string `csv:"begin_date"`
	Magnitude        string `csv:"magnitude"`
	DamageProperty   string `csv:"damage_property"`
	State            string `csv:"state"`
	CZName           string `csv:"cz_name"`
	CZTimezone       string `csv:"cz_timezone"`
	BeginLat         string `csv:"begin_lat"`
	BeginLon         string `csv:"begin_lon"`
	EventNarrative   string `csv:"event_narrative"`
	EpisodeNarrative string `csv:"episode_narrative"`
}

// StormRequiredColumns must be present in the header of a storm export.
var StormRequiredColumns = []string{
	"event_id", "begin_date", "magnitude", "state",
	"cz_name", "begin_lat", "begin_lon",
}

// Keyed is implemented by every record the seeder uploads.
type Keyed interface {
	Key() string
}

// HailRecord is the normalized row written to the storm_events table.
// Pointer fields are optional and serialize as null when absent.
type HailRecord struct {
	EventID        string   `json:"event_id"`
	EventType      string   `json:"event_type"`
	EventNarrative *string  `json:"event_narrative"`
	Magnitude      float64  `json:"magnitude"`
	Location       *string  `json:"location"`
	County         *string  `json:"county"`
	State          *string  `json:"state"`
	BeginDateTime  *string  `json:"begin_date_time"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	Source         string   `json:"source"`
	Year           int      `json:"year"`
	MonthName      *string  `json:"month_name"`
}

// Key returns the unique key the store upserts on.
func (r HailRecord) Key() string { return r.EventID }

// StormRecord is the derived row written to the storms table.
type StormRecord struct {
	EventID            string   `json:"event_id"`
	Name               string   `json:"name"`
	State              *string  `json:"state"`
	Date               *string  `json:"date"`
	Severity           string   `json:"severity"`
	HailSize           float64  `json:"hail_size"`
	AffectedProperties int      `json:"affected_properties"`
	EstimatedDamage    int64    `json:"estimated_damage"`
	Latitude           *float64 `json:"latitude"`
	Longitude          *float64 `json:"longitude"`
	Narrative          *string  `json:"narrative"`
	County             *string  `json:"county"`
	Timezone           *string  `json:"timezone"`
}

// Key returns the unique key the store upserts on.
func (r StormRecord) Key() string { return r.EventID }

// Lead is a synthetic property lead placed near a storm.
type Lead struct {
	ID             string  `json:"id"`
	StormID        string  `json:"storm_id"`
	OwnerName      string  `json:"owner_name"`
	Address        string  `json:"address"`
	City           *string `json:"city"`
	State          *string `json:"state"`
	Zip            string  `json:"zip"`
	Phone          string  `json:"phone"`
	Email          string  `json:"email"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	LeadScore      int     `json:"lead_score"`
	Status         string  `json:"status"`
	DamageSeverity string  `json:"damage_severity"`
	RoofAge        int     `json:"roof_age"`
	PropertyValue  int     `json:"property_value"`
	Notes          string  `json:"notes"`
	CreatedAt      string  `json:"created_at"`
}

// Key returns the unique key the store upserts on.
func (l Lead) Key() string { return l.ID }

// LeadStatuses is the fixed set of pipeline stages a fabricated lead can start in.
var LeadStatuses = []string{"new", "contacted", "qualified", "appointment", "won", "lost"}

// DamageSeverities is the set of damage labels assigned to fabricated leads.
var DamageSeverities = []string{"minor", "moderate", "severe"}

// Filter selects rows by exact column equality for verification counts.
type Filter struct {
	Column string
	Value  string
}

// IsZero reports whether the filter selects nothing in particular.
func (f Filter) IsZero() bool { return f.Column == "" }

// Outcome describes how the store accepted a batch.
type Outcome int

const (
	// OutcomeInserted means the store created the rows (HTTP 200/201).
	OutcomeInserted Outcome = iota
	// OutcomeMerged means the store resolved a conflict by merging into
	// existing rows (HTTP 409 under merge-duplicates).
	OutcomeMerged
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeMerged:
		return "merged"
	default:
		return "unknown"
	}
}
