package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-seeder/internal/domain"
	"github.com/couchcryptid/storm-data-seeder/internal/pipeline"
)

const hailCSV = `EVENT_ID,EVENT_TYPE,MAGNITUDE,BEGIN_DATE_TIME,BEGIN_LAT,BEGIN_LON,EVENT_NARRATIVE,STATE,CZ_NAME,BEGIN_LOCATION
1181100,Hail,1.00,08-FEB-24 18:49:00,42.58,-90.43,Quarter size hail.,WISCONSIN,GRANT,HAZEL GREEN
1181101,Thunderstorm Wind,52,08-FEB-24 18:55:00,42.60,-90.40,Tree down.,WISCONSIN,GRANT,HAZEL GREEN
1181102,Hail,,08-FEB-24 19:02:00,42.71,-90.25,,WISCONSIN,LAFAYETTE,BELMONT
1181103,Hail,1.75,not a date,42.86,-89.97,Golf ball hail.,WISCONSIN,IOWA,DODGEVILLE
`

const stormCSV = `event_id,event_type,begin_date,magnitude,damage_property,state,cz_name,cz_timezone,begin_lat,begin_lon,event_narrative,episode_narrative
2001,Hail,12-MAY-24 14:30:00,2.5,10.00K,WISCONSIN,DANE,CST-6,43.07,-89.40,,A line of storms.
2002,Hail,12-MAY-24 15:10:00,1.0,0.00K,WISCONSIN,ROCK,CST-6,42.68,-89.02,Penny hail.,
2003,Hail,12-MAY-24 15:40:00,0.75,,WISCONSIN,GREEN,CST-6,,,No location.,
`

// fakeStore is a minimal PostgREST stand-in that records upserted rows per
// table and answers count queries with the running total.
type fakeStore struct {
	mu       sync.Mutex
	status   int
	rows     map[string]int
	requests map[string]int
}

func newFakeStore(status int) *fakeStore {
	return &fakeStore{status: status, rows: map[string]int{}, requests: map[string]int{}}
}

func (s *fakeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodPost:
		var rows []json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.requests[r.URL.Path]++
		if s.status < 300 {
			s.rows[r.URL.Path] += len(rows)
		}
		w.WriteHeader(s.status)
	case http.MethodGet:
		w.Header().Set("Content-Range", fmt.Sprintf("0-0/%d", s.rows[r.URL.Path]))
		_, _ = w.Write([]byte("[]"))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *fakeStore) count(table string) (rows, requests int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows["/rest/v1/"+table], s.requests["/rest/v1/"+table]
}

func startStore(t *testing.T, status int) (*fakeStore, string) {
	t.Helper()
	store := newFakeStore(status)
	srv := httptest.NewServer(store)
	t.Cleanup(srv.Close)
	return store, srv.URL
}

func setEnv(t *testing.T, supabaseURL string) {
	t.Helper()
	for k, v := range map[string]string{
		"SINK":             "rest",
		"SUPABASE_URL":     supabaseURL,
		"SUPABASE_KEY":     "anon-key-secret",
		"SUPABASE_TOKEN":   "",
		"DATABASE_URL":     "",
		"BATCH_SIZE":       "50",
		"SEED_STATE":       "WISCONSIN",
		"SEED_CATEGORY":    "Hail",
		"LEAD_SEED":        "7",
		"LEAD_STORM_LIMIT": "100",
		"MAPBOX_TOKEN":     "",
		"MAPBOX_ENABLED":   "false",
		"PUSHGATEWAY_URL":  "",
		"METRICS_ADDR":     "",
		"LOG_LEVEL":        "error",
		"LOG_FORMAT":       "json",
	} {
		t.Setenv(k, v)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, stderr io.Writer, args ...string) (string, error) {
	t.Helper()
	root, _ := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	root, _ := newRootCmd()

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"hail", "storms", "verify", "validate"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("batch-size"))
	assert.NotNil(t, root.PersistentFlags().Lookup("sink"))
}

func TestCommandFlagDefaults(t *testing.T) {
	root, _ := newRootCmd()

	hail, _, err := root.Find([]string{"hail"})
	require.NoError(t, err)
	assert.Equal(t, defaultHailCSV, hail.Flags().Lookup("csv").DefValue)

	storms, _, err := root.Find([]string{"storms"})
	require.NoError(t, err)
	assert.Equal(t, defaultStormCSV, storms.Flags().Lookup("csv").DefValue)
	assert.Equal(t, "false", storms.Flags().Lookup("skip-leads").DefValue)
}

func TestHail_SeedsAndVerifies(t *testing.T) {
	store, url := startStore(t, http.StatusCreated)
	setEnv(t, url)
	path := writeFile(t, "hail.csv", hailCSV)

	out, err := execute(t, io.Discard, "hail", "--csv", path, "--batch-size", "2")
	require.NoError(t, err)

	rows, requests := store.count("storm_events")
	assert.Equal(t, 3, rows, "wind row is filtered")
	assert.Equal(t, 2, requests)
	assert.Contains(t, out, "storm_events: 3 records, 3 inserted (0 merged), 0 errors, 2 batches")
	assert.Contains(t, out, "storm_events: store reports 3 rows")
}

func TestHail_ConflictCountsAsSuccess(t *testing.T) {
	_, url := startStore(t, http.StatusConflict)
	setEnv(t, url)
	path := writeFile(t, "hail.csv", hailCSV)

	out, err := execute(t, io.Discard, "hail", "--csv", path)
	require.NoError(t, err)
	assert.Contains(t, out, "3 inserted (3 merged), 0 errors")
}

func TestHail_BatchFailuresReturnError(t *testing.T) {
	store, url := startStore(t, http.StatusInternalServerError)
	setEnv(t, url)
	path := writeFile(t, "hail.csv", hailCSV)

	out, err := execute(t, io.Discard, "hail", "--csv", path, "--batch-size", "2")

	require.ErrorIs(t, err, errBatchFailures)
	_, requests := store.count("storm_events")
	assert.Equal(t, 2, requests, "a failed batch does not stop the next one")
	assert.Contains(t, out, "0 inserted (0 merged), 2 errors")
}

func TestHail_MissingCredentialsFailBeforeNetwork(t *testing.T) {
	store, url := startStore(t, http.StatusCreated)
	setEnv(t, url)
	t.Setenv("SUPABASE_KEY", "")
	path := writeFile(t, "hail.csv", hailCSV)

	_, err := execute(t, io.Discard, "hail", "--csv", path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUPABASE_KEY")
	_, requests := store.count("storm_events")
	assert.Zero(t, requests)
}

func TestHail_MissingColumnsFailBeforeNetwork(t *testing.T) {
	store, url := startStore(t, http.StatusCreated)
	setEnv(t, url)
	path := writeFile(t, "hail.csv", "EVENT_ID,EVENT_TYPE\n1,Hail\n")

	_, err := execute(t, io.Discard, "hail", "--csv", path)

	var headerErr *domain.HeaderError
	require.ErrorAs(t, err, &headerErr)
	assert.Contains(t, headerErr.Missing, "MAGNITUDE")
	_, requests := store.count("storm_events")
	assert.Zero(t, requests)
}

func TestHail_LogsNeverContainSecrets(t *testing.T) {
	_, url := startStore(t, http.StatusCreated)
	setEnv(t, url)
	t.Setenv("LOG_LEVEL", "debug")
	path := writeFile(t, "hail.csv", hailCSV)

	var logs bytes.Buffer
	_, err := execute(t, &logs, "hail", "--csv", path)
	require.NoError(t, err)

	assert.Contains(t, logs.String(), "batch delivered")
	assert.NotContains(t, logs.String(), "anon-key-secret")
}

func TestStorms_SeedsStormsAndLeads(t *testing.T) {
	store, url := startStore(t, http.StatusCreated)
	setEnv(t, url)
	path := writeFile(t, "storms.csv", stormCSV)

	out, err := execute(t, io.Discard, "storms", "--csv", path)
	require.NoError(t, err)

	stormRows, _ := store.count("storms")
	assert.Equal(t, 3, stormRows)

	// Two storms have coordinates, each gets 2 to 10 leads.
	leadRows, _ := store.count("leads")
	assert.GreaterOrEqual(t, leadRows, 4)
	assert.LessOrEqual(t, leadRows, 20)

	assert.Contains(t, out, "storms: 3 records, 3 inserted")
	assert.Contains(t, out, fmt.Sprintf("leads: %d records, %d inserted", leadRows, leadRows))
}

func TestStorms_SkipLeads(t *testing.T) {
	store, url := startStore(t, http.StatusCreated)
	setEnv(t, url)
	path := writeFile(t, "storms.csv", stormCSV)

	out, err := execute(t, io.Discard, "storms", "--csv", path, "--skip-leads")
	require.NoError(t, err)

	_, leadRequests := store.count("leads")
	assert.Zero(t, leadRequests)
	assert.NotContains(t, out, "leads:")
}

func TestValidate_RunsOffline(t *testing.T) {
	setEnv(t, "")
	t.Setenv("SUPABASE_KEY", "")
	path := writeFile(t, "hail.csv", hailCSV)

	out, err := execute(t, io.Discard, "validate", "--csv", path)
	require.NoError(t, err)

	assert.Contains(t, out, "4 rows read, 3 kept, 1 filtered")
	assert.Contains(t, out, "defaulted magnitude: 1")
	assert.Contains(t, out, "null dates:          1")
}

func TestValidate_Storms(t *testing.T) {
	setEnv(t, "")
	path := writeFile(t, "storms.csv", stormCSV)

	out, err := execute(t, io.Discard, "validate", "--entity", "storms", "--csv", path)
	require.NoError(t, err)
	assert.Contains(t, out, "3 rows read, 3 kept, 0 filtered")
	assert.Contains(t, out, "missing coordinates: 1")
}

func TestValidate_UnknownEntity(t *testing.T) {
	setEnv(t, "")
	_, err := execute(t, io.Discard, "validate", "--entity", "tornado")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tornado")
}

func TestVerify(t *testing.T) {
	store, url := startStore(t, http.StatusCreated)
	setEnv(t, url)
	store.rows["/rest/v1/storm_events"] = 3573

	out, err := execute(t, io.Discard, "verify", "--table", "storm_events", "--column", "state", "--value", "WISCONSIN")
	require.NoError(t, err)
	assert.Equal(t, "storm_events: 3573 rows where state = WISCONSIN\n", out)
}

func TestVerify_ValueWithoutColumn(t *testing.T) {
	_, url := startStore(t, http.StatusCreated)
	setEnv(t, url)

	_, err := execute(t, io.Discard, "verify", "--value", "WISCONSIN")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--column")
}

func TestVerify_KafkaSinkCannotCount(t *testing.T) {
	setEnv(t, "")
	t.Setenv("KAFKA_BROKERS", "localhost:9092")

	_, err := execute(t, io.Discard, "verify", "--sink", "kafka")
	require.ErrorIs(t, err, errNoCount)
}

func TestHail_WithStatusServer(t *testing.T) {
	_, url := startStore(t, http.StatusCreated)
	setEnv(t, url)
	t.Setenv("METRICS_ADDR", "127.0.0.1:0")
	path := writeFile(t, "hail.csv", hailCSV)

	_, err := execute(t, io.Discard, "hail", "--csv", path)
	require.NoError(t, err)
}

func TestRunStatus_Readiness(t *testing.T) {
	var status runStatus
	require.Error(t, status.CheckReadiness(context.Background()), "idle before any run")

	for _, stage := range []pipeline.Stage{pipeline.StageReading, pipeline.StageUploading, pipeline.StageVerifying} {
		status.observe(stage)
		assert.NoError(t, status.CheckReadiness(context.Background()), stage.String())
	}

	status.observe(pipeline.StageDone)
	err := status.CheckReadiness(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "done")
}
