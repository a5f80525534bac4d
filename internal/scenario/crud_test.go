package scenario

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfergile/journal-starter/internal/fakeapi"
	"github.com/cfergile/journal-starter/internal/journal"
	"github.com/cfergile/journal-starter/internal/metrics"
	"github.com/cfergile/journal-starter/internal/runner"
)

var allChecks = []string{
	"create: 2xx",
	"create: has id",
	"get: 200",
	"get: id matches",
	"get: work contains marker",
	"update: 200",
	"update: work updated",
	"list: 200",
	"list: array",
	"list: contains our id",
	"delete: 200/204",
	"get after delete: 404",
}

func TestCycle_HappyPath(t *testing.T) {
	h := newHarness(t, nil)
	it := runner.Iteration{RunID: "run-1", VU: 1, Iter: 0}

	report, err := h.crud(true).Cycle(context.Background(), it)
	require.NoError(t, err)

	assert.Equal(t, "k6-smoke-1-0-1741944413000", report.Marker)
	assert.NotEmpty(t, report.ID)
	// The list was taken before the delete, so the sweep retries our own
	// entry and gets an accepted 404.
	assert.Equal(t, 1, report.Swept)

	checks := h.checks()
	for _, name := range allChecks {
		c, ok := checks[name]
		if assert.True(t, ok, "check %q not recorded", name) {
			assert.Equal(t, int64(1), c.Passes, name)
			assert.Equal(t, int64(0), c.Fails, name)
		}
	}

	unexpected := h.rate(metrics.UnexpectedErrorRate)
	assert.Equal(t, int64(7), unexpected.Total)
	assert.Equal(t, int64(0), unexpected.Hits)

	// 404s count as HTTP failures even where they are expected.
	failed := h.rate(metrics.HTTPReqFailed)
	assert.Equal(t, int64(7), failed.Total)
	assert.Equal(t, int64(2), failed.Hits)

	assert.Equal(t,
		[]string{StepCreate, StepRead, StepUpdate, StepList, StepDelete, StepVerifyDelete, StepCleanup},
		h.sink.steps())
	assert.Empty(t, h.api.Entries())
}

func TestCycle_CallRecordsCarryIteration(t *testing.T) {
	h := newHarness(t, nil)
	it := runner.Iteration{RunID: "run-7", VU: 2, Iter: 3}

	_, err := h.crud(false).Cycle(context.Background(), it)
	require.NoError(t, err)

	require.Len(t, h.sink.calls, 6)
	create := h.sink.calls[0]
	assert.Equal(t, "run-7", create.RunID)
	assert.Equal(t, 2, create.VU)
	assert.Equal(t, 3, create.Iter)
	assert.Equal(t, http.MethodPost, create.Method)
	assert.Equal(t, http.StatusCreated, create.Status)
	assert.Equal(t, []int{200, 201}, create.Expected)
	assert.True(t, create.OK)

	verify := h.sink.calls[5]
	assert.Equal(t, []int{404}, verify.Expected)
	assert.Equal(t, http.StatusNotFound, verify.Status)
	assert.True(t, verify.OK)
}

func TestCycle_PayloadsAreSent(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	capture := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut {
				b, err := io.ReadAll(r.Body)
				assert.NoError(t, err)
				mu.Lock()
				bodies = append(bodies, string(b))
				mu.Unlock()
				r.Body = io.NopCloser(bytes.NewReader(b))
			}
			next.ServeHTTP(w, r)
		})
	}
	h := newHarness(t, capture)

	_, err := h.crud(false).Cycle(context.Background(), runner.Iteration{VU: 1, Iter: 0})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	assert.JSONEq(t,
		`{"work":"k6 create k6-smoke-1-0-1741944413000","struggle":"testing with k6","intention":"verify CRUD"}`,
		bodies[0])
	assert.JSONEq(t,
		`{"work":"k6 update k6-smoke-1-0-1741944413000","struggle":"testing with k6 (updated)","intention":"verify update"}`,
		bodies[1])
}

func TestCycle_CreateFailureIsFatal(t *testing.T) {
	h := newHarness(t, failCreate(http.StatusInternalServerError, `{"detail":"boom"}`))
	h.api.Seed(fakeapi.Entry{ID: "stale", Work: "k6 create old"})

	_, err := h.crud(true).Cycle(context.Background(), runner.Iteration{VU: 1, Iter: 0})
	require.Error(t, err)
	assertCreateFailed(t, err)

	var ie *IterationError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, StepCreate, ie.Step)
	assert.Contains(t, ie.Response, "500")

	// Only the create request was made; the sweep never ran.
	assert.Equal(t, []string{StepCreate}, h.sink.steps())
	assert.Len(t, h.api.Entries(), 1)

	checks := h.checks()
	assert.Equal(t, int64(1), checks["create: 2xx"].Fails)
	assert.Equal(t, int64(1), checks["create: has id"].Fails)
	_, ranRead := checks["get: 200"]
	assert.False(t, ranRead)

	assert.Equal(t, int64(1), h.rate(metrics.UnexpectedErrorRate).Hits)
}

func TestCycle_CreateWithoutIDIsFatal(t *testing.T) {
	h := newHarness(t, failCreate(http.StatusCreated, `{"work":"k6 create x"}`))

	_, err := h.crud(true).Cycle(context.Background(), runner.Iteration{VU: 1, Iter: 0})
	require.Error(t, err)
	assertCreateFailed(t, err)

	checks := h.checks()
	assert.Equal(t, int64(1), checks["create: 2xx"].Passes)
	assert.Equal(t, int64(1), checks["create: has id"].Fails)
	assert.Equal(t, int64(0), h.rate(metrics.UnexpectedErrorRate).Hits)
}

func TestCycle_TransportErrorOnCreate(t *testing.T) {
	h := newHarness(t, nil)
	h.server.Close()

	_, err := h.crud(true).Cycle(context.Background(), runner.Iteration{VU: 1, Iter: 0})
	require.Error(t, err)
	assertCreateFailed(t, err)
	require.Len(t, h.sink.calls, 1)
	assert.Equal(t, 0, h.sink.calls[0].Status)
	assert.NotEmpty(t, h.sink.calls[0].Error)
	assert.Equal(t, int64(1), h.rate(metrics.HTTPReqFailed).Hits)
}

func TestCycle_LaterFailuresAreSoft(t *testing.T) {
	brokenList := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet && r.URL.Path == "/entries/" {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	h := newHarness(t, brokenList)

	report, err := h.crud(true).Cycle(context.Background(), runner.Iteration{VU: 1, Iter: 0})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Swept)

	checks := h.checks()
	assert.Equal(t, int64(1), checks["list: 200"].Fails)
	assert.Equal(t, int64(1), checks["list: array"].Fails)
	assert.Equal(t, int64(1), checks["list: contains our id"].Fails)
	// Steps after the failed list still ran.
	assert.Equal(t, int64(1), checks["delete: 200/204"].Passes)
	assert.Equal(t, int64(1), checks["get after delete: 404"].Passes)

	assert.Equal(t, int64(1), h.rate(metrics.UnexpectedErrorRate).Hits)
}

func TestCycle_ListNotArray(t *testing.T) {
	objectList := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet && r.URL.Path == "/entries/" {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"items":[]}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	h := newHarness(t, objectList)

	report, err := h.crud(true).Cycle(context.Background(), runner.Iteration{VU: 1, Iter: 0})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Swept)

	checks := h.checks()
	assert.Equal(t, int64(1), checks["list: 200"].Passes)
	assert.Equal(t, int64(1), checks["list: array"].Fails)
}

func TestCycle_ListNull(t *testing.T) {
	nullList := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet && r.URL.Path == "/entries/" {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`null`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	h := newHarness(t, nullList)
	h.api.Seed(fakeapi.Entry{ID: "stale", Work: "k6 create old"})

	report, err := h.crud(true).Cycle(context.Background(), runner.Iteration{VU: 1, Iter: 0})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Swept)

	checks := h.checks()
	assert.Equal(t, int64(1), checks["list: 200"].Passes)
	assert.Equal(t, int64(1), checks["list: array"].Fails)
	assert.Equal(t, int64(1), checks["list: contains our id"].Fails)
	assert.Equal(t, int64(1), checks["delete: 200/204"].Passes)
	assert.Equal(t, int64(1), checks["get after delete: 404"].Passes)
	assert.Len(t, h.api.Entries(), 1, "nothing swept from a null list")
}

// timestampRE matches the timestamps the fake API writes.
var timestampRE = regexp.MustCompile(`"(created_at|updated_at)":"[^"]*"`)

// naiveTimestamps rewrites every timestamp in a response to a datetime
// without a zone offset, the way a server with naive datetimes sends them.
func naiveTimestamps(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := httptest.NewRecorder()
		next.ServeHTTP(rec, r)
		for k, v := range rec.Header() {
			w.Header()[k] = v
		}
		w.Header().Del("Content-Length")
		w.WriteHeader(rec.Code)
		w.Write(timestampRE.ReplaceAll(rec.Body.Bytes(), []byte(`"$1":"2025-10-17T20:04:05.123456"`)))
	})
}

func TestCycle_NaiveTimestamps(t *testing.T) {
	h := newHarness(t, naiveTimestamps)
	ctx := context.Background()

	res := h.client.Create(ctx, journal.NewPayload("plain entry", "s", "i"))
	require.Equal(t, http.StatusCreated, res.Status)
	require.Contains(t, string(res.Body), `"created_at":"2025-10-17T20:04:05.123456"`)

	report, err := h.crud(false).Cycle(ctx, runner.Iteration{VU: 1, Iter: 0})
	require.NoError(t, err)
	assert.NotEmpty(t, report.ID)

	checks := h.checks()
	for _, name := range allChecks {
		c := checks[name]
		assert.Equal(t, int64(1), c.Passes, name)
		assert.Equal(t, int64(0), c.Fails, name)
	}
	assert.Equal(t, int64(0), h.rate(metrics.UnexpectedErrorRate).Hits)
}

func TestCycle_ReadAndUpdateFailuresAreSoft(t *testing.T) {
	var readServed atomic.Bool
	misbehaving := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			isEntry := strings.HasPrefix(r.URL.Path, "/entries/") && r.URL.Path != "/entries/"
			switch {
			case isEntry && r.Method == http.MethodGet && readServed.CompareAndSwap(false, true):
				// The first read returns someone else's entry.
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"id":"someone-else","work":"unrelated"}`))
			case isEntry && r.Method == http.MethodPut:
				// The update is acknowledged but not applied.
				ignored := r.Clone(r.Context())
				ignored.Method = http.MethodGet
				ignored.Body = http.NoBody
				next.ServeHTTP(w, ignored)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
	h := newHarness(t, misbehaving)

	_, err := h.crud(false).Cycle(context.Background(), runner.Iteration{VU: 1, Iter: 0})
	require.NoError(t, err)

	checks := h.checks()
	assert.Equal(t, int64(1), checks["get: 200"].Passes)
	assert.Equal(t, int64(1), checks["get: id matches"].Fails)
	assert.Equal(t, int64(1), checks["get: work contains marker"].Fails)
	assert.Equal(t, int64(1), checks["update: 200"].Passes)
	assert.Equal(t, int64(1), checks["update: work updated"].Fails)
	// The cycle carried on to the end.
	assert.Equal(t, int64(1), checks["list: contains our id"].Passes)
	assert.Equal(t, int64(1), checks["delete: 200/204"].Passes)
	assert.Equal(t, int64(1), checks["get after delete: 404"].Passes)

	assert.Equal(t,
		[]string{StepCreate, StepRead, StepUpdate, StepList, StepDelete, StepVerifyDelete},
		h.sink.steps())
	assert.Equal(t, int64(0), h.rate(metrics.UnexpectedErrorRate).Hits, "every status was acceptable")
	assert.Empty(t, h.api.Entries())
}

func TestCycle_CleanOldDisabled(t *testing.T) {
	h := newHarness(t, nil)
	h.api.Seed(fakeapi.Entry{ID: "stale", Work: "k6 create old"})

	report, err := h.crud(false).Cycle(context.Background(), runner.Iteration{VU: 1, Iter: 0})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Swept)
	assert.NotContains(t, h.sink.steps(), StepCleanup)
	require.Len(t, h.api.Entries(), 1)
	assert.Equal(t, "stale", h.api.Entries()[0].ID)
}

func TestCRUD_UnderRunner(t *testing.T) {
	h := newHarness(t, nil)
	// Without the sweep, concurrent VUs never touch each other's entries.
	r := runner.New(h.crud(false), runner.Options{VUs: 3, Iterations: 3}, h.metrics, nil)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Iterations)
	assert.Equal(t, int64(0), result.Failed)

	for _, c := range h.metrics.Summary().Checks {
		assert.Equal(t, int64(0), c.Fails, c.Name)
		assert.Equal(t, int64(3), c.Passes, c.Name)
	}
	assert.Equal(t, 0.0, h.rate(metrics.UnexpectedErrorRate).Rate)
	assert.Empty(t, h.api.Entries())
}
