package scenario

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfergile/journal-starter/internal/fakeapi"
	"github.com/cfergile/journal-starter/internal/journal"
	"github.com/cfergile/journal-starter/internal/metrics"
	"github.com/cfergile/journal-starter/internal/store"
	"github.com/cfergile/journal-starter/internal/testutil"
)

// harness wires a scenario to a fake API behind an httptest server.
type harness struct {
	api     *fakeapi.Server
	server  *httptest.Server
	client  *journal.Client
	metrics *metrics.Registry
	sink    *memorySink
	rec     *Recorder
	clock   *testutil.DeterministicClock
}

// newHarness starts a fake API. wrap, if non-nil, decorates its handler
// to inject faults.
func newHarness(t *testing.T, wrap func(http.Handler) http.Handler) *harness {
	t.Helper()
	api := fakeapi.New(nil)
	var h http.Handler = api
	if wrap != nil {
		h = wrap(api)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	reg := metrics.NewRegistry()
	sink := &memorySink{}
	return &harness{
		api:     api,
		server:  srv,
		client:  journal.NewClient(srv.URL, srv.Client()),
		metrics: reg,
		sink:    sink,
		rec:     NewRecorder(reg, sink, nil),
		clock:   testutil.NewDeterministicClock(0),
	}
}

func (h *harness) crud(cleanOld bool) *CRUD {
	return NewCRUD(h.client, h.rec, cleanOld, nil).WithClock(h.clock.Now)
}

func (h *harness) checks() map[string]metrics.CheckSummary {
	out := make(map[string]metrics.CheckSummary)
	for _, c := range h.metrics.Summary().Checks {
		out[c.Name] = c
	}
	return out
}

func (h *harness) rate(name string) metrics.RateSummary {
	return h.metrics.Summary().Rates[name]
}

// memorySink collects call records in memory.
type memorySink struct {
	mu    sync.Mutex
	calls []store.CallRecord
	err   error
}

func (s *memorySink) WriteCall(_ context.Context, call store.CallRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.calls = append(s.calls, call)
	return int64(len(s.calls)), nil
}

func (s *memorySink) steps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.Step)
	}
	return out
}

var errSinkDown = errors.New("sink down")

// assertCreateFailed checks that err is the fatal create failure.
func assertCreateFailed(t *testing.T, err error) {
	t.Helper()
	var ie *IterationError
	require.True(t, errors.As(err, &ie), "want *IterationError, got %v", err)
	assert.Equal(t, ErrCodeCreateFailed, ie.Code)
}

// failCreate answers every POST with the given status and body.
func failCreate(status int, body string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				w.Write([]byte(body))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
