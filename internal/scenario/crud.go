package scenario

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cfergile/journal-starter/internal/journal"
	"github.com/cfergile/journal-starter/internal/runner"
)

// Step names used in call records and logs.
const (
	StepCreate       = "create"
	StepRead         = "read"
	StepUpdate       = "update"
	StepList         = "list"
	StepDelete       = "delete"
	StepVerifyDelete = "verify-delete"
	StepCleanup      = "cleanup"
	StepHealth       = "health"
)

// CycleReport describes what one CRUD cycle did.
type CycleReport struct {
	Marker string
	ID     journal.EntryID
	Swept  int
}

// CRUD runs one create, read, update, list, delete, verify-delete cycle
// per iteration, then optionally sweeps stale test entries.
type CRUD struct {
	client   *journal.Client
	rec      *Recorder
	cleanOld bool
	now      func() time.Time
	logger   *slog.Logger
}

// NewCRUD creates the CRUD scenario. A nil logger discards output.
func NewCRUD(client *journal.Client, rec *Recorder, cleanOld bool, logger *slog.Logger) *CRUD {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CRUD{
		client:   client,
		rec:      rec,
		cleanOld: cleanOld,
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock overrides the clock markers are stamped with (for testing).
func (c *CRUD) WithClock(now func() time.Time) *CRUD {
	c.now = now
	return c
}

// Name implements runner.Scenario.
func (c *CRUD) Name() string { return "crud" }

// Iterate implements runner.Scenario.
func (c *CRUD) Iterate(ctx context.Context, it runner.Iteration) error {
	_, err := c.Cycle(ctx, it)
	return err
}

// Cycle runs the six CRUD steps in order.
//
// Only the create step is fatal: without an id nothing else can run, so
// it returns an *IterationError and skips the sweep. Later steps record
// their checks and carry on regardless of outcome.
func (c *CRUD) Cycle(ctx context.Context, it runner.Iteration) (CycleReport, error) {
	rec := c.rec.Iteration(it)
	mk := Marker(it.VU, it.Iter, c.now())
	report := CycleReport{Marker: mk}

	// 1. create
	createRes := c.client.Create(ctx, journal.NewPayload(
		TestPrefix+"create "+mk,
		"testing with k6",
		"verify CRUD",
	))
	created, decodeErr := createRes.Entry()
	statusOK := rec.Check("create: 2xx", rec.Record(ctx, StepCreate, createRes, http.StatusOK, http.StatusCreated))
	hasID := rec.Check("create: has id", decodeErr == nil && created.ID != "")
	if !statusOK || !hasID {
		return report, &IterationError{
			Code:     ErrCodeCreateFailed,
			Step:     StepCreate,
			VU:       it.VU,
			Iter:     it.Iter,
			Response: createRes.String(),
		}
	}
	id := created.ID
	report.ID = id

	// 2. read
	getRes := c.client.Get(ctx, id)
	got, err := getRes.Entry()
	rec.Check("get: 200", rec.Record(ctx, StepRead, getRes))
	rec.Check("get: id matches", err == nil && got.ID == id)
	rec.Check("get: work contains marker", err == nil && strings.Contains(got.Work, mk))

	// 3. update
	putRes := c.client.Update(ctx, id, journal.NewPayload(
		UpdateSentinel+" "+mk,
		"testing with k6 (updated)",
		"verify update",
	))
	updated, err := putRes.Entry()
	rec.Check("update: 200", rec.Record(ctx, StepUpdate, putRes))
	rec.Check("update: work updated", err == nil && strings.Contains(updated.Work, UpdateSentinel))

	// 4. list
	listRes := c.client.List(ctx)
	items, err := listRes.Items()
	rec.Check("list: 200", rec.Record(ctx, StepList, listRes))
	rec.Check("list: array", listRes.IsArray())
	rec.Check("list: contains our id", err == nil && containsID(items, id))

	// 5. delete
	delRes := c.client.Delete(ctx, id)
	rec.Check("delete: 200/204", rec.Record(ctx, StepDelete, delRes, http.StatusOK, http.StatusNoContent))

	// 6. verify delete; 404 is the success condition
	goneRes := c.client.Get(ctx, id)
	rec.Check("get after delete: 404", rec.Record(ctx, StepVerifyDelete, goneRes, http.StatusNotFound))

	if c.cleanOld {
		report.Swept = Sweep(ctx, c.client, rec, listRes)
	}

	c.logger.Debug("cycle complete",
		"vu", it.VU,
		"iter", it.Iter,
		"id", string(id),
		"swept", report.Swept,
	)
	return report, nil
}

func containsID(items []journal.Item, id journal.EntryID) bool {
	for _, item := range items {
		if itemID, ok := item.ID(); ok && itemID == id {
			return true
		}
	}
	return false
}
