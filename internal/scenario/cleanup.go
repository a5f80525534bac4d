package scenario

import (
	"context"
	"net/http"

	"github.com/cfergile/journal-starter/internal/journal"
)

// sweepStatuses are acceptable for cleanup deletes. 404 covers entries a
// concurrent VU removed first.
var sweepStatuses = []int{http.StatusOK, http.StatusNoContent, http.StatusNotFound}

// Sweep deletes every test entry in a list response and returns how many
// delete requests it issued.
//
// A list that did not return 200, or whose body is not an array, sweeps
// nothing. Items whose work is not a string starting with TestPrefix, or
// that have no usable id, are skipped. Delete failures are recorded but
// never abort the caller.
func Sweep(ctx context.Context, client *journal.Client, rec *IterationRecorder, list *journal.Response) int {
	if list.Status != http.StatusOK {
		return 0
	}
	items, err := list.Items()
	if err != nil {
		return 0
	}

	issued := 0
	for _, item := range items {
		work, ok := item.Work()
		if !ok || !IsTestEntry(work) {
			continue
		}
		id, ok := item.ID()
		if !ok {
			continue
		}
		rec.Record(ctx, StepCleanup, client.Delete(ctx, id), sweepStatuses...)
		issued++
	}
	return issued
}
