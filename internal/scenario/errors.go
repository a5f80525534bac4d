package scenario

import "fmt"

// IterationError ends one iteration early. The runner logs it and counts
// the iteration as failed; the VU continues.
type IterationError struct {
	// Code identifies the error category.
	Code IterationErrorCode

	// Step names the request that failed.
	Step string

	// VU and Iter identify the iteration.
	VU   int
	Iter int

	// Response describes the failed request.
	Response string
}

// IterationErrorCode categorizes iteration errors.
type IterationErrorCode string

const (
	// ErrCodeCreateFailed indicates the create step returned a bad status
	// or no id. Nothing can be read, updated or deleted without the id.
	ErrCodeCreateFailed IterationErrorCode = "CREATE_FAILED"
)

// Error implements the error interface.
func (e *IterationError) Error() string {
	return fmt.Sprintf("%s: %s failed (vu=%d, iter=%d): %s", e.Code, e.Step, e.VU, e.Iter, e.Response)
}
