package source

import (
	"context"
	"fmt"

	"github.com/carsift/carsift/internal/archive"
	"github.com/carsift/carsift/internal/model"
)

// Result is one adapter's contribution to a search: the normalized records
// it extracted and the concrete upstream query URL it derived from the
// criteria.
type Result struct {
	Records  []model.RawListing
	QueryURL string
}

// Adapter translates search criteria into normalized listings for one
// marketplace. Implementations are independent; a failing adapter never
// affects its siblings. Zero records is a valid empty success, not an
// error.
type Adapter interface {
	ID() model.Source
	Search(ctx context.Context, criteria model.Criteria) (Result, error)
}

// AdapterError is the typed failure an adapter raises for network errors,
// non-2xx responses, unexpected markup, or anti-automation blocking.
type AdapterError struct {
	Source model.Source
	Msg    string
	Err    error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Source, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Msg)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Errf builds an AdapterError with a formatted message.
func Errf(src model.Source, format string, args ...any) *AdapterError {
	return &AdapterError{Source: src, Msg: fmt.Sprintf(format, args...)}
}

// WrapErr builds an AdapterError around an underlying cause.
func WrapErr(src model.Source, msg string, err error) *AdapterError {
	return &AdapterError{Source: src, Msg: msg, Err: err}
}

// FromRecord inspects a completed fetch transcript and reports the failure
// it implies, if any. Transport errors, block verdicts, and non-2xx status
// codes all become adapter errors; a clean 2xx returns nil.
func FromRecord(src model.Source, rec *archive.FetchRecord) *AdapterError {
	if rec.Error != "" {
		return Errf(src, "fetch failed: %s", rec.Error)
	}
	if rec.Blocked {
		return Errf(src, "request blocked by %s", rec.BlockSrc)
	}
	if rec.StatusCode < 200 || rec.StatusCode >= 300 {
		return Errf(src, "upstream returned status %d", rec.StatusCode)
	}
	return nil
}
