package sweep

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig reports bad sweep parameters such as points < 1.
	ErrInvalidConfig = errors.New("invalid sweep config")
	// ErrNotConfigured reports a start with no plan or no attached instrument.
	ErrNotConfigured = errors.New("sweep not configured")
	// ErrAlreadyRunning reports a start or configure while a run is active.
	ErrAlreadyRunning = errors.New("sweep already in progress")
	// ErrNotRunning reports an abort with no active run.
	ErrNotRunning = errors.New("no sweep in progress")
	// ErrNoData reports an export of an empty trace store.
	ErrNoData = errors.New("no data")
)

// InstrumentError wraps a failure from the attached instrument.
type InstrumentError struct {
	Op  string
	Err error
}

func (e *InstrumentError) Error() string {
	return fmt.Sprintf("instrument %s: %v", e.Op, e.Err)
}

func (e *InstrumentError) Unwrap() error { return e.Err }

// ExportError wraps a failure to export traces. Path is empty when the
// export targeted a writer rather than a file.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("export: %v", e.Err)
	}
	return fmt.Sprintf("export %s: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
