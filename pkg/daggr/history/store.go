// Package history provides persistent storage of per-run node results.
//
// The engine treats history as a best-effort record: a failed write is
// logged and never aborts a run. Stores must be safe for concurrent use.
package history

import (
	"errors"
	"time"
)

// Store persists serialized node results keyed by run and node.
type Store interface {
	// SaveResult stores a node's serialized result for a run.
	// Overwrites if a result for (runID, node) already exists.
	SaveResult(runID, node string, data []byte) error

	// LoadResult retrieves a node's serialized result.
	// Returns ErrNotFound if no result exists.
	LoadResult(runID, node string) ([]byte, error)

	// ListRun returns all result entries for a run, ordered by sequence.
	// Returns an empty slice (not an error) if the run has no entries.
	ListRun(runID string) ([]Entry, error)

	// Runs returns the ids of all recorded runs, most recent first.
	Runs() ([]string, error)

	// DeleteRun removes all entries for a run.
	// Returns nil if the run has no entries.
	DeleteRun(runID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Entry provides result metadata without loading the payload.
type Entry struct {
	RunID     string
	Node      string
	Sequence  int
	Timestamp time.Time
	Size      int64
}

// Sentinel errors for history operations.
var (
	// ErrNotFound indicates no result exists for the requested key.
	ErrNotFound = errors.New("history entry not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("history store closed")
)
