package history

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory history store for testing and ephemeral use.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]map[string]storedResult // runID -> node -> result
	closed bool
}

// storedResult holds result data with metadata for ListRun().
type storedResult struct {
	data      []byte
	sequence  int
	timestamp time.Time
}

// NewMemoryStore creates a new in-memory history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]storedResult),
	}
}

// SaveResult implements Store.
func (m *MemoryStore) SaveResult(runID, node string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if m.data[runID] == nil {
		m.data[runID] = make(map[string]storedResult)
	}

	// A re-saved node keeps its original sequence slot; only new nodes
	// advance the counter.
	seq := 0
	if existing, ok := m.data[runID][node]; ok {
		seq = existing.sequence
	} else {
		for _, r := range m.data[runID] {
			if r.sequence >= seq {
				seq = r.sequence + 1
			}
		}
	}

	// Copy data to avoid retaining the caller's slice.
	stored := make([]byte, len(data))
	copy(stored, data)

	m.data[runID][node] = storedResult{
		data:      stored,
		sequence:  seq,
		timestamp: time.Now().UTC(),
	}

	return nil
}

// LoadResult implements Store.
func (m *MemoryStore) LoadResult(runID, node string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	run, ok := m.data[runID]
	if !ok {
		return nil, ErrNotFound
	}
	r, ok := run[node]
	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy to prevent modification.
	result := make([]byte, len(r.data))
	copy(result, r.data)
	return result, nil
}

// ListRun implements Store.
func (m *MemoryStore) ListRun(runID string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	run, ok := m.data[runID]
	if !ok {
		return []Entry{}, nil
	}

	entries := make([]Entry, 0, len(run))
	for node, r := range run {
		entries = append(entries, Entry{
			RunID:     runID,
			Node:      node,
			Sequence:  r.sequence,
			Timestamp: r.timestamp,
			Size:      int64(len(r.data)),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Sequence < entries[j].Sequence
	})
	return entries, nil
}

// Runs implements Store.
func (m *MemoryStore) Runs() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	type runStamp struct {
		id     string
		latest time.Time
	}
	stamps := make([]runStamp, 0, len(m.data))
	for id, run := range m.data {
		var latest time.Time
		for _, r := range run {
			if r.timestamp.After(latest) {
				latest = r.timestamp
			}
		}
		stamps = append(stamps, runStamp{id: id, latest: latest})
	}
	sort.Slice(stamps, func(i, j int) bool {
		return stamps[i].latest.After(stamps[j].latest)
	})

	ids := make([]string, len(stamps))
	for i, s := range stamps {
		ids[i] = s.id
	}
	return ids, nil
}

// DeleteRun implements Store.
func (m *MemoryStore) DeleteRun(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.data, runID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}
