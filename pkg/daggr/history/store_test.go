package history

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories builds every Store implementation against a temp
// directory so the whole contract suite runs once per backend.
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
			require.NoError(t, err)
			return s
		},
	}
}

// TestStore_SaveLoad tests the basic round trip on every backend.
func TestStore_SaveLoad(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()

			require.NoError(t, s.SaveResult("run-1", "double", []byte(`{"output":14}`)))

			data, err := s.LoadResult("run-1", "double")
			require.NoError(t, err)
			assert.JSONEq(t, `{"output":14}`, string(data))
		})
	}
}

// TestStore_LoadMissing tests the not-found sentinel.
func TestStore_LoadMissing(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()

			_, err := s.LoadResult("no-such-run", "node")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.SaveResult("run-1", "a", []byte("1")))
			_, err = s.LoadResult("run-1", "missing-node")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

// TestStore_Overwrite tests that re-saving a node replaces the payload but
// keeps the node's sequence slot.
func TestStore_Overwrite(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()

			require.NoError(t, s.SaveResult("run-1", "a", []byte("1")))
			require.NoError(t, s.SaveResult("run-1", "b", []byte("2")))
			require.NoError(t, s.SaveResult("run-1", "a", []byte("99")))

			data, err := s.LoadResult("run-1", "a")
			require.NoError(t, err)
			assert.Equal(t, "99", string(data))

			entries, err := s.ListRun("run-1")
			require.NoError(t, err)
			require.Len(t, entries, 2)
			// a still sorts before b despite being written last.
			assert.Equal(t, "a", entries[0].Node)
			assert.Equal(t, "b", entries[1].Node)
		})
	}
}

// TestStore_ListRun tests sequence ordering and metadata.
func TestStore_ListRun(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()

			require.NoError(t, s.SaveResult("run-1", "first", []byte("aa")))
			require.NoError(t, s.SaveResult("run-1", "second", []byte("bbbb")))
			require.NoError(t, s.SaveResult("run-2", "other", []byte("c")))

			entries, err := s.ListRun("run-1")
			require.NoError(t, err)
			require.Len(t, entries, 2)

			assert.Equal(t, "first", entries[0].Node)
			assert.Equal(t, "run-1", entries[0].RunID)
			assert.Equal(t, int64(2), entries[0].Size)
			assert.False(t, entries[0].Timestamp.IsZero())

			assert.Equal(t, "second", entries[1].Node)
			assert.Less(t, entries[0].Sequence, entries[1].Sequence)
		})
	}
}

// TestStore_ListRun_Empty tests that an unknown run yields an empty slice,
// not an error.
func TestStore_ListRun_Empty(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()

			entries, err := s.ListRun("ghost")
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

// TestStore_Runs tests run enumeration.
func TestStore_Runs(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()

			runs, err := s.Runs()
			require.NoError(t, err)
			assert.Empty(t, runs)

			require.NoError(t, s.SaveResult("run-1", "a", []byte("1")))
			require.NoError(t, s.SaveResult("run-2", "a", []byte("2")))

			runs, err = s.Runs()
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"run-1", "run-2"}, runs)
		})
	}
}

// TestStore_DeleteRun tests deletion and its tolerance of unknown runs.
func TestStore_DeleteRun(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()

			require.NoError(t, s.SaveResult("run-1", "a", []byte("1")))
			require.NoError(t, s.DeleteRun("run-1"))

			_, err := s.LoadResult("run-1", "a")
			assert.ErrorIs(t, err, ErrNotFound)

			assert.NoError(t, s.DeleteRun("never-existed"))
		})
	}
}

// TestStore_Closed tests that operations after Close fail with the
// sentinel.
func TestStore_Closed(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			require.NoError(t, s.Close())

			assert.ErrorIs(t, s.SaveResult("r", "n", []byte("x")), ErrStoreClosed)
			_, err := s.LoadResult("r", "n")
			assert.ErrorIs(t, err, ErrStoreClosed)
			_, err = s.ListRun("r")
			assert.ErrorIs(t, err, ErrStoreClosed)
			_, err = s.Runs()
			assert.ErrorIs(t, err, ErrStoreClosed)
			assert.ErrorIs(t, s.DeleteRun("r"), ErrStoreClosed)
		})
	}
}

// TestMemoryStore_DataIsolation tests that stored payloads are copies.
func TestMemoryStore_DataIsolation(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	payload := []byte("original")
	require.NoError(t, s.SaveResult("run-1", "a", payload))
	payload[0] = 'X'

	data, err := s.LoadResult("run-1", "a")
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	// Mutating a loaded copy does not affect the store either.
	data[0] = 'Y'
	again, err := s.LoadResult("run-1", "a")
	require.NoError(t, err)
	assert.Equal(t, "original", string(again))
}

// TestSQLiteStore_Persistence tests that data survives reopening the file.
func TestSQLiteStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveResult("run-1", "a", []byte("persisted")))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	data, err := reopened.LoadResult("run-1", "a")
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(data))
}
