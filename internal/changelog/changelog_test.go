package changelog

import (
	stderrors "errors"
	"testing"
	"time"

	"gitnot/internal/diff"
	"gitnot/internal/errors"
	"gitnot/internal/fsys"
	"gitnot/internal/version"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *badger.DB {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMarkdown(t *testing.T) {
	ts := time.Date(2026, 10, 16, 14, 3, 0, 0, time.Local)
	e := NewEntry(version.Version{Minor: 2}, "run", ts, diff.ChangeSet{
		Added:    []string{"new.txt"},
		Modified: []string{"a.txt", "docs/b.md"},
		Removed:  []string{},
	})

	want := "## v0.2 – 2026-10-16 14:03\n" +
		"\n### Added\n\n- new.txt\n" +
		"\n### Modified\n\n- a.txt\n- docs/b.md\n"
	assert.Equal(t, want, e.Markdown())
}

func TestWriter(t *testing.T) {
	m := fsys.NewMemoryFS()
	w := NewWriter(m, setupTestDB(t), "/proj/.gitnot/changelog", nil)

	v1 := version.Version{Minor: 1}
	e := NewEntry(v1, "run-1", time.Now(), diff.ChangeSet{Added: []string{"a.txt"}})

	t.Run("Write", func(t *testing.T) {
		require.NoError(t, w.Write(e))

		got, err := w.Get(v1)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "run-1", got.RunID)
		assert.Equal(t, []string{"a.txt"}, got.Added)

		md, err := m.ReadFile("/proj/.gitnot/changelog/v0.1.md")
		require.NoError(t, err)
		assert.Contains(t, string(md), "## v0.1 – ")
		assert.Contains(t, string(md), "- a.txt")
	})

	t.Run("SameRunIsNoop", func(t *testing.T) {
		assert.NoError(t, w.Write(e))
	})

	t.Run("Conflict", func(t *testing.T) {
		other := NewEntry(v1, "run-2", time.Now(), diff.ChangeSet{Removed: []string{"a.txt"}})
		err := w.Write(other)
		assert.ErrorIs(t, err, errors.ErrCorruptState)

		got, err := w.Get(v1)
		require.NoError(t, err)
		assert.Equal(t, "run-1", got.RunID)
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, w.Write(NewEntry(version.Version{Minor: 10}, "r10", time.Now(), diff.ChangeSet{})))
		require.NoError(t, w.Write(NewEntry(version.Version{Minor: 2}, "r2", time.Now(), diff.ChangeSet{})))

		entries, err := w.List()
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "v0.1", entries[0].Version.String())
		assert.Equal(t, "v0.2", entries[1].Version.String())
		assert.Equal(t, "v0.10", entries[2].Version.String())
	})

	t.Run("Discard", func(t *testing.T) {
		// Another run's entry survives
		require.NoError(t, w.Discard(v1, "run-9"))
		got, err := w.Get(v1)
		require.NoError(t, err)
		assert.NotNil(t, got)

		require.NoError(t, w.Discard(v1, "run-1"))
		got, err = w.Get(v1)
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.False(t, fsys.Exists(m, "/proj/.gitnot/changelog/v0.1.md"))

		// Nothing left to discard
		require.NoError(t, w.Discard(v1, "run-1"))
	})
}

func TestWriteFailureLeavesNoRecord(t *testing.T) {
	m := fsys.NewMemoryFS()
	w := NewWriter(m, setupTestDB(t), "/c", nil)
	v1 := version.Version{Minor: 1}

	m.Fault = func(op, name string) error {
		if op == "rename" {
			return stderrors.New("disk full")
		}
		return nil
	}
	err := w.Write(NewEntry(v1, "run", time.Now(), diff.ChangeSet{}))
	assert.ErrorIs(t, err, errors.ErrIO)
	m.Fault = nil

	got, err := w.Get(v1)
	require.NoError(t, err)
	assert.Nil(t, got)
}
