package archive

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"gitnot/internal/errors"
	"gitnot/internal/fsys"
	"gitnot/internal/version"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapSource map[string]string

func (s mapSource) Read(v version.Version, path string) ([]byte, error) {
	content, ok := s[v.String()+"/"+path]
	if !ok {
		return nil, stderrors.New("missing " + path)
	}
	return []byte(content), nil
}

func setupTestDB(t *testing.T) *badger.DB {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestManager(t *testing.T, m fsys.FS, db *badger.DB, compression string) *Manager {
	mgr, err := NewManager(m, db, Options{Dir: "/proj/.gitnot/archive", Compression: compression, CacheSize: 2}, nil)
	require.NoError(t, err)
	return mgr
}

func TestArchive(t *testing.T) {
	for _, compression := range []string{CompressionNone, CompressionZstd} {
		t.Run(compression, func(t *testing.T) {
			m := fsys.NewMemoryFS()
			db := setupTestDB(t)
			mgr := newTestManager(t, m, db, compression)

			v1 := version.Version{Minor: 1}
			big := strings.Repeat("compressible line\n", 200)
			src := mapSource{
				"v0.1/a.txt":     "hello",
				"v0.1/docs/b.md": big,
			}

			require.NoError(t, mgr.Commit(context.Background(), v1, []string{"a.txt", "docs/b.md"}, src))

			// Fresh manager bypasses the cache and reads back from disk
			fresh := newTestManager(t, m, db, compression)
			data, err := fresh.Get(v1, "docs/b.md")
			require.NoError(t, err)
			assert.Equal(t, big, string(data))

			data, err = fresh.Get(v1, "a.txt")
			require.NoError(t, err)
			assert.Equal(t, "hello", string(data))

			entries, err := fresh.List(v1)
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, "a.txt", entries[0].Path)
			assert.Equal(t, "docs/b.md", entries[1].Path)
			assert.Equal(t, compression == CompressionZstd, entries[1].Compressed)
			assert.False(t, entries[0].Compressed, "small files are stored raw")
			assert.Equal(t, int64(len(big)), entries[1].Size)

			if compression == CompressionZstd {
				stored, err := m.ReadFile("/proj/.gitnot/archive/v0.1/docs/b.md")
				require.NoError(t, err)
				assert.Less(t, len(stored), len(big))
			}
		})
	}
}

func TestArchiveIdempotent(t *testing.T) {
	m := fsys.NewMemoryFS()
	mgr := newTestManager(t, m, setupTestDB(t), CompressionNone)
	v1 := version.Version{Minor: 1}

	src := mapSource{"v0.1/a.txt": "hello"}
	require.NoError(t, mgr.Commit(context.Background(), v1, []string{"a.txt"}, src))
	require.NoError(t, mgr.Commit(context.Background(), v1, []string{"a.txt"}, src))

	t.Run("DifferentContentRejected", func(t *testing.T) {
		err := mgr.Commit(context.Background(), v1, []string{"a.txt"}, mapSource{"v0.1/a.txt": "other"})
		assert.ErrorIs(t, err, errors.ErrCorruptState)

		data, err := mgr.Get(v1, "a.txt")
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
	})
}

func TestArchiveReadsOldCompressedEntries(t *testing.T) {
	m := fsys.NewMemoryFS()
	db := setupTestDB(t)
	big := strings.Repeat("x", 4096)

	zmgr := newTestManager(t, m, db, CompressionZstd)
	require.NoError(t, zmgr.Commit(context.Background(), version.Baseline, []string{"f"}, mapSource{"v0.0/f": big}))

	plain := newTestManager(t, m, db, CompressionNone)
	data, err := plain.Get(version.Baseline, "f")
	require.NoError(t, err)
	assert.Equal(t, big, string(data))
}

func TestArchiveCompressedNameCollision(t *testing.T) {
	m := fsys.NewMemoryFS()
	db := setupTestDB(t)
	mgr := newTestManager(t, m, db, CompressionZstd)

	v1 := version.Version{Minor: 1}
	notes := strings.Repeat("meeting notes line\n", 200)
	frame := "already compressed payload"
	src := mapSource{
		"v0.1/notes.txt":     notes,
		"v0.1/notes.txt.zst": frame,
	}
	require.NoError(t, mgr.Commit(context.Background(), v1, []string{"notes.txt", "notes.txt.zst"}, src))

	fresh := newTestManager(t, m, db, CompressionZstd)

	data, err := fresh.Get(v1, "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, notes, string(data))

	data, err = fresh.Get(v1, "notes.txt.zst")
	require.NoError(t, err)
	assert.Equal(t, frame, string(data))

	entries, err := fresh.List(v1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Compressed)
	assert.False(t, entries[1].Compressed)
}

func TestArchiveVersionsAndDiscard(t *testing.T) {
	m := fsys.NewMemoryFS()
	mgr := newTestManager(t, m, setupTestDB(t), CompressionNone)

	v1, v10 := version.Version{Minor: 1}, version.Version{Minor: 10}
	require.NoError(t, mgr.Commit(context.Background(), v10, []string{"a"}, mapSource{"v0.10/a": "later"}))
	require.NoError(t, mgr.Commit(context.Background(), v1, []string{"a", "b"}, mapSource{"v0.1/a": "1", "v0.1/b": "2"}))

	versions, err := mgr.Versions()
	require.NoError(t, err)
	assert.Equal(t, []version.Version{v1, v10}, versions)

	require.NoError(t, mgr.Discard(v1))

	entries, err := mgr.List(v1)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.False(t, fsys.Exists(m, "/proj/.gitnot/archive/v0.1"))

	_, err = mgr.Get(v1, "a")
	assert.ErrorIs(t, err, errors.ErrIO)

	data, err := mgr.Get(v10, "a")
	require.NoError(t, err)
	assert.Equal(t, "later", string(data))
}

func TestArchiveWriteFailure(t *testing.T) {
	m := fsys.NewMemoryFS()
	mgr := newTestManager(t, m, setupTestDB(t), CompressionNone)

	m.Fault = func(op, name string) error {
		if op == "write" {
			return stderrors.New("disk full")
		}
		return nil
	}
	err := mgr.Commit(context.Background(), version.Baseline, []string{"a"}, mapSource{"v0.0/a": "x"})
	assert.ErrorIs(t, err, errors.ErrIO)
	m.Fault = nil

	entries, err := mgr.List(version.Baseline)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(fsys.NewMemoryFS(), nil, Options{}, nil)
	assert.Error(t, err)

	_, err = NewManager(fsys.NewMemoryFS(), nil, Options{Dir: "/a", Compression: "lz4"}, nil)
	assert.Error(t, err)
}
