package fingerprint

import (
	"context"
	stderrors "errors"
	"path"
	"testing"

	"gitnot/internal/errors"
	"gitnot/internal/fsys"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTree(t *testing.T, files map[string]string) *fsys.MemoryFS {
	m := fsys.NewMemoryFS()
	require.NoError(t, m.MkdirAll("/proj/.gitnot/db", 0o755))
	require.NoError(t, m.WriteFile("/proj/.gitnot/db/MANIFEST", []byte("state"), 0o644))
	for p, content := range files {
		abs := "/proj/" + p
		require.NoError(t, m.MkdirAll(path.Dir(abs), 0o755))
		require.NoError(t, m.WriteFile(abs, []byte(content), 0o644))
	}
	return m
}

func newTestHasher(t *testing.T, m fsys.FS, algorithm string) *Hasher {
	h, err := NewHasher(m, algorithm, NewFilter(".gitnot", nil, []string{"*.tmp"}), 4, nil)
	require.NoError(t, err)
	return h
}

func TestHasher(t *testing.T) {
	m := setupTree(t, map[string]string{
		"a.txt":          "hello",
		"docs/b.md":      "world",
		"docs/deep/c.go": "package c",
		"scratch.tmp":    "ignored",
	})

	h := newTestHasher(t, m, AlgorithmSHA256)

	t.Run("IndexesTrackedFiles", func(t *testing.T) {
		idx, err := h.Hash(context.Background(), "/proj")
		require.NoError(t, err)

		assert.Equal(t, []string{"a.txt", "docs/b.md", "docs/deep/c.go"}, idx.Paths())
		assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", idx["a.txt"].Hash)
		assert.Equal(t, int64(5), idx["a.txt"].Size)
		assert.Equal(t, int64(19), idx.TotalSize())
	})

	t.Run("Deterministic", func(t *testing.T) {
		first, err := h.Hash(context.Background(), "/proj")
		require.NoError(t, err)
		second, err := h.Hash(context.Background(), "/proj")
		require.NoError(t, err)
		assert.True(t, first.Equal(second))
	})

	t.Run("SameContentSameHash", func(t *testing.T) {
		require.NoError(t, m.WriteFile("/proj/copy.txt", []byte("hello"), 0o600))
		defer m.Remove("/proj/copy.txt")

		idx, err := h.Hash(context.Background(), "/proj")
		require.NoError(t, err)
		assert.Equal(t, idx["a.txt"].Hash, idx["copy.txt"].Hash)
	})

	t.Run("ReadFailureAborts", func(t *testing.T) {
		m.Fault = func(op, name string) error {
			if op == "read" && name == "/proj/docs/b.md" {
				return stderrors.New("permission denied")
			}
			return nil
		}
		defer func() { m.Fault = nil }()

		idx, err := h.Hash(context.Background(), "/proj")
		assert.Nil(t, idx)
		assert.ErrorIs(t, err, errors.ErrIO)
		assert.Contains(t, err.Error(), "docs/b.md")
	})

	t.Run("Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := h.Hash(ctx, "/proj")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestHasherBLAKE3(t *testing.T) {
	m := setupTree(t, map[string]string{"a.txt": "hello"})
	h := newTestHasher(t, m, AlgorithmBLAKE3)

	idx, err := h.Hash(context.Background(), "/proj")
	require.NoError(t, err)

	want, err := Sum(AlgorithmBLAKE3, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, want, idx["a.txt"].Hash)
	assert.Len(t, idx["a.txt"].Hash, 64)
}

func TestHasherEmptyTree(t *testing.T) {
	m := setupTree(t, nil)
	h := newTestHasher(t, m, AlgorithmSHA256)

	idx, err := h.Hash(context.Background(), "/proj")
	require.NoError(t, err)
	assert.Empty(t, idx)
}

func TestNewHasherValidation(t *testing.T) {
	_, err := NewHasher(fsys.NewMemoryFS(), "md5", NewFilter(".gitnot", nil, nil), 1, nil)
	assert.Error(t, err)
}
