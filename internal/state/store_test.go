package state

import (
	"testing"
	"time"

	"gitnot/internal/diff"
	"gitnot/internal/errors"
	"gitnot/internal/fingerprint"
	"gitnot/internal/version"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *badger.DB {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable logging for tests

	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStore(t *testing.T) {
	store := NewStore(setupTestDB(t), nil)

	t.Run("Uninitialized", func(t *testing.T) {
		ok, err := store.Initialized()
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = store.Version()
		assert.ErrorIs(t, err, errors.ErrNotInitialized)
	})

	t.Run("Initialize", func(t *testing.T) {
		require.NoError(t, store.Initialize(fingerprint.AlgorithmSHA256))

		ok, err := store.Initialized()
		require.NoError(t, err)
		assert.True(t, ok)

		v, err := store.Version()
		require.NoError(t, err)
		assert.Equal(t, version.Baseline, v)

		alg, err := store.Algorithm()
		require.NoError(t, err)
		assert.Equal(t, fingerprint.AlgorithmSHA256, alg)

		idx, err := store.LoadIndex()
		require.NoError(t, err)
		assert.Empty(t, idx)

		// Second init must not clobber state
		assert.Error(t, store.Initialize(fingerprint.AlgorithmSHA256))
	})

	t.Run("SwapVersion", func(t *testing.T) {
		require.NoError(t, store.SwapVersion(version.Baseline, version.Version{Minor: 1}))

		err := store.SwapVersion(version.Baseline, version.Version{Minor: 2})
		assert.ErrorIs(t, err, errors.ErrCorruptState)

		v, err := store.Version()
		require.NoError(t, err)
		assert.Equal(t, version.Version{Minor: 1}, v)
	})

	t.Run("PendingLifecycle", func(t *testing.T) {
		p, err := store.Pending()
		require.NoError(t, err)
		assert.Nil(t, p)

		idx := fingerprint.Index{"a.txt": {Path: "a.txt", Hash: "abc", Size: 5}}
		pending := &Pending{
			RunID:     uuid.NewString(),
			From:      version.Version{Minor: 1},
			To:        version.Version{Minor: 2},
			Index:     idx,
			Changes:   diff.ChangeSet{Added: []string{"a.txt"}},
			StartedAt: time.Now().UTC(),
		}
		require.NoError(t, store.BeginPending(pending))
		assert.ErrorIs(t, store.BeginPending(pending), errors.ErrCorruptState)

		got, err := store.Pending()
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, pending.RunID, got.RunID)
		assert.Equal(t, pending.To, got.To)
		assert.True(t, idx.Equal(got.Index))

		// Wrong run cannot commit
		err = store.CommitIndex(idx, "someone-else")
		assert.ErrorIs(t, err, errors.ErrCorruptState)

		require.NoError(t, store.CommitIndex(idx, pending.RunID))

		got, err = store.Pending()
		require.NoError(t, err)
		assert.Nil(t, got)

		loaded, err := store.LoadIndex()
		require.NoError(t, err)
		assert.True(t, idx.Equal(loaded))
	})

	t.Run("ClearPending", func(t *testing.T) {
		runID := uuid.NewString()
		require.NoError(t, store.BeginPending(&Pending{RunID: runID}))
		require.NoError(t, store.ClearPending(runID))
		assert.ErrorIs(t, store.ClearPending(runID), errors.ErrCorruptState)

		// Index untouched by a cleared journal
		loaded, err := store.LoadIndex()
		require.NoError(t, err)
		assert.Len(t, loaded, 1)
	})
}

func TestCorruptValues(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, nil)
	require.NoError(t, store.Initialize(fingerprint.AlgorithmBLAKE3))

	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyIndex), []byte("{not json"))
	}))

	_, err := store.LoadIndex()
	assert.ErrorIs(t, err, errors.ErrCorruptState)
}
