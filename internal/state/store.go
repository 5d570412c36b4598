// internal/state/store.go
package state

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"gitnot/internal/diff"
	"gitnot/internal/errors"
	"gitnot/internal/fingerprint"
	"gitnot/internal/version"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const (
	keyVersion   = "meta:version"
	keyAlgorithm = "meta:algorithm"
	keyPending   = "meta:pending"
	keyIndex     = "index:current"
)

// Pending journals a sync that has started committing. It is written before the
// first archive write and removed in the same transaction that installs the new
// index, so its presence on startup means the previous run did not finish.
type Pending struct {
	RunID     string            `json:"run_id"`
	From      version.Version   `json:"from"`
	To        version.Version   `json:"to"`
	Index     fingerprint.Index `json:"index"`
	Changes   diff.ChangeSet    `json:"changes"`
	StartedAt time.Time         `json:"started_at"`
}

// Store persists the fingerprint index, the version marker and the sync journal.
type Store struct {
	db     *badger.DB
	logger *zap.Logger
}

func NewStore(db *badger.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:     db,
		logger: logger,
	}
}

// Initialize records the baseline version, the digest algorithm and an empty index.
func (s *Store) Initialize(algorithm string) error {
	if !fingerprint.ValidAlgorithm(algorithm) {
		return fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(keyVersion))
		if err == nil {
			return fmt.Errorf("state already initialized")
		} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := setJSON(txn, keyVersion, version.Baseline); err != nil {
			return err
		}
		if err := txn.Set([]byte(keyAlgorithm), []byte(algorithm)); err != nil {
			return err
		}
		return setJSON(txn, keyIndex, fingerprint.Index{})
	})
}

func (s *Store) Initialized() (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(keyVersion))
		if err == nil {
			found = true
			return nil
		}
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	return found, err
}

func (s *Store) Version() (version.Version, error) {
	var v version.Version
	err := s.db.View(func(txn *badger.Txn) error {
		found, err := getJSON(txn, keyVersion, &v)
		if err != nil {
			return err
		}
		if !found {
			return errors.NotInitialized("")
		}
		return nil
	})
	return v, err
}

// SwapVersion implements version.Marker.
func (s *Store) SwapVersion(old, new version.Version) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var cur version.Version
		found, err := getJSON(txn, keyVersion, &cur)
		if err != nil {
			return err
		}
		if !found {
			return errors.NotInitialized("")
		}
		if cur != old {
			return errors.CorruptState("swap version",
				fmt.Sprintf("marker is %s, expected %s", cur, old))
		}
		return setJSON(txn, keyVersion, new)
	})
}

func (s *Store) Algorithm() (string, error) {
	var algorithm string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyAlgorithm))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.CorruptState("read algorithm", "no hash algorithm recorded")
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			algorithm = string(val)
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	if !fingerprint.ValidAlgorithm(algorithm) {
		return "", errors.CorruptState("read algorithm", fmt.Sprintf("unknown algorithm %q", algorithm))
	}
	return algorithm, nil
}

// LoadIndex returns the last committed fingerprint index.
func (s *Store) LoadIndex() (fingerprint.Index, error) {
	idx := fingerprint.Index{}
	err := s.db.View(func(txn *badger.Txn) error {
		found, err := getJSON(txn, keyIndex, &idx)
		if err != nil {
			return err
		}
		if !found {
			return errors.CorruptState("load index", "no fingerprint index recorded")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// Pending returns the journal of an unfinished sync, or nil.
func (s *Store) Pending() (*Pending, error) {
	var p Pending
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, keyPending, &p)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

// BeginPending records the journal for a new sync attempt.
func (s *Store) BeginPending(p *Pending) error {
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(keyPending))
		if err == nil {
			return errors.CorruptState("begin sync", "a previous sync is still pending")
		} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return setJSON(txn, keyPending, p)
	})
}

// ClearPending drops the journal for runID without touching the index.
func (s *Store) ClearPending(runID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := checkPending(txn, runID); err != nil {
			return err
		}
		return txn.Delete([]byte(keyPending))
	})
}

// CommitIndex installs idx as the new baseline and clears the journal for runID
// in one transaction.
func (s *Store) CommitIndex(idx fingerprint.Index, runID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := checkPending(txn, runID); err != nil {
			return err
		}
		if err := setJSON(txn, keyIndex, idx); err != nil {
			return err
		}
		return txn.Delete([]byte(keyPending))
	})
	if err != nil {
		return fmt.Errorf("committing index: %w", err)
	}

	s.logger.Debug("index committed", zap.Int("files", len(idx)), zap.String("run_id", runID))
	return nil
}

func checkPending(txn *badger.Txn, runID string) error {
	var p Pending
	found, err := getJSON(txn, keyPending, &p)
	if err != nil {
		return err
	}
	if !found {
		return errors.CorruptState("clear pending", "no sync is pending")
	}
	if p.RunID != runID {
		return errors.CorruptState("clear pending",
			fmt.Sprintf("pending run is %s, not %s", p.RunID, runID))
	}
	return nil
}

func setJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

func getJSON(txn *badger.Txn, key string, v any) (bool, error) {
	item, err := txn.Get([]byte(key))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
	if err != nil {
		return false, errors.CorruptState("decode "+key, err.Error())
	}
	return true, nil
}
