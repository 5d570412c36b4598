// Package changelog records one human-readable entry per committed version.
package changelog

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gitnot/internal/diff"
	"gitnot/internal/errors"
	"gitnot/internal/fsys"
	"gitnot/internal/version"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const keyPrefix = "changelog:"

// TimeFormat is the timestamp layout used in rendered entries.
const TimeFormat = "2006-01-02 15:04"

type Entry struct {
	Version   version.Version `json:"version"`
	RunID     string          `json:"run_id"`
	Timestamp time.Time       `json:"timestamp"`
	Added     []string        `json:"added"`
	Modified  []string        `json:"modified"`
	Removed   []string        `json:"removed"`
}

func NewEntry(v version.Version, runID string, ts time.Time, cs diff.ChangeSet) Entry {
	return Entry{
		Version:   v,
		RunID:     runID,
		Timestamp: ts,
		Added:     cs.Added,
		Modified:  cs.Modified,
		Removed:   cs.Removed,
	}
}

// Markdown renders the entry in the on-disk changelog format.
func (e Entry) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s – %s\n", e.Version, e.Timestamp.Local().Format(TimeFormat))

	section := func(title string, paths []string) {
		if len(paths) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n### %s\n\n", title)
		for _, p := range paths {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	section("Added", e.Added)
	section("Modified", e.Modified)
	section("Removed", e.Removed)

	return b.String()
}

// Writer persists entries as badger records plus a markdown file per version.
type Writer struct {
	fs     fsys.FS
	db     *badger.DB
	dir    string
	logger *zap.Logger
}

func NewWriter(fs fsys.FS, db *badger.DB, dir string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		fs:     fs,
		db:     db,
		dir:    dir,
		logger: logger,
	}
}

// Write records e. A second entry for the same version from another run is a
// conflict; rewriting the same run's entry is a no-op.
func (w *Writer) Write(e Entry) error {
	existing, err := w.Get(e.Version)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.RunID != e.RunID {
			return errors.Conflict(e.Version.String())
		}
		return nil
	}

	if err := fsys.WriteFileAtomic(w.fs, w.path(e.Version), []byte(e.Markdown()), 0o644); err != nil {
		return errors.IO("write changelog", w.path(e.Version), err).WithVersion(e.Version.String())
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling changelog entry: %w", err)
	}

	err = w.db.Update(func(txn *badger.Txn) error {
		key := w.key(e.Version)
		item, err := txn.Get(key)
		if err == nil {
			var other Entry
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &other) }); err != nil {
				return err
			}
			if other.RunID != e.RunID {
				return errors.Conflict(e.Version.String())
			}
			return nil
		} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("recording changelog entry: %w", err)
	}

	w.logger.Debug("changelog written", zap.Stringer("version", e.Version), zap.String("run_id", e.RunID))
	return nil
}

// Get returns the entry for v, or nil if none was recorded.
func (w *Writer) Get(v version.Version) (*Entry, error) {
	var e Entry
	found := false
	err := w.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(w.key(v))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reading changelog entry %s: %w", v, err)
	}
	if !found {
		return nil, nil
	}
	return &e, nil
}

// List returns every recorded entry ordered by version.
func (w *Writer) List() ([]Entry, error) {
	var entries []Entry
	err := w.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing changelog: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Version.Less(entries[j].Version) })
	return entries, nil
}

// Discard removes what run runID wrote for v. An entry owned by another run is
// left alone.
func (w *Writer) Discard(v version.Version, runID string) error {
	existing, err := w.Get(v)
	if err != nil {
		return err
	}
	if existing != nil && existing.RunID != runID {
		return nil
	}

	if existing != nil {
		err := w.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(w.key(v))
		})
		if err != nil {
			return fmt.Errorf("deleting changelog entry %s: %w", v, err)
		}
	}

	if err := w.fs.Remove(w.path(v)); err != nil && !fsys.IsNotExist(err) {
		return errors.IO("discard changelog", w.path(v), err).WithVersion(v.String())
	}
	return nil
}

func (w *Writer) key(v version.Version) []byte {
	return []byte(keyPrefix + v.String())
}

func (w *Writer) path(v version.Version) string {
	return filepath.Join(w.dir, v.String()+".md")
}
