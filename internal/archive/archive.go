// internal/archive/archive.go
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gitnot/internal/errors"
	"gitnot/internal/fsys"
	"gitnot/internal/version"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const keyPrefix = "archive:"

// Source yields the bytes a path had in a given version.
type Source interface {
	Read(v version.Version, path string) ([]byte, error)
}

// Entry describes one archived file.
type Entry struct {
	Version    version.Version `json:"version"`
	Path       string          `json:"path"`
	Size       int64           `json:"size"`
	Compressed bool            `json:"compressed"`
	StoredAt   time.Time       `json:"stored_at"`
}

// Options configures a Manager.
type Options struct {
	Dir         string // Root of the archive tree
	Compression string // "none" or "zstd"
	Level       int    // zstd level, 0 for default
	CacheSize   int    // Number of entries kept in memory
}

// Manager stores superseded file content keyed by (version, path), where the
// version is the one whose content was replaced. Entry metadata lives in badger
// and the bytes live on disk under Dir.
type Manager struct {
	fs     fsys.FS
	db     *badger.DB
	dir    string
	codec  *codec
	cache  *lru.Cache[string, []byte]
	logger *zap.Logger
}

func NewManager(fs fsys.FS, db *badger.DB, opts Options, logger *zap.Logger) (*Manager, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 128
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	// Entries written with compression stay readable after it is turned off
	c, err := newCodec(opts.Level)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		fs:     fs,
		db:     db,
		dir:    opts.Dir,
		codec:  c,
		cache:  cache,
		logger: logger,
	}

	switch opts.Compression {
	case "", CompressionNone:
		m.codec.enabled = false
	case CompressionZstd:
		m.codec.enabled = true
	default:
		return nil, fmt.Errorf("unsupported archive compression %q", opts.Compression)
	}

	return m, nil
}

// Commit archives the content each path had at from. Archiving bytes identical to
// an existing entry is a no-op, so an interrupted commit can be replayed.
func (m *Manager) Commit(ctx context.Context, from version.Version, paths []string, src Source) error {
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("archive %s interrupted: %w", from, err)
		}

		data, err := src.Read(from, p)
		if err != nil {
			return err
		}

		existing, found, err := m.load(from, p)
		if err != nil {
			return err
		}
		if found {
			if !bytes.Equal(existing, data) {
				return errors.CorruptState("archive file",
					fmt.Sprintf("%s already archived with different content", p)).WithVersion(from.String())
			}
			continue
		}

		if err := m.store(from, p, data); err != nil {
			return err
		}
	}

	if len(paths) > 0 {
		m.logger.Debug("archived files", zap.Stringer("version", from), zap.Int("files", len(paths)))
	}
	return nil
}

// Get returns the exact bytes path had at version v.
func (m *Manager) Get(v version.Version, path string) ([]byte, error) {
	data, found, err := m.load(v, path)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.IO("read archive", path, fmt.Errorf("no archived content")).WithVersion(v.String())
	}
	return data, nil
}

// List returns the entries archived under v, ordered by path.
func (m *Manager) List(v version.Version) ([]Entry, error) {
	return m.scan(keyPrefix + v.String() + ":")
}

// Versions lists the versions that have archived content, ascending.
func (m *Manager) Versions() ([]version.Version, error) {
	entries, err := m.scan(keyPrefix)
	if err != nil {
		return nil, err
	}

	var out []version.Version
	for _, e := range entries {
		if len(out) == 0 || out[len(out)-1] != e.Version {
			out = append(out, e.Version)
		}
	}
	return out, nil
}

// Discard drops every entry archived under v. Only entries written by an
// uncommitted transition out of v may be discarded.
func (m *Manager) Discard(v version.Version) error {
	prefix := []byte(keyPrefix + v.String() + ":")
	err := m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("discarding archive records for %s: %w", v, err)
	}

	root := filepath.Join(m.dir, v.String())
	if err := m.fs.RemoveAll(root); err != nil {
		return errors.IO("discard archive", root, err).WithVersion(v.String())
	}

	for _, k := range m.cache.Keys() {
		if strings.HasPrefix(k, v.String()+":") {
			m.cache.Remove(k)
		}
	}
	return nil
}

// store writes the file first and the record second; a file without a record is
// simply overwritten by the next attempt.
func (m *Manager) store(v version.Version, path string, data []byte) error {
	entry := Entry{
		Version:    v,
		Path:       path,
		Size:       int64(len(data)),
		Compressed: m.codec.shouldCompress(path, len(data)),
		StoredAt:   time.Now().UTC(),
	}

	stored := data
	if entry.Compressed {
		stored = m.codec.encode(data)
	}
	if err := fsys.WriteFileAtomic(m.fs, m.filePath(entry), stored, 0o644); err != nil {
		return errors.IO("archive file", path, err).WithVersion(v.String())
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling archive entry: %w", err)
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(v, path), raw)
	})
	if err != nil {
		return fmt.Errorf("storing archive entry %s: %w", path, err)
	}

	m.cache.Add(cacheKey(v, path), data)
	return nil
}

func (m *Manager) load(v version.Version, path string) ([]byte, bool, error) {
	key := cacheKey(v, path)
	if data, ok := m.cache.Get(key); ok {
		return data, true, nil
	}

	var entry Entry
	found := false
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(v, path))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("reading archive entry %s: %w", path, err)
	}
	if !found {
		return nil, false, nil
	}

	data, err := m.fs.ReadFile(m.filePath(entry))
	if err != nil {
		return nil, false, errors.IO("read archive", path, err).WithVersion(v.String())
	}
	if entry.Compressed {
		if data, err = m.codec.decode(data); err != nil {
			return nil, false, errors.CorruptState("read archive", err.Error()).WithVersion(v.String())
		}
	}
	if int64(len(data)) != entry.Size {
		return nil, false, errors.CorruptState("read archive",
			fmt.Sprintf("%s is %d bytes, recorded %d", path, len(data), entry.Size)).WithVersion(v.String())
	}

	m.cache.Add(key, data)
	return data, true, nil
}

func (m *Manager) scan(prefix string) ([]Entry, error) {
	var entries []Entry
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
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
		return nil, fmt.Errorf("listing archive: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Version != entries[j].Version {
			return entries[i].Version.Less(entries[j].Version)
		}
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}

// filePath mirrors the tracked path so no two entries of a version share a
// file. Whether the bytes are compressed is recorded on the entry only.
func (m *Manager) filePath(e Entry) string {
	return filepath.Join(m.dir, e.Version.String(), filepath.FromSlash(e.Path))
}

func recordKey(v version.Version, path string) []byte {
	return []byte(keyPrefix + v.String() + ":" + path)
}

func cacheKey(v version.Version, path string) string {
	return v.String() + ":" + path
}
