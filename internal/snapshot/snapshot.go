// Package snapshot keeps one full copy of the tracked tree per committed version.
package snapshot

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"gitnot/internal/errors"
	"gitnot/internal/fingerprint"
	"gitnot/internal/fsys"
	"gitnot/internal/version"

	"go.uber.org/zap"
)

// Manager writes and reads snapshots under dir/<version>/.
type Manager struct {
	fs        fsys.FS
	dir       string
	algorithm string
	logger    *zap.Logger
}

func NewManager(fs fsys.FS, dir, algorithm string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		fs:        fs,
		dir:       dir,
		algorithm: algorithm,
		logger:    logger,
	}
}

func (m *Manager) Path(v version.Version) string {
	return filepath.Join(m.dir, v.String())
}

func (m *Manager) filePath(v version.Version, rel string) string {
	return filepath.Join(m.Path(v), filepath.FromSlash(rel))
}

// Commit copies every file in idx from root into the snapshot for v. Each copy is
// re-hashed, and a file whose bytes no longer match idx aborts the commit.
func (m *Manager) Commit(ctx context.Context, v version.Version, root string, idx fingerprint.Index) error {
	if m.Exists(v) {
		return errors.CorruptState("write snapshot", "snapshot already exists").WithVersion(v.String())
	}

	// An empty tree still gets its directory so the version is visible.
	if err := m.fs.MkdirAll(m.Path(v), 0o755); err != nil {
		return errors.IO("write snapshot", m.Path(v), err).WithVersion(v.String())
	}

	for _, rel := range idx.Paths() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("snapshot %s interrupted: %w", v, err)
		}

		data, err := m.fs.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return errors.IO("copy file", rel, err).WithVersion(v.String())
		}

		sum, err := fingerprint.Sum(m.algorithm, data)
		if err != nil {
			return err
		}
		if sum != idx[rel].Hash {
			return errors.IO("copy file", rel, fmt.Errorf("file changed during sync")).WithVersion(v.String())
		}

		if err := fsys.WriteFileAtomic(m.fs, m.filePath(v, rel), data, 0o644); err != nil {
			return errors.IO("write snapshot", rel, err).WithVersion(v.String())
		}
	}

	m.logger.Debug("snapshot written", zap.Stringer("version", v), zap.Int("files", len(idx)))
	return nil
}

func (m *Manager) Exists(v version.Version) bool {
	return fsys.Exists(m.fs, m.Path(v))
}

// Read returns the bytes rel had in version v.
func (m *Manager) Read(v version.Version, rel string) ([]byte, error) {
	data, err := m.fs.ReadFile(m.filePath(v, rel))
	if err != nil {
		return nil, errors.IO("read snapshot", rel, err).WithVersion(v.String())
	}
	return data, nil
}

// Discard removes the snapshot for v. Only uncommitted attempts may be discarded.
func (m *Manager) Discard(v version.Version) error {
	if err := m.fs.RemoveAll(m.Path(v)); err != nil {
		return errors.IO("discard snapshot", m.Path(v), err).WithVersion(v.String())
	}
	m.logger.Info("snapshot discarded", zap.Stringer("version", v))
	return nil
}

// Versions lists snapshot versions in ascending order.
func (m *Manager) Versions() ([]version.Version, error) {
	return listVersions(m.fs, m.dir)
}

func listVersions(fs fsys.FS, dir string) ([]version.Version, error) {
	entries, err := fs.ReadDir(dir)
	if err != nil {
		if fsys.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.IO("list versions", dir, err)
	}

	var out []version.Version
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v, err := version.Parse(e.Name())
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}
