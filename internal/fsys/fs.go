// Package fsys abstracts the filesystem operations the engine needs so the whole
// sync pipeline can run against the real disk or an in-memory tree.
package fsys

import (
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrLocked is returned by Lock when another holder owns the lock.
var ErrLocked = errors.New("lock already held")

// FS abstracts filesystem operations.
type FS interface {
	Open(name string) (io.ReadCloser, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	MkdirAll(name string, perm os.FileMode) error
	Rename(oldName, newName string) error
	Remove(name string) error
	RemoveAll(name string) error
	Stat(name string) (os.FileInfo, error)
	ReadDir(name string) ([]os.DirEntry, error)

	// Lock takes an exclusive advisory lock on name without blocking.
	Lock(name string) (Unlocker, error)
}

// Unlocker releases a lock obtained from FS.Lock.
type Unlocker interface {
	Unlock() error
}

func IsNotExist(err error) bool {
	return errors.Is(err, iofs.ErrNotExist)
}

func Exists(fsys FS, name string) bool {
	_, err := fsys.Stat(name)
	return err == nil
}

// WriteFileAtomic writes data to a temporary file next to name and renames it into
// place, so name is either absent, its previous content, or fully written.
func WriteFileAtomic(fsys FS, name string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(name)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(name)+".tmp-"+uuid.NewString())
	if err := fsys.WriteFile(tmp, data, perm); err != nil {
		fsys.Remove(tmp)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := fsys.Rename(tmp, name); err != nil {
		fsys.Remove(tmp)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

// WalkFunc is called for every entry below the walk root. Returning iofs.SkipDir
// for a directory skips its contents.
type WalkFunc func(path string, d os.DirEntry) error

// Walk visits the tree rooted at root in lexical order.
func Walk(fsys FS, root string, fn WalkFunc) error {
	entries, err := fsys.ReadDir(root)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", root, err)
	}

	for _, d := range entries {
		p := filepath.Join(root, d.Name())
		if err := fn(p, d); err != nil {
			if errors.Is(err, iofs.SkipDir) && d.IsDir() {
				continue
			}
			return err
		}
		if d.IsDir() {
			if err := Walk(fsys, p, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
