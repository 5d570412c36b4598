package fsys

import (
	"fmt"
	"io"
	"os"
)

// OSFS is the production implementation of FS using the standard library.
type OSFS struct{}

func NewOSFS() *OSFS {
	return &OSFS{}
}

func (OSFS) Open(name string) (io.ReadCloser, error) {
	return os.Open(name)
}

func (OSFS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// WriteFile flushes data to stable storage before returning.
func (OSFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing %s: %w", name, err)
	}
	return f.Close()
}

func (OSFS) MkdirAll(name string, perm os.FileMode) error {
	return os.MkdirAll(name, perm)
}

func (OSFS) Rename(oldName, newName string) error {
	return os.Rename(oldName, newName)
}

func (OSFS) Remove(name string) error {
	return os.Remove(name)
}

func (OSFS) RemoveAll(name string) error {
	return os.RemoveAll(name)
}

func (OSFS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

func (OSFS) ReadDir(name string) ([]os.DirEntry, error) {
	return os.ReadDir(name)
}

func (OSFS) Lock(name string) (Unlocker, error) {
	return lockFile(name)
}
