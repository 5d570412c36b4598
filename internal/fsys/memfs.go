package fsys

import (
	"bytes"
	"io"
	iofs "io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryFS is a pure in-memory filesystem for tests. Fault, when set, is consulted
// before every operation and lets tests simulate I/O failures at a chosen point.
type MemoryFS struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string]struct{}
	locks map[string]struct{}

	Fault func(op, name string) error
}

func NewMemoryFS() *MemoryFS {
	return &MemoryFS{
		files: make(map[string][]byte),
		dirs:  map[string]struct{}{"/": {}, ".": {}},
		locks: make(map[string]struct{}),
	}
}

func clean(p string) string {
	if p == "" {
		return "."
	}
	return filepath.ToSlash(filepath.Clean(p))
}

func (m *MemoryFS) fault(op, name string) error {
	if m.Fault == nil {
		return nil
	}
	return m.Fault(op, name)
}

func (m *MemoryFS) Open(name string) (io.ReadCloser, error) {
	data, err := m.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryFS) ReadFile(name string) ([]byte, error) {
	if err := m.fault("read", name); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.files[clean(name)]
	if !ok {
		return nil, &iofs.PathError{Op: "read", Path: name, Err: iofs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	if err := m.fault("write", name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p := clean(name)
	if _, ok := m.dirs[path.Dir(p)]; !ok {
		return &iofs.PathError{Op: "write", Path: name, Err: iofs.ErrNotExist}
	}
	if _, ok := m.dirs[p]; ok {
		return &iofs.PathError{Op: "write", Path: name, Err: iofs.ErrInvalid}
	}
	m.files[p] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryFS) MkdirAll(name string, perm os.FileMode) error {
	if err := m.fault("mkdir", name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for p := clean(name); p != "/" && p != "."; p = path.Dir(p) {
		if _, ok := m.files[p]; ok {
			return &iofs.PathError{Op: "mkdir", Path: p, Err: iofs.ErrExist}
		}
		m.dirs[p] = struct{}{}
	}
	return nil
}

func (m *MemoryFS) Rename(oldName, newName string) error {
	if err := m.fault("rename", newName); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	oldp, newp := clean(oldName), clean(newName)
	if _, ok := m.dirs[path.Dir(newp)]; !ok {
		return &iofs.PathError{Op: "rename", Path: newName, Err: iofs.ErrNotExist}
	}

	if data, ok := m.files[oldp]; ok {
		delete(m.files, oldp)
		m.files[newp] = data
		return nil
	}

	if _, ok := m.dirs[oldp]; ok {
		prefix := oldp + "/"
		for p, data := range m.files {
			if strings.HasPrefix(p, prefix) {
				delete(m.files, p)
				m.files[newp+"/"+strings.TrimPrefix(p, prefix)] = data
			}
		}
		for p := range m.dirs {
			if p == oldp || strings.HasPrefix(p, prefix) {
				delete(m.dirs, p)
				m.dirs[newp+strings.TrimPrefix(p, oldp)] = struct{}{}
			}
		}
		return nil
	}

	return &iofs.PathError{Op: "rename", Path: oldName, Err: iofs.ErrNotExist}
}

func (m *MemoryFS) Remove(name string) error {
	if err := m.fault("remove", name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p := clean(name)
	if _, ok := m.files[p]; ok {
		delete(m.files, p)
		return nil
	}
	if _, ok := m.dirs[p]; ok {
		prefix := p + "/"
		for f := range m.files {
			if strings.HasPrefix(f, prefix) {
				return &iofs.PathError{Op: "remove", Path: name, Err: iofs.ErrExist}
			}
		}
		delete(m.dirs, p)
		return nil
	}
	return &iofs.PathError{Op: "remove", Path: name, Err: iofs.ErrNotExist}
}

func (m *MemoryFS) RemoveAll(name string) error {
	if err := m.fault("remove", name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p := clean(name)
	prefix := p + "/"
	for f := range m.files {
		if f == p || strings.HasPrefix(f, prefix) {
			delete(m.files, f)
		}
	}
	for d := range m.dirs {
		if d == p || strings.HasPrefix(d, prefix) {
			delete(m.dirs, d)
		}
	}
	return nil
}

func (m *MemoryFS) Stat(name string) (os.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p := clean(name)
	if data, ok := m.files[p]; ok {
		return &memInfo{name: path.Base(p), size: int64(len(data))}, nil
	}
	if _, ok := m.dirs[p]; ok {
		return &memInfo{name: path.Base(p), dir: true}, nil
	}
	return nil, &iofs.PathError{Op: "stat", Path: name, Err: iofs.ErrNotExist}
}

func (m *MemoryFS) ReadDir(name string) ([]os.DirEntry, error) {
	if err := m.fault("readdir", name); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	p := clean(name)
	if _, ok := m.dirs[p]; !ok {
		return nil, &iofs.PathError{Op: "readdir", Path: name, Err: iofs.ErrNotExist}
	}

	prefix := p + "/"
	if p == "/" {
		prefix = "/"
	}

	var out []os.DirEntry
	for d := range m.dirs {
		if rest, ok := strings.CutPrefix(d, prefix); ok && rest != "" && !strings.Contains(rest, "/") {
			out = append(out, memDirEntry{info: &memInfo{name: rest, dir: true}})
		}
	}
	for f, data := range m.files {
		if rest, ok := strings.CutPrefix(f, prefix); ok && rest != "" && !strings.Contains(rest, "/") {
			out = append(out, memDirEntry{info: &memInfo{name: rest, size: int64(len(data))}})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func (m *MemoryFS) Lock(name string) (Unlocker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := clean(name)
	if _, held := m.locks[p]; held {
		return nil, ErrLocked
	}
	m.locks[p] = struct{}{}
	return &memLock{fs: m, name: p}, nil
}

type memLock struct {
	fs   *MemoryFS
	name string
}

func (l *memLock) Unlock() error {
	l.fs.mu.Lock()
	defer l.fs.mu.Unlock()
	delete(l.fs.locks, l.name)
	return nil
}

type memInfo struct {
	name string
	size int64
	dir  bool
}

func (i *memInfo) Name() string       { return i.name }
func (i *memInfo) Size() int64        { return i.size }
func (i *memInfo) ModTime() time.Time { return time.Time{} }
func (i *memInfo) IsDir() bool        { return i.dir }
func (i *memInfo) Sys() any           { return nil }

func (i *memInfo) Mode() iofs.FileMode {
	if i.dir {
		return iofs.ModeDir | 0o755
	}
	return 0o644
}

type memDirEntry struct {
	info *memInfo
}

func (d memDirEntry) Name() string               { return d.info.name }
func (d memDirEntry) IsDir() bool                { return d.info.dir }
func (d memDirEntry) Type() iofs.FileMode        { return d.info.Mode().Type() }
func (d memDirEntry) Info() (os.FileInfo, error) { return d.info, nil }
