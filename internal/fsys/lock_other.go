//go:build !unix

package fsys

import (
	"fmt"
	"os"
)

// Without flock the lock is an exclusively created file. A crashed run leaves it
// behind and it has to be removed by hand.
type fileLock struct {
	name string
}

func lockFile(name string) (Unlocker, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("creating lock file: %w", err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()
	return &fileLock{name: name}, nil
}

func (l *fileLock) Unlock() error {
	return os.Remove(l.name)
}
