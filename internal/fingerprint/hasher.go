package fingerprint

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"gitnot/internal/errors"
	"gitnot/internal/fsys"

	"go.uber.org/zap"
)

// Hasher computes the fingerprint index of a tree.
type Hasher struct {
	fs        fsys.FS
	algorithm string
	filter    *Filter
	workers   int
	logger    *zap.Logger
}

func NewHasher(fs fsys.FS, algorithm string, filter *Filter, workers int, logger *zap.Logger) (*Hasher, error) {
	if fs == nil {
		return nil, fmt.Errorf("filesystem cannot be nil")
	}
	if !ValidAlgorithm(algorithm) {
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
	if filter == nil {
		return nil, fmt.Errorf("filter cannot be nil")
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Hasher{
		fs:        fs,
		algorithm: algorithm,
		filter:    filter,
		workers:   workers,
		logger:    logger,
	}, nil
}

func (h *Hasher) Algorithm() string {
	return h.algorithm
}

// Scan returns the sorted relative paths of every regular file under root that
// the filter admits.
func (h *Hasher) Scan(root string) ([]string, error) {
	var paths []string
	err := fsys.Walk(h.fs, root, func(p string, d os.DirEntry) error {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("getting relative path: %w", err)
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if h.filter.SkipDir(rel) {
				return iofs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || h.filter.Excluded(rel) {
			return nil
		}

		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, errors.IO("scan tree", root, err)
	}
	return paths, nil
}

// Hash fingerprints every tracked file under root. It returns only after all
// workers finished, and any read failure aborts the whole pass.
func (h *Hasher) Hash(ctx context.Context, root string) (Index, error) {
	start := time.Now()

	paths, err := h.Scan(root)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan string, len(paths))
	results := make(chan FileRecord, len(paths))
	errs := make(chan error, len(paths))

	workers := min(h.workers, max(len(paths), 1))

	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for rel := range jobs {
				if ctx.Err() != nil {
					continue
				}
				rec, err := h.HashFile(root, rel)
				if err != nil {
					errs <- err
					cancel()
					continue
				}
				results <- rec
			}
		}()
	}

	for _, p := range paths {
		jobs <- p
	}
	close(jobs)

	wg.Wait()
	close(results)
	close(errs)

	if err, ok := <-errs; ok {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("hashing interrupted: %w", err)
	}

	idx := make(Index, len(paths))
	for rec := range results {
		idx[rec.Path] = rec
	}

	h.logger.Debug("hashed tree",
		zap.String("root", root),
		zap.Int("files", len(idx)),
		zap.Int("workers", workers),
		zap.Duration("duration", time.Since(start)))

	return idx, nil
}

// HashFile streams one file through the digest.
func (h *Hasher) HashFile(root, rel string) (FileRecord, error) {
	abs := filepath.Join(root, filepath.FromSlash(rel))

	f, err := h.fs.Open(abs)
	if err != nil {
		return FileRecord{}, errors.IO("read file", rel, err)
	}
	defer f.Close()

	digest, err := NewHash(h.algorithm)
	if err != nil {
		return FileRecord{}, err
	}

	n, err := io.Copy(digest, f)
	if err != nil {
		return FileRecord{}, errors.IO("read file", rel, err)
	}

	return FileRecord{
		Path: rel,
		Hash: hex.EncodeToString(digest.Sum(nil)),
		Size: n,
	}, nil
}
