// Package project wires the storage components of one tracked tree together.
// A Project is only ever handed out while its lock is held.
package project

import (
	stderrors "errors"
	"fmt"
	"path/filepath"

	"gitnot/internal/archive"
	"gitnot/internal/changelog"
	"gitnot/internal/config"
	"gitnot/internal/errors"
	"gitnot/internal/fingerprint"
	"gitnot/internal/fsys"
	"gitnot/internal/snapshot"
	"gitnot/internal/state"
	"gitnot/internal/version"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// DirName is the storage directory at the root of a tracked tree.
const DirName = ".gitnot"

const (
	dbDir        = "db"
	snapshotsDir = "snapshots"
	archiveDir   = "archive"
	changelogDir = "changelog"
	lockFile     = "lock"
)

type Options struct {
	// FS defaults to the OS filesystem.
	FS fsys.FS
	// DB, when set, is used instead of opening .gitnot/db and is not closed by
	// Close. Required with an in-memory FS.
	DB *badger.DB
	// Config overrides .gitnot/config.json.
	Config *config.Config
	Logger *zap.Logger
}

// Project is an open, locked tracked tree.
type Project struct {
	Root   string
	Dir    string
	FS     fsys.FS
	DB     *badger.DB
	Config *config.Config
	Logger *zap.Logger

	State     *state.Store
	Hasher    *fingerprint.Hasher
	Snapshots *snapshot.Manager
	Archive   *archive.Manager
	Changelog *changelog.Writer
	Versions  *version.Controller

	lock   fsys.Unlocker
	ownsDB bool
}

func (o Options) withDefaults() Options {
	if o.FS == nil {
		o.FS = fsys.NewOSFS()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// StorageDir returns the storage directory for root.
func StorageDir(root string) string {
	return filepath.Join(root, DirName)
}

// Initialize creates the storage directory, the config file, the baseline version
// with an empty index, and the empty baseline snapshot.
func Initialize(root string, opts Options) error {
	opts = opts.withDefaults()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("getting absolute path for root %s: %w", root, err)
	}
	dir := StorageDir(absRoot)

	for _, d := range []string{dir, filepath.Join(dir, snapshotsDir), filepath.Join(dir, archiveDir), filepath.Join(dir, changelogDir)} {
		if err := opts.FS.MkdirAll(d, 0o755); err != nil {
			return errors.IO("create directory", d, err)
		}
	}

	unlock, err := acquireLock(opts.FS, dir)
	if err != nil {
		return err
	}
	defer unlock.Unlock()

	cfgPath := filepath.Join(dir, config.FileName)
	cfg := opts.Config
	if cfg == nil {
		if cfg, err = config.Load(opts.FS, cfgPath); err != nil {
			return err
		}
	}
	if !fsys.Exists(opts.FS, cfgPath) {
		if err := config.Save(opts.FS, cfgPath, cfg); err != nil {
			return errors.IO("write config", cfgPath, err)
		}
	}

	db, owned, err := openDB(opts, dir)
	if err != nil {
		return err
	}
	if owned {
		defer db.Close()
	}

	store := state.NewStore(db, opts.Logger)
	ok, err := store.Initialized()
	if err != nil {
		return fmt.Errorf("checking state: %w", err)
	}
	if ok {
		return fmt.Errorf("%s is already initialized", absRoot)
	}

	// Snapshot first: a crash here leaves an uninitialized store, and init can be rerun.
	snaps := snapshot.NewManager(opts.FS, filepath.Join(dir, snapshotsDir), cfg.Hash.Algorithm, opts.Logger)
	if err := opts.FS.MkdirAll(snaps.Path(version.Baseline), 0o755); err != nil {
		return errors.IO("create baseline snapshot", snaps.Path(version.Baseline), err)
	}

	if err := store.Initialize(cfg.Hash.Algorithm); err != nil {
		return fmt.Errorf("initializing state: %w", err)
	}

	opts.Logger.Info("initialized",
		zap.String("root", absRoot),
		zap.String("algorithm", cfg.Hash.Algorithm),
		zap.Stringer("version", version.Baseline))
	return nil
}

// Open locks the tracked tree at root and opens its storage. Callers must Close
// the project to release the lock.
func Open(root string, opts Options) (*Project, error) {
	opts = opts.withDefaults()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path for root %s: %w", root, err)
	}
	dir := StorageDir(absRoot)

	if !fsys.Exists(opts.FS, dir) {
		return nil, errors.NotInitialized(absRoot)
	}

	unlock, err := acquireLock(opts.FS, dir)
	if err != nil {
		return nil, err
	}

	p := &Project{
		Root:   absRoot,
		Dir:    dir,
		FS:     opts.FS,
		Logger: opts.Logger,
		lock:   unlock,
	}

	if err := p.open(opts); err != nil {
		if cerr := p.Close(); cerr != nil {
			opts.Logger.Warn("closing after failed open", zap.Error(cerr))
		}
		return nil, err
	}
	return p, nil
}

func (p *Project) open(opts Options) error {
	var err error

	p.Config = opts.Config
	if p.Config == nil {
		if p.Config, err = config.Load(p.FS, filepath.Join(p.Dir, config.FileName)); err != nil {
			return err
		}
	}

	if p.DB, p.ownsDB, err = openDB(opts, p.Dir); err != nil {
		return err
	}

	p.State = state.NewStore(p.DB, p.Logger)
	ok, err := p.State.Initialized()
	if err != nil {
		return fmt.Errorf("checking state: %w", err)
	}
	if !ok {
		return errors.NotInitialized(p.Root)
	}

	// The algorithm recorded at init wins over the config so fingerprints stay comparable
	algorithm, err := p.State.Algorithm()
	if err != nil {
		return err
	}
	if algorithm != p.Config.Hash.Algorithm {
		p.Logger.Warn("configured hash algorithm differs from the recorded one, using recorded",
			zap.String("configured", p.Config.Hash.Algorithm),
			zap.String("recorded", algorithm))
	}

	filter := fingerprint.NewFilter(DirName, p.Config.Extensions, p.Config.IgnorePatterns)
	if p.Hasher, err = fingerprint.NewHasher(p.FS, algorithm, filter, p.Config.Workers, p.Logger); err != nil {
		return fmt.Errorf("creating hasher: %w", err)
	}

	p.Snapshots = snapshot.NewManager(p.FS, filepath.Join(p.Dir, snapshotsDir), algorithm, p.Logger)

	p.Archive, err = archive.NewManager(p.FS, p.DB, archive.Options{
		Dir:         filepath.Join(p.Dir, archiveDir),
		Compression: p.Config.Archive.Compression,
		Level:       p.Config.Archive.Level,
		CacheSize:   p.Config.Archive.CacheSize,
	}, p.Logger)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}

	p.Changelog = changelog.NewWriter(p.FS, p.DB, filepath.Join(p.Dir, changelogDir), p.Logger)
	p.Versions = version.NewController(p.State, version.MinorCarry{Threshold: p.Config.Version.MinorCarry}, p.Logger)

	return nil
}

// Close releases the database and the lock.
func (p *Project) Close() error {
	if p == nil {
		return nil
	}

	var errs []error

	if p.DB != nil && p.ownsDB {
		if err := p.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	p.DB = nil

	if p.lock != nil {
		if err := p.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("releasing lock: %w", err))
		}
		p.lock = nil
	}

	return stderrors.Join(errs...)
}

func acquireLock(fs fsys.FS, dir string) (fsys.Unlocker, error) {
	path := filepath.Join(dir, lockFile)
	unlock, err := fs.Lock(path)
	if err != nil {
		if stderrors.Is(err, fsys.ErrLocked) {
			return nil, errors.LockHeld(path, err)
		}
		return nil, errors.IO("acquire lock", path, err)
	}
	return unlock, nil
}

func openDB(opts Options, dir string) (*badger.DB, bool, error) {
	if opts.DB != nil {
		return opts.DB, false, nil
	}
	if _, ok := opts.FS.(*fsys.OSFS); !ok {
		return nil, false, fmt.Errorf("a database handle is required with a non-OS filesystem")
	}

	path := filepath.Join(dir, dbDir)
	db, err := badger.Open(dbOptions(path))
	if err != nil {
		return nil, false, errors.IO("open database", path, err)
	}
	return db, true, nil
}
