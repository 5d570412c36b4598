// Package syncer runs one detect-and-commit cycle over a tracked tree.
//
// A sync moves through a fixed sequence: recover any interrupted run, hash the
// tree, diff against the last index, and when something changed, journal the
// attempt, archive superseded content, write the snapshot, advance the version,
// write the changelog, and finally install the new index while clearing the
// journal. The version marker is the commit point. Anything before it is rolled
// back on the next run; anything after it is replayed.
package syncer

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gitnot/internal/changelog"
	"gitnot/internal/diff"
	"gitnot/internal/errors"
	"gitnot/internal/project"
	"gitnot/internal/state"
	"gitnot/internal/version"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Status string

const (
	StatusCommitted Status = "committed"
	StatusNoChanges Status = "no_changes"
)

// Recovery describes what the run did about an interrupted previous run.
type Recovery string

const (
	RecoveryNone       Recovery = ""
	RecoveryRolledBack Recovery = "rolled_back"
	RecoveryResumed    Recovery = "resumed"
)

type Result struct {
	Status   Status
	From     version.Version
	Version  version.Version
	Changes  diff.ChangeSet
	Recovery Recovery
	RunID    string
}

// Report is the read-only view returned by Status.
type Report struct {
	Version version.Version
	Changes diff.ChangeSet
	// Pending is set when an interrupted run will be recovered by the next sync.
	Pending *state.Pending
}

type Syncer struct {
	p   *project.Project
	now func() time.Time
}

func New(p *project.Project) *Syncer {
	return &Syncer{
		p:   p,
		now: time.Now,
	}
}

// Sync records the current state of the tree as a new version if it differs from
// the last one.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	start := s.now()
	runID := uuid.NewString()
	logger := s.p.Logger.With(zap.String("run_id", runID))

	recovery, err := s.recover(logger)
	if err != nil {
		return nil, err
	}

	from, err := s.p.Versions.Current()
	if err != nil {
		return nil, err
	}
	prev, err := s.p.State.LoadIndex()
	if err != nil {
		return nil, err
	}

	cur, err := s.p.Hasher.Hash(ctx, s.p.Root)
	if err != nil {
		return nil, err
	}

	changes := diff.Compute(prev, cur)
	result := &Result{
		Status:   StatusNoChanges,
		From:     from,
		Version:  from,
		Changes:  changes,
		Recovery: recovery,
		RunID:    runID,
	}

	if changes.Empty() {
		logger.Info("no changes", zap.Stringer("version", from), zap.Int("files", len(cur)))
		return result, nil
	}

	to, err := s.p.Versions.Next(from)
	if err != nil {
		return nil, err
	}

	pending := &state.Pending{
		RunID:     runID,
		From:      from,
		To:        to,
		Index:     cur,
		Changes:   changes,
		StartedAt: start.UTC(),
	}
	if err := s.commit(ctx, pending, logger); err != nil {
		return nil, err
	}

	result.Status = StatusCommitted
	result.Version = to

	logger.Info("sync committed",
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Int("added", len(changes.Added)),
		zap.Int("modified", len(changes.Modified)),
		zap.Int("removed", len(changes.Removed)),
		zap.Duration("duration", s.now().Sub(start)))

	return result, nil
}

// Status hashes and diffs the tree without writing anything.
func (s *Syncer) Status(ctx context.Context) (*Report, error) {
	current, err := s.p.Versions.Current()
	if err != nil {
		return nil, err
	}
	prev, err := s.p.State.LoadIndex()
	if err != nil {
		return nil, err
	}
	pending, err := s.p.State.Pending()
	if err != nil {
		return nil, err
	}

	cur, err := s.p.Hasher.Hash(ctx, s.p.Root)
	if err != nil {
		return nil, err
	}

	return &Report{
		Version: current,
		Changes: diff.Compute(prev, cur),
		Pending: pending,
	}, nil
}

func (s *Syncer) commit(ctx context.Context, p *state.Pending, logger *zap.Logger) error {
	if err := s.p.State.BeginPending(p); err != nil {
		return err
	}

	// Archive before snapshot: the superseded bytes are read from the From snapshot.
	if err := s.p.Archive.Commit(ctx, p.From, p.Changes.Superseded(), s.p.Snapshots); err != nil {
		return s.abort(p, err, logger)
	}
	if err := s.p.Snapshots.Commit(ctx, p.To, s.p.Root, p.Index); err != nil {
		return s.abort(p, err, logger)
	}
	if err := s.p.Versions.Commit(p.From, p.To); err != nil {
		return s.abort(p, err, logger)
	}

	if err := s.finish(p); err != nil {
		if rbErr := s.p.Versions.Rollback(p.To, p.From); rbErr != nil {
			// The journal stays, and the next run resumes from the advanced marker.
			logger.Error("rolling back version failed", zap.Error(rbErr))
			return err
		}
		return s.abort(p, err, logger)
	}
	return nil
}

// finish runs the steps after the version advance. Both are idempotent so a
// resumed run can replay them.
func (s *Syncer) finish(p *state.Pending) error {
	entry := changelog.NewEntry(p.To, p.RunID, p.StartedAt, p.Changes)
	if err := s.p.Changelog.Write(entry); err != nil {
		return err
	}
	return s.p.State.CommitIndex(p.Index, p.RunID)
}

// abort undoes an attempt that never advanced the version and returns cause.
func (s *Syncer) abort(p *state.Pending, cause error, logger *zap.Logger) error {
	if err := s.discard(p); err != nil {
		logger.Warn("cleanup after failed sync incomplete, next run will retry",
			zap.Stringer("version", p.To),
			zap.Error(err))
	}
	return cause
}

// discard removes everything an unadvanced attempt may have written, then clears
// its journal. The journal stays if any step fails.
func (s *Syncer) discard(p *state.Pending) error {
	var errs []error
	if err := s.p.Changelog.Discard(p.To, p.RunID); err != nil {
		errs = append(errs, err)
	}
	if err := s.p.Snapshots.Discard(p.To); err != nil {
		errs = append(errs, err)
	}
	if err := s.p.Archive.Discard(p.From); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return stderrors.Join(errs...)
	}
	return s.p.State.ClearPending(p.RunID)
}

func (s *Syncer) recover(logger *zap.Logger) (Recovery, error) {
	p, err := s.p.State.Pending()
	if err != nil {
		return RecoveryNone, err
	}
	marker, err := s.p.Versions.Current()
	if err != nil {
		return RecoveryNone, err
	}

	if p == nil {
		snaps, err := s.p.Snapshots.Versions()
		if err != nil {
			return RecoveryNone, err
		}
		if n := len(snaps); n > 0 && marker.Less(snaps[n-1]) {
			return RecoveryNone, errors.CorruptState("recover",
				fmt.Sprintf("snapshot %s is newer than the current version %s", snaps[n-1], marker))
		}
		return RecoveryNone, nil
	}

	log := logger.With(
		zap.String("interrupted_run", p.RunID),
		zap.Stringer("from", p.From),
		zap.Stringer("to", p.To))

	switch marker {
	case p.From:
		if err := s.discard(p); err != nil {
			return RecoveryNone, fmt.Errorf("rolling back interrupted sync: %w", err)
		}
		log.Warn("rolled back interrupted sync")
		return RecoveryRolledBack, nil

	case p.To:
		if !s.p.Snapshots.Exists(p.To) {
			return RecoveryNone, errors.CorruptState("recover",
				"version advanced without a snapshot").WithVersion(p.To.String())
		}
		if err := s.finish(p); err != nil {
			return RecoveryNone, fmt.Errorf("resuming interrupted sync: %w", err)
		}
		log.Warn("resumed interrupted sync")
		return RecoveryResumed, nil

	default:
		return RecoveryNone, errors.CorruptState("recover",
			fmt.Sprintf("interrupted sync %s -> %s does not match current version %s", p.From, p.To, marker))
	}
}
