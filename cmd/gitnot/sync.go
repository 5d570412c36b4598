package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"gitnot/internal/diff"
	"gitnot/internal/fingerprint"
	"gitnot/internal/project"
	"gitnot/internal/syncer"
	"gitnot/internal/watch"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
)

func (a *app) runSync(cmd *cobra.Command, args []string) error {
	p, err := a.open()
	if err != nil {
		return err
	}
	defer p.Close()

	res, err := syncer.New(p).Sync(cmd.Context())
	if err != nil {
		return err
	}

	printResult(cmd.OutOrStdout(), res)
	return nil
}

func printResult(w io.Writer, res *syncer.Result) {
	switch res.Recovery {
	case syncer.RecoveryRolledBack:
		fmt.Fprintln(w, yellow("Rolled back an interrupted sync"))
	case syncer.RecoveryResumed:
		fmt.Fprintln(w, yellow("Completed an interrupted sync"))
	}

	if res.Status == syncer.StatusNoChanges {
		fmt.Fprintf(w, "No changes, still at %s\n", cyan(res.Version))
		return
	}

	fmt.Fprintf(w, "%s -> %s: %s\n", res.From, green(res.Version), res.Changes.Summary())
	printChanges(w, res.Changes)
}

func printChanges(w io.Writer, cs diff.ChangeSet) {
	for _, p := range cs.Added {
		fmt.Fprintf(w, "  %s %s\n", green("+"), p)
	}
	for _, p := range cs.Modified {
		fmt.Fprintf(w, "  %s %s\n", yellow("~"), p)
	}
	for _, p := range cs.Removed {
		fmt.Fprintf(w, "  %s %s\n", red("-"), p)
	}
}

func (a *app) runStatus(cmd *cobra.Command, args []string) error {
	p, err := a.open()
	if err != nil {
		return err
	}
	defer p.Close()

	report, err := syncer.New(p).Status(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "At %s\n", cyan(report.Version))
	if report.Pending != nil {
		fmt.Fprintf(out, "%s\n", yellow(fmt.Sprintf(
			"An interrupted sync (%s -> %s) will be recovered on the next run", report.Pending.From, report.Pending.To)))
	}

	if report.Changes.Empty() {
		fmt.Fprintln(out, "Nothing to record")
		return nil
	}
	fmt.Fprintf(out, "Pending: %s\n", report.Changes.Summary())
	printChanges(out, report.Changes)
	return nil
}

func (a *app) runWatch(cmd *cobra.Command, args []string) error {
	// Fail early if the tree is not initialized or is locked
	p, err := a.open()
	if err != nil {
		return err
	}
	cfg := p.Config
	if err := p.Close(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	sync := func(ctx context.Context) error {
		p, err := a.open()
		if err != nil {
			return err
		}
		defer p.Close()

		res, err := syncer.New(p).Sync(ctx)
		if err != nil {
			return err
		}
		if res.Status == syncer.StatusCommitted || res.Recovery != syncer.RecoveryNone {
			fmt.Fprintf(out, "[%s] ", time.Now().Format(time.TimeOnly))
			printResult(out, res)
		}
		return nil
	}

	filter := fingerprint.NewFilter(project.DirName, cfg.Extensions, cfg.IgnorePatterns)
	w, err := watch.New(a.dir, filter, cfg.Watch.Debounce, sync, a.logger.Logger)
	if err != nil {
		return err
	}

	a.logger.Info("watching", zap.String("root", a.dir), zap.Duration("debounce", cfg.Watch.Debounce))
	fmt.Fprintf(out, "Watching %s (Ctrl-C to stop)\n", a.dir)

	// Record anything that changed while nobody was watching
	if err := sync(cmd.Context()); err != nil {
		return err
	}
	return w.Run(cmd.Context())
}
