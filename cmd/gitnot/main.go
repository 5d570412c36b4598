// cmd/gitnot/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gitnot/internal/config"
	"gitnot/internal/errors"
	"gitnot/internal/fsys"
	"gitnot/internal/logging"
	"gitnot/internal/project"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type app struct {
	dir      string
	logLevel string
	logger   *logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{logger: logging.Nop()}

	rootCmd := &cobra.Command{
		Use:   "gitnot",
		Short: "gitnot tracks changes in a directory tree",
		Long: `gitnot records a versioned snapshot of a directory tree every time it runs and
something changed: files added, modified or removed since the last run. Prior
content is archived and every version gets a changelog entry.

Running gitnot without a subcommand performs a sync.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
		RunE: a.runSync,
	}
	rootCmd.PersistentFlags().StringVarP(&a.dir, "dir", "C", ".", "root of the tracked tree")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (overrides log.level in config)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "sync",
			Short: "Record changes since the last version",
			Args:  cobra.NoArgs,
			RunE:  a.runSync,
		},
		&cobra.Command{
			Use:   "init",
			Short: "Start tracking a directory tree",
			Args:  cobra.NoArgs,
			RunE:  a.runInit,
		},
		&cobra.Command{
			Use:   "show-version",
			Short: "Print the current version",
			Long: `Print the current version.

The version marker lives in the project database, which only one process may
hold open. show-version therefore takes the project lock like every other
command and fails with exit code 3 while a sync or watch is running.`,
			Args: cobra.NoArgs,
			RunE: a.runShowVersion,
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show changes that the next sync would record",
			Args:  cobra.NoArgs,
			RunE:  a.runStatus,
		},
		&cobra.Command{
			Use:   "log",
			Short: "List changelog entries",
			Args:  cobra.NoArgs,
			RunE:  a.runLog,
		},
		newArchiveCmd(a),
		&cobra.Command{
			Use:   "watch",
			Short: "Sync automatically whenever the tree changes",
			Args:  cobra.NoArgs,
			RunE:  a.runWatch,
		},
	)

	return rootCmd
}

// setup builds the logger from the project config when one exists.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	abs, err := filepath.Abs(a.dir)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", a.dir, err)
	}
	a.dir = abs

	cfg, err := a.config()
	if err != nil {
		return err
	}

	level := cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}

	var file logging.FileOptions
	storage := project.StorageDir(a.dir)
	if cfg.Log.File != "" && fsys.Exists(fsys.NewOSFS(), storage) {
		file = logging.FileOptions{
			Path:       filepath.Join(storage, cfg.Log.File),
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		}
	}

	logger, err := logging.NewLogger(level, file)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	a.logger = logger
	return nil
}

func (a *app) config() (*config.Config, error) {
	return config.Load(fsys.NewOSFS(), filepath.Join(project.StorageDir(a.dir), config.FileName))
}

func (a *app) open() (*project.Project, error) {
	return project.Open(a.dir, project.Options{Logger: a.logger.Logger})
}

func (a *app) runInit(cmd *cobra.Command, args []string) error {
	if err := project.Initialize(a.dir, project.Options{Logger: a.logger.Logger}); err != nil {
		return fmt.Errorf("initializing: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized gitnot in %s at %s\n",
		project.StorageDir(a.dir), color.New(color.FgGreen).Sprint("v0.0"))
	return nil
}

func (a *app) runShowVersion(cmd *cobra.Command, args []string) error {
	p, err := a.open()
	if err != nil {
		return err
	}
	defer p.Close()

	v, err := p.Versions.Current()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "error:", err)
		os.Exit(errors.ExitCode(err))
	}
}
