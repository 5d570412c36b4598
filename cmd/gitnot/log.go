package main

import (
	"fmt"
	"path/filepath"

	"gitnot/internal/version"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Format.Footer = text.FormatDefault
	return tbl
}

func (a *app) runLog(cmd *cobra.Command, args []string) error {
	p, err := a.open()
	if err != nil {
		return err
	}
	defer p.Close()

	entries, err := p.Changelog.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No versions recorded yet")
		return nil
	}

	tbl := newTable()
	tbl.AppendHeader(table.Row{"Version", "When", "Added", "Modified", "Removed"})
	// Newest first
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		tbl.AppendRow(table.Row{
			e.Version,
			humanize.Time(e.Timestamp),
			len(e.Added),
			len(e.Modified),
			len(e.Removed),
		})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("%d versions", len(entries))})

	fmt.Fprintln(cmd.OutOrStdout(), tbl.Render())
	return nil
}

func newArchiveCmd(a *app) *cobra.Command {
	archiveCmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect archived file content",
	}

	archiveCmd.AddCommand(
		&cobra.Command{
			Use:   "list [version]",
			Short: "List archived files, optionally for one version",
			Args:  cobra.MaximumNArgs(1),
			RunE:  a.runArchiveList,
		},
		&cobra.Command{
			Use:   "show <version> <path>",
			Short: "Print the content a file had at a version",
			Long: `Print the exact bytes a file had at the given version, for files that were
later modified or removed.`,
			Args: cobra.ExactArgs(2),
			RunE: a.runArchiveShow,
		},
	)
	return archiveCmd
}

func (a *app) runArchiveList(cmd *cobra.Command, args []string) error {
	p, err := a.open()
	if err != nil {
		return err
	}
	defer p.Close()

	var versions []version.Version
	if len(args) == 1 {
		v, err := version.Parse(args[0])
		if err != nil {
			return err
		}
		versions = []version.Version{v}
	} else if versions, err = p.Archive.Versions(); err != nil {
		return err
	}

	tbl := newTable()
	tbl.AppendHeader(table.Row{"Version", "Path", "Size", "Stored"})

	var count int
	var total uint64
	for _, v := range versions {
		entries, err := p.Archive.List(v)
		if err != nil {
			return err
		}
		for _, e := range entries {
			stored := "raw"
			if e.Compressed {
				stored = "zstd"
			}
			tbl.AppendRow(table.Row{e.Version, e.Path, humanize.Bytes(uint64(e.Size)), stored})
			count++
			total += uint64(e.Size)
		}
	}

	if count == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Archive is empty")
		return nil
	}
	tbl.AppendFooter(table.Row{"", fmt.Sprintf("%d files", count), humanize.Bytes(total), ""})

	fmt.Fprintln(cmd.OutOrStdout(), tbl.Render())
	return nil
}

func (a *app) runArchiveShow(cmd *cobra.Command, args []string) error {
	v, err := version.Parse(args[0])
	if err != nil {
		return err
	}

	p, err := a.open()
	if err != nil {
		return err
	}
	defer p.Close()

	data, err := p.Archive.Get(v, filepath.ToSlash(filepath.Clean(args[1])))
	if err != nil {
		return err
	}

	_, err = cmd.OutOrStdout().Write(data)
	return err
}
