// Copyright 2026 The RPA Kit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Command rpakit searches a path for Ren'Py archives and extracts, lists,
// tests or dry-runs them.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/logging/gologger"

	"github.com/madeddy/RpaKit/rpa"
)

const version = "0.1.0"

var (
	outDir  string
	verbose int
	jobs    int
)

func main() {
	root := &cobra.Command{
		Use:           "rpakit",
		Short:         "Search for and unpack Ren'Py archives",
		Long:          "rpakit searches a directory (or takes a single file) for Ren'Py\narchives and unpacks their content into a subdirectory. Listing and\ntesting without writing anything is also possible.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&outDir, "outdir", "o", "",
		fmt.Sprintf("output directory (default: %q under the input root)", rpa.DefaultOutDirName))
	root.PersistentFlags().IntVar(&verbose, "verbose", 1, "info output level, 0..2")
	root.PersistentFlags().IntVarP(&jobs, "jobs", "j", 1, "archives to process in parallel")

	root.AddCommand(
		taskCommand("extract", "Unpack all stored files", rpa.TaskExtract),
		taskCommand("list", "List all stored files without unpacking", rpa.TaskList),
		taskCommand("test", "Test whether archives are a known format", rpa.TaskTest),
		taskCommand("simulate", "Run a full extraction without writing", rpa.TaskSimulate),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rpakit:", err)
		os.Exit(1)
	}
}

func taskCommand(name, short string, task rpa.Task) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <target>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logger(cmd.Context())
			opts := []rpa.Option{rpa.WithJobs(jobs)}
			if outDir != "" {
				opts = append(opts, rpa.WithOutDir(outDir))
			}
			if task == rpa.TaskList && verbose > 0 {
				opts = append(opts, rpa.WithSink(listSink{ctx}))
			}
			summary, err := rpa.Run(ctx, args[0], task, opts...)
			if err != nil {
				return err
			}
			render(summary, task)
			return nil
		},
	}
}

func logger(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = gologger.StdConfig.Use(ctx)
	switch {
	case verbose <= 0:
		ctx = logging.SetLevel(ctx, logging.Warning)
	case verbose == 1:
		ctx = logging.SetLevel(ctx, logging.Info)
	default:
		ctx = logging.SetLevel(ctx, logging.Debug)
	}
	return ctx
}

// listSink prints list output to stdout; everything else stays on the
// logger so listings remain pipeable.
type listSink struct {
	ctx context.Context
}

func (s listSink) ArchiveOpened(archive, ver string, entries int) {
	fmt.Printf("%s (%s, %d files):\n", archive, ver, entries)
}

func (s listSink) Entry(_, storedPath string, size uint64) {
	fmt.Printf("  %s (%d bytes)\n", storedPath, size)
}

func (s listSink) Failure(archive, storedPath string, err error) {
	rpa.LoggingSink(s.ctx).Failure(archive, storedPath, err)
}

func render(s *rpa.Summary, task rpa.Task) {
	if verbose <= 0 {
		return
	}
	for _, r := range s.Results {
		switch {
		case r.Err != nil:
			fmt.Printf("%s: failed: %s\n", r.Archive, r.Err)
		case task == rpa.TaskTest:
			fmt.Printf("%s: identified as %s (variant %s), %d entries\n",
				r.Archive, r.Version, r.VersionID, r.EntryCount)
		default:
			fmt.Printf("%s: %s, %d/%d entries, %d failed\n",
				r.Archive, r.Version, r.Processed, r.EntryCount, r.Failed)
		}
	}
	switch {
	case s.ArchivesFound == 0:
		fmt.Println("No RPA files found. Was the correct path given?")
	case task == rpa.TaskExtract:
		fmt.Printf("Done. Unpacked %d archive(s), %d file(s).\n",
			s.ArchivesDone, s.EntriesProcessed())
	default:
		fmt.Printf("Completed %d archive(s).\n", s.ArchivesDone)
	}
}
