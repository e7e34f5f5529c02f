// Copyright 2026 The RPA Kit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package rpa

import (
	"context"
	"os"
	"path/filepath"

	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"golang.org/x/sync/errgroup"

	"github.com/madeddy/RpaKit/rpa/rpadata"
)

// DefaultOutDirName is the subdirectory created under the input root when
// no output directory is given.
const DefaultOutDirName = "rpakit_out"

type runOptions struct {
	outDir string
	jobs   int
	sink   Sink
}

// Option configures a Run.
type Option func(*runOptions)

// WithOutDir overrides the default output directory for extract tasks.
func WithOutDir(dir string) Option {
	return func(o *runOptions) { o.outDir = dir }
}

// WithJobs sets how many archives are processed concurrently. Archives are
// independent units; entries within one archive stay sequential. Values
// below 2 keep the run fully sequential.
func WithJobs(n int) Option {
	return func(o *runOptions) { o.jobs = n }
}

// WithSink routes progress events somewhere other than the context logger.
func WithSink(s Sink) Option {
	return func(o *runOptions) { o.sink = s }
}

// Run scans input (a file or directory), processes every discovered archive
// with the given task and returns the aggregated summary.
//
// The run always completes: archive-scoped failures become failed results,
// never an early return. The error return covers only the scan itself.
// Cancelling ctx stops the run cooperatively between archives; the archive
// in flight is finished first.
func Run(ctx context.Context, input string, task Task, options ...Option) (*Summary, error) {
	opts := runOptions{jobs: 1, sink: LoggingSink(ctx)}
	for _, o := range options {
		o(&opts)
	}

	st, err := os.Stat(input)
	if err != nil {
		return nil, errors.Annotate(err, "checking input %q", input).Tag(rpadata.IOTag).Err()
	}
	root := input
	if !st.IsDir() {
		root = filepath.Dir(input)
		logging.Debugf(ctx, "input is a file, processing %s", input)
	} else {
		logging.Debugf(ctx, "input is a directory, searching %s and below", input)
	}
	if opts.outDir == "" {
		opts.outDir = filepath.Join(root, DefaultOutDirName)
	}

	candidates, err := Scan(ctx, input)
	if err != nil {
		return nil, err
	}
	logging.Infof(ctx, "%d candidate file(s) under %s", len(candidates), root)

	// One result slot per candidate keeps aggregation race-free and the
	// summary order deterministic regardless of job count.
	results := make([]*TaskResult, len(candidates))
	process := func(i int) {
		path := candidates[i]
		a, err := Open(ctx, path)
		switch {
		case err == nil:
			results[i] = a.RunTask(ctx, task, opts.outDir, opts.sink)
		case rpadata.IsNotArchive(err):
			// Not ours. The scanner casts a wide net by extension; files
			// that turn out not to be archives are skipped without fuss.
			logging.Debugf(ctx, "skipping %s: no archive signature", path)
		default:
			opts.sink.Failure(path, "", err)
			results[i] = &TaskResult{Archive: path, Err: err}
		}
	}

	if opts.jobs > 1 {
		g := &errgroup.Group{}
		g.SetLimit(opts.jobs)
		for i := range candidates {
			if ctx.Err() != nil {
				break
			}
			i := i
			g.Go(func() error {
				process(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range candidates {
			if ctx.Err() != nil {
				logging.Warningf(ctx, "run aborted, %d candidate(s) left", len(candidates)-i)
				break
			}
			process(i)
		}
	}

	summary := &Summary{}
	written := stringset.New(0)
	for _, r := range results {
		if r == nil {
			continue
		}
		summary.Results = append(summary.Results, r)
		summary.ArchivesFound++
		if r.Err == nil {
			summary.ArchivesDone++
		}
		// Distinct archives can legitimately store the same path; the last
		// writer wins on disk, but never silently.
		for _, w := range r.Written {
			if !written.Add(w) {
				logging.Warningf(ctx, "%s: output path %q already written by an earlier archive, overwritten", r.Archive, w)
			}
		}
	}
	logging.Infof(ctx, "%s done: %d/%d archive(s), %d entries processed, %d failed",
		task, summary.ArchivesDone, summary.ArchivesFound,
		summary.EntriesProcessed(), summary.EntriesFailed())
	return summary, nil
}
