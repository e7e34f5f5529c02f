// Copyright 2026 The RPA Kit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package rpa

import (
	"context"

	"go.chromium.org/luci/common/logging"
)

// Task selects what the run does with each discovered archive.
type Task int

// The supported tasks. They are mutually exclusive per run.
const (
	// TaskExtract unpacks every entry below the output directory.
	TaskExtract Task = iota

	// TaskList reports every entry's stored path and byte size without
	// reading entry bodies.
	TaskList

	// TaskTest validates header and index only; entry bodies stay untouched.
	TaskTest

	// TaskSimulate runs the full extraction, decompression included, but
	// never writes. Validates extractability without spending disk.
	TaskSimulate
)

func (t Task) String() string {
	switch t {
	case TaskExtract:
		return "extract"
	case TaskList:
		return "list"
	case TaskTest:
		return "test"
	case TaskSimulate:
		return "simulate"
	}
	return "unknown"
}

// EntryError records one failed entry of an otherwise processed archive.
type EntryError struct {
	// Path is the stored path as found in the index, unnormalized.
	Path string
	Err  error
}

// TaskResult is the outcome for a single archive. Entry failures never
// escalate to Err; Err is set only when the archive as a whole could not be
// opened or its index decoded.
type TaskResult struct {
	Archive string

	// Version is the published format name, e.g. "RPA-3.0"; VersionID the
	// decoding strategy it mapped to, e.g. "rpa3".
	Version   string
	VersionID string

	// EntryCount is the number of decodable index entries. Entries rejected
	// during index validation count under Failed instead.
	EntryCount int
	Processed  int
	Failed     int
	Errors     []EntryError

	// Written holds the output-relative paths produced by an extract task,
	// in processing order. Empty for every other task.
	Written []string

	Err error
}

// Summary aggregates a whole run. The caller decides whether partial
// success is acceptable; the run itself always completes.
type Summary struct {
	Results []*TaskResult

	// ArchivesFound counts scan candidates that resolved to a known format;
	// ArchivesDone those processed without an archive-scoped error.
	ArchivesFound int
	ArchivesDone  int
}

// EntriesProcessed totals processed entries across all archives.
func (s *Summary) EntriesProcessed() (n int) {
	for _, r := range s.Results {
		n += r.Processed
	}
	return
}

// EntriesFailed totals failed entries across all archives.
func (s *Summary) EntriesFailed() (n int) {
	for _, r := range s.Results {
		n += r.Failed
	}
	return
}

// Sink receives structured progress events. Implementations must tolerate
// concurrent calls when the run uses more than one job.
type Sink interface {
	// ArchiveOpened fires after header and index decoded successfully.
	ArchiveOpened(archive, version string, entries int)

	// Entry fires once per processed entry: extracted, simulated or listed.
	// size is the reassembled byte length.
	Entry(archive, storedPath string, size uint64)

	// Failure fires for every recorded error. storedPath is empty for
	// archive-scoped failures.
	Failure(archive, storedPath string, err error)
}

// DiscardSink drops all events.
type DiscardSink struct{}

func (DiscardSink) ArchiveOpened(string, string, int) {}
func (DiscardSink) Entry(string, string, uint64)      {}
func (DiscardSink) Failure(string, string, error)     {}

type logSink struct {
	ctx context.Context
}

// LoggingSink reports events through the context's logger: entries at debug,
// archives at info, failures at warning.
func LoggingSink(ctx context.Context) Sink { return logSink{ctx} }

func (s logSink) ArchiveOpened(archive, version string, entries int) {
	logging.Infof(s.ctx, "%s: %s archive, %d entries", archive, version, entries)
}

func (s logSink) Entry(archive, storedPath string, size uint64) {
	logging.Debugf(s.ctx, "%s: %s (%d bytes)", archive, storedPath, size)
}

func (s logSink) Failure(archive, storedPath string, err error) {
	if storedPath == "" {
		logging.Warningf(s.ctx, "%s: %s", archive, err)
		return
	}
	logging.Warningf(s.ctx, "%s: entry %q: %s", archive, storedPath, err)
}
