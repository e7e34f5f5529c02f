// Copyright 2026 The RPA Kit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package rpa

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zlib"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/iotools"
	"go.chromium.org/luci/common/logging"

	"github.com/madeddy/RpaKit/rpa/rpadata"
)

// RunTask executes one task against one archive and returns its result.
// Entry-scoped failures are recorded and processing continues with the
// sibling entries; only open/index failures mark the whole archive failed.
func (a *Archive) RunTask(ctx context.Context, task Task, outDir string, sink Sink) *TaskResult {
	res := &TaskResult{
		Archive:   a.Path,
		Version:   a.Format.Name,
		VersionID: a.Format.ID,
	}

	idx, rejected, err := a.LoadIndex(ctx)
	if err != nil {
		res.Err = err
		sink.Failure(a.Path, "", err)
		return res
	}
	for _, re := range rejected {
		res.Failed++
		res.Errors = append(res.Errors, re)
		sink.Failure(a.Path, re.Path, re.Err)
	}
	res.EntryCount = idx.Len()
	sink.ArchiveOpened(a.Path, a.Format.Name, idx.Len())

	switch task {
	case TaskTest:
		// Header and index held up; that is the whole job. Bodies stay
		// unread so testing a broken disk full of archives stays cheap.
		res.Processed = idx.Len()

	case TaskList:
		for _, path := range idx.Paths() {
			sink.Entry(a.Path, path, idx.Get(path).Size())
			res.Processed++
		}

	case TaskExtract, TaskSimulate:
		a.unpack(ctx, task, idx, outDir, sink, res)
	}
	return res
}

func (a *Archive) unpack(ctx context.Context, task Task, idx *Index, outDir string, sink Sink, res *TaskResult) {
	f, err := os.Open(a.DataPath)
	if err != nil {
		res.Err = errors.Annotate(err, "opening archive data").Tag(rpadata.IOTag).Err()
		sink.Failure(a.Path, "", res.Err)
		return
	}
	defer f.Close()

	for _, path := range idx.Paths() {
		data, err := a.entryBytes(f, idx.Get(path))
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, EntryError{Path: path, Err: err})
			sink.Failure(a.Path, path, err)
			continue
		}
		if task == TaskExtract {
			if err := writeEntry(outDir, path, data); err != nil {
				res.Failed++
				res.Errors = append(res.Errors, EntryError{Path: path, Err: err})
				sink.Failure(a.Path, path, err)
				continue
			}
			res.Written = append(res.Written, path)
		}
		sink.Entry(a.Path, path, uint64(len(data)))
		res.Processed++
	}

	logging.Infof(ctx, "%s: %s %d/%d entries", a.Path, task, res.Processed, idx.Len())
}

// entryBytes reassembles one entry: per chunk, the raw prefix from the
// index plus Length-len(Prefix) bytes read at Offset, chunks concatenated
// in listed order, inflating the read portion for formats that deflate
// bodies.
func (a *Archive) entryBytes(f *os.File, e *Entry) ([]byte, error) {
	var buf bytes.Buffer
	// Chunk ranges are bounds-checked at index load, but their sum across
	// chunks is not; pre-size only when the total is plainly sane.
	if sz := e.Size(); sz < 1<<31 {
		buf.Grow(int(sz))
	}

	for i, c := range e.Chunks {
		buf.Write(c.Prefix)
		remainder := make([]byte, c.Length-uint64(len(c.Prefix)))
		if _, err := f.Seek(int64(c.Offset), io.SeekStart); err != nil {
			return nil, errors.Annotate(err, "chunk %d seek", i).Tag(rpadata.IOTag).Err()
		}
		if _, err := io.ReadFull(f, remainder); err != nil {
			return nil, errors.Annotate(err, "chunk %d read at 0x%x", i, c.Offset).
				Tag(rpadata.IOTag).Err()
		}
		if !c.Deflated {
			buf.Write(remainder)
			continue
		}
		zr, err := zlib.NewReader(bytes.NewReader(remainder))
		if err == nil {
			_, err = buf.ReadFrom(zr)
		}
		if err == nil {
			err = zr.Close()
		}
		if err != nil {
			return nil, errors.Annotate(err, "chunk %d inflate", i).
				Tag(rpadata.DecompressTag).Err()
		}
	}
	return buf.Bytes(), nil
}

// writeEntry lands data at outDir/rel, creating intermediate directories.
//
// The write goes to a temp file first and renames into place, so a failure
// mid-write leaves no partial output and re-extraction over an existing
// tree overwrites rather than duplicates.
func writeEntry(outDir, rel string, data []byte) error {
	dest := filepath.Join(outDir, filepath.FromSlash(rel))
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0777); err != nil {
		return errors.Annotate(err, "making output dirs").Tag(rpadata.IOTag).Err()
	}

	tmp, err := os.CreateTemp(dir, ".rpakit-*")
	if err != nil {
		return errors.Annotate(err, "creating temp file").Tag(rpadata.IOTag).Err()
	}
	// CreateTemp's 0600 suits secrets; extracted assets get ordinary modes.
	werr := tmp.Chmod(0666)
	cw := iotools.CountingWriter{Writer: tmp}
	if werr == nil {
		_, werr = cw.Write(data)
	}
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil && cw.Count != int64(len(data)) {
		werr = errors.Reason("short write: %d of %d bytes", cw.Count, len(data)).Err()
	}
	if werr == nil {
		werr = os.Rename(tmp.Name(), dest)
	}
	if werr != nil {
		os.Remove(tmp.Name())
		return errors.Annotate(werr, "writing %q", rel).Tag(rpadata.IOTag).Err()
	}
	return nil
}
