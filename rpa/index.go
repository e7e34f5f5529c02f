// Copyright 2026 The RPA Kit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package rpa

import (
	"context"
	"io"
	"os"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/madeddy/RpaKit/rpa/rpadata"
)

// Entry is one logical file of an archive. Chunks concatenate in listed
// order to reproduce the original bytes.
type Entry struct {
	// Path is archive-relative, forward-slash normalized and validated.
	Path   string
	Chunks []rpadata.Chunk
}

// Size is the total reassembled byte length of the entry.
func (e *Entry) Size() (n uint64) {
	for _, c := range e.Chunks {
		n += c.Length
	}
	return
}

// Index is the decoded, validated index of one archive. Read-only after
// LoadIndex builds it; iteration order is the index's stored order so
// listings are reproducible.
type Index struct {
	order   []string
	entries map[string]*Entry
}

// Len returns the number of entries.
func (x *Index) Len() int { return len(x.order) }

// Paths returns the stored paths in index order. Callers must not mutate
// the returned slice.
func (x *Index) Paths() []string { return x.order }

// Get returns the entry for a normalized path, or nil.
func (x *Index) Get(path string) *Entry { return x.entries[path] }

// LoadIndex seeks to the archive's index, decompresses and decodes it, and
// validates every stored path.
//
// Entries with unsafe paths are excluded and reported in the returned
// EntryError slice; one poisoned entry never blocks the rest of the
// archive. Only an undecodable index fails the whole call.
func (a *Archive) LoadIndex(ctx context.Context) (*Index, []EntryError, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, nil, errors.Annotate(err, "opening index").Tag(rpadata.IOTag).Err()
	}
	defer f.Close()

	if _, err := f.Seek(int64(a.IndexOffset), io.SeekStart); err != nil {
		return nil, nil, errors.Annotate(err, "seeking to index").Tag(rpadata.IOTag).Err()
	}
	raw, err := rpadata.DecodeIndex(f, a.Format, a.Key)
	if err != nil {
		return nil, nil, err
	}

	st, err := os.Stat(a.DataPath)
	if err != nil {
		return nil, nil, errors.Annotate(err, "statting archive data").Tag(rpadata.IOTag).Err()
	}
	dataSize := uint64(st.Size())

	x := &Index{entries: make(map[string]*Entry, len(raw))}
	var rejected []EntryError
	for _, r := range raw {
		path, err := rpadata.NormalizeEntryPath(r.Path)
		if err == nil && x.entries[path] != nil {
			err = errors.Reason("entry path %q duplicates %q after normalization",
				r.Path, path).Tag(rpadata.UnsafeEntryPathTag).Err()
		}
		if err == nil {
			err = checkChunks(r.Chunks, dataSize)
		}
		if err != nil {
			logging.Warningf(ctx, "%s: %s", a.Path, err)
			rejected = append(rejected, EntryError{Path: r.Path, Err: err})
			continue
		}
		x.order = append(x.order, path)
		x.entries[path] = &Entry{Path: path, Chunks: r.Chunks}
	}
	return x, rejected, nil
}

// checkChunks verifies every chunk's file range lies inside the data file.
// A wrong or hostile key leaves unscrambled offsets and lengths as
// arbitrary 64-bit values; nothing downstream may size a read or an
// allocation from an unchecked one.
func checkChunks(chunks []rpadata.Chunk, dataSize uint64) error {
	for i, c := range chunks {
		// Length >= len(Prefix) is guaranteed by the index decoder.
		read := c.Length - uint64(len(c.Prefix))
		if c.Offset > dataSize || read > dataSize-c.Offset {
			return errors.Reason("chunk %d range 0x%x+%d beyond data end (%d bytes)",
				i, c.Offset, c.Length, dataSize).Tag(rpadata.CorruptIndexTag).Err()
		}
	}
	return nil
}
