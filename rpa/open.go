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
	"strings"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/madeddy/RpaKit/rpa/rpadata"
)

// headerWindow is the fixed number of leading bytes read to identify an
// archive. Generously larger than the longest known signature line.
const headerWindow = 64

// Archive is one opened archive: the resolved format plus the header fields
// needed to find and unscramble the index. The index itself is decoded
// lazily by LoadIndex, which keeps the test task from paying for it twice
// and keeps Open cheap.
//
// Archives are immutable after Open and safe to pass between stages; no two
// of them share state.
type Archive struct {
	// Path is the file the header and index were read from. DataPath is
	// where entry bodies live; identical except for RPA-1.0 pairs, where
	// the `.rpi` index points into its `.rpa` twin.
	Path     string
	DataPath string

	Format      *rpadata.Format
	IndexOffset uint64

	// Key is the effective obfuscation key, valid iff Format.HasKey.
	Key uint64
}

// Open reads and validates the signature and header of the file at path.
//
// Files without any recognizable signature return an error tagged
// NotArchive, which callers treat as "skip silently" rather than a failure;
// recognized-but-undecodable variations and malformed headers come back
// tagged InvalidFormat. The index is not loaded.
func Open(ctx context.Context, path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Annotate(err, "opening archive").Tag(rpadata.IOTag).Err()
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, errors.Annotate(err, "statting archive").Tag(rpadata.IOTag).Err()
	}

	window := make([]byte, headerWindow)
	n, err := io.ReadFull(f, window)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, errors.Annotate(err, "reading header").Tag(rpadata.IOTag).Err()
	}
	line := headerLine(window[:n])

	ext := strings.ToLower(filepath.Ext(path))
	format, ok := rpadata.DefaultRegistry.Resolve(line)
	if !ok {
		// RPA-1.0 has no signature at all; the `.rpi` suffix is the only
		// identification it ever gets.
		if format, ok = rpadata.DefaultRegistry.BySuffix(ext); !ok {
			return nil, errors.Reason("%q: no known archive signature", path).
				Tag(rpadata.NotArchiveTag).Err()
		}
	}
	if !format.Supported {
		return nil, errors.Reason("%q: %s is a known but unsupported variation",
			path, format.Name).Tag(rpadata.InvalidFormatTag).Err()
	}

	offset, key, err := rpadata.ParseHeader(format, line, st.Size())
	if err != nil {
		return nil, errors.Annotate(err, "%q", path).Err()
	}

	if format.Alias {
		logging.Debugf(ctx, "%s: unofficial %s variant", path, format.Name)
	} else {
		logging.Debugf(ctx, "%s: official %s archive", path, format.Name)
	}

	a := &Archive{
		Path:        path,
		DataPath:    path,
		Format:      format,
		IndexOffset: offset,
		Key:         key,
	}
	if format.ID == "rpa1" {
		a.DataPath = strings.TrimSuffix(path, filepath.Ext(path)) + ".rpa"
	}
	return a, nil
}

// headerLine clips the window to the signature line. The header is a single
// text line by construction; everything after the first newline is entry
// data or index bytes.
func headerLine(window []byte) []byte {
	if i := bytes.IndexByte(window, '\n'); i >= 0 {
		return window[:i]
	}
	return window
}
