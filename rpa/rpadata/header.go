// Copyright 2026 The RPA Kit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package rpadata

import (
	"strconv"
	"strings"

	"go.chromium.org/luci/common/errors"
)

// ParseHeader extracts the index offset and obfuscation key from the
// signature line of an archive whose format has already been resolved.
//
// The fields are hex-encoded text at fixed byte positions in the line, not
// raw binary. For formats with a fixed second key component the components
// are XORed together here, so callers only ever see the effective key.
//
// A header claiming an index at or past end-of-file is malformed, not a
// crash waiting to happen in the index reader.
func ParseHeader(f *Format, line []byte, fileSize int64) (offset, key uint64, err error) {
	if f.HasOffset {
		if offset, err = hexField(line, f.Offset, "index offset"); err != nil {
			return
		}
	}
	if f.HasKey {
		if key, err = hexField(line, f.Key, "key"); err != nil {
			return
		}
		key ^= f.KeyMask
	}

	if fileSize >= 0 && offset >= uint64(fileSize) {
		err = errors.Reason("index offset 0x%x beyond file end (%d bytes)",
			offset, fileSize).Tag(InvalidFormatTag).Err()
	}
	return
}

func hexField(line []byte, fld Field, what string) (uint64, error) {
	end := fld.End
	if end < 0 {
		end = len(line)
	}
	if end > len(line) || fld.Start >= end {
		return 0, errors.Reason("header too short for %s field", what).
			Tag(InvalidFormatTag).Err()
	}
	raw := strings.TrimSpace(string(line[fld.Start:end]))
	v, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		return 0, errors.Annotate(err, "parsing %s field %q", what, raw).
			Tag(InvalidFormatTag).Err()
	}
	return v, nil
}
