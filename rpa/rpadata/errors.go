// Copyright 2026 The RPA Kit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package rpadata

import (
	"go.chromium.org/luci/common/errors"
)

// The error kinds of the decoder, as tags so they survive annotation.
//
// NotArchive is the only non-error kind: it marks "this file is not ours,
// skip it silently", as opposed to InvalidFormat which marks a file that
// claimed to be an RPA and then broke its promise.
var (
	// NotArchiveTag marks files with no recognizable RPA signature.
	NotArchiveTag = errors.BoolTag{Key: errors.NewTagKey("file is not a renpy archive")}

	// InvalidFormatTag marks a malformed or out-of-range header, or a
	// recognized but undecodable format variation. Aborts the archive.
	InvalidFormatTag = errors.BoolTag{Key: errors.NewTagKey("invalid archive format")}

	// CorruptIndexTag marks an index that cannot be decompressed or
	// deserialized. Aborts the archive.
	CorruptIndexTag = errors.BoolTag{Key: errors.NewTagKey("corrupt archive index")}

	// UnsafeEntryPathTag marks a stored path that would escape the
	// extraction root. Rejects the entry, not the archive.
	UnsafeEntryPathTag = errors.BoolTag{Key: errors.NewTagKey("unsafe entry path")}

	// DecompressTag marks an entry body that fails to inflate. Rejects the
	// entry, not the archive.
	DecompressTag = errors.BoolTag{Key: errors.NewTagKey("entry decompression failure")}

	// IOTag marks read/write failures. Entry-scoped during extraction,
	// archive-scoped during header/index reads.
	IOTag = errors.BoolTag{Key: errors.NewTagKey("archive io failure")}
)

// IsNotArchive reports whether err signals "not an RPA, skip".
func IsNotArchive(err error) bool { return NotArchiveTag.In(err) }

// IsInvalidFormat reports whether err is a malformed/unsupported header.
func IsInvalidFormat(err error) bool { return InvalidFormatTag.In(err) }

// IsCorruptIndex reports whether err is an undecodable index.
func IsCorruptIndex(err error) bool { return CorruptIndexTag.In(err) }

// IsUnsafeEntryPath reports whether err is a rejected stored path.
func IsUnsafeEntryPath(err error) bool { return UnsafeEntryPathTag.In(err) }

// IsDecompress reports whether err is an entry decompression failure.
func IsDecompress(err error) bool { return DecompressTag.In(err) }
