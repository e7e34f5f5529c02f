// Copyright 2026 The RPA Kit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package rpadata

import (
	"regexp"
	"strings"

	"go.chromium.org/luci/common/errors"
)

// badChars matches characters that have no business in a stored path piece:
// control bytes, Windows-reserved punctuation, and the colon (which also
// catches drive-letter prefixes once backslashes are normalized away).
var badChars = regexp.MustCompile(`[<>:"|?*` + "\x00-\x1f" + `]`)

// NormalizeEntryPath converts a stored entry path to forward-slash form and
// verifies it cannot resolve outside the extraction root.
//
// Offending paths are rejected, not sanitized: silently rewriting an entry's
// destination would surprise the caller more than losing the entry does.
func NormalizeEntryPath(stored string) (string, error) {
	s := strings.ReplaceAll(stored, `\`, "/")
	if s == "" {
		return "", unsafePath(stored, "empty path")
	}
	if strings.HasPrefix(s, "/") {
		return "", unsafePath(stored, "absolute path")
	}

	pieces := strings.Split(s, "/")
	for _, piece := range pieces {
		switch piece {
		case "":
			return "", unsafePath(stored, "empty path component")
		case ".":
			return "", unsafePath(stored, "'.' path component")
		case "..":
			return "", unsafePath(stored, "relative path segment")
		}
		if loc := badChars.FindStringIndex(piece); loc != nil {
			return "", errors.Reason("entry path %q rejected: bad char %q", stored,
				piece[loc[0]:loc[1]]).Tag(UnsafeEntryPathTag).Err()
		}
	}
	return strings.Join(pieces, "/"), nil
}

func unsafePath(stored, why string) error {
	return errors.Reason("entry path %q rejected: %s", stored, why).
		Tag(UnsafeEntryPathTag).Err()
}
