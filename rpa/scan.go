// Copyright 2026 The RPA Kit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package rpa drives the RPA decoding pipeline: discover candidate files,
// parse their headers, decode their indexes and run one of the extract,
// list, test or simulate tasks over the result.
package rpa

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/madeddy/RpaKit/rpa/rpadata"
)

// Scan discovers candidate archive files under root, in lexicographic path
// order.
//
// A regular-file root is trusted at face value and returned as the only
// candidate, whatever its extension; the header parser does the real
// validation. A directory root is walked recursively, keeping regular files
// with a known archive extension. Symlinked directories are not followed:
// that is a decision (cycle safety), not a limitation.
//
// RPA-1.0 ships as a `.rpi` index with a `.rpa` data twin; when both are
// found the twin is dropped so the pair is processed once, through its
// index file.
func Scan(ctx context.Context, root string) ([]string, error) {
	st, err := os.Stat(root)
	if err != nil {
		return nil, errors.Annotate(err, "scanning %q", root).Tag(rpadata.IOTag).Err()
	}
	if !st.IsDir() {
		return []string{root}, nil
	}

	var (
		mu    sync.Mutex
		found []string
	)
	conf := fastwalk.Config{Sort: fastwalk.SortLexical}
	err = fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Debugf(ctx, "scan: skipping %q: %s", path, err)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !rpadata.Extensions.Has(strings.ToLower(filepath.Ext(path))) {
			return nil
		}
		mu.Lock()
		found = append(found, path)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, errors.Annotate(err, "walking %q", root).Tag(rpadata.IOTag).Err()
	}
	// The walk is concurrent; impose the deterministic order ourselves.
	sort.Strings(found)

	return dropPairedTwins(found), nil
}

// dropPairedTwins removes every `.rpa` whose same-stem `.rpi` is also in the
// candidate list.
func dropPairedTwins(candidates []string) []string {
	all := stringset.NewFromSlice(candidates...)
	out := candidates[:0]
	for _, c := range candidates {
		if strings.ToLower(filepath.Ext(c)) == ".rpa" {
			if all.Has(strings.TrimSuffix(c, filepath.Ext(c)) + ".rpi") {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}
