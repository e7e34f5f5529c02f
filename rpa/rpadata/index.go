// Copyright 2026 The RPA Kit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package rpadata

import (
	"io"
	"math/big"

	"github.com/klauspost/compress/zlib"
	"github.com/nlpodyssey/gopickle/pickle"
	"github.com/nlpodyssey/gopickle/types"
	"go.chromium.org/luci/common/errors"
)

// Chunk is one contiguous byte range of an entry. Length counts the whole
// chunk including the prefix bytes stored verbatim in the index, so
// Length-len(Prefix) bytes remain to be read from the archive at Offset.
type Chunk struct {
	Offset uint64
	Length uint64
	Prefix []byte

	// Deflated mirrors Format.DeflatedBodies for the owning archive: the
	// bytes after the prefix are zlib data rather than plain content.
	Deflated bool
}

// RawEntry is one index record as stored, before any path validation. The
// stored path is reproduced byte-for-byte; judging its safety is the
// caller's business.
type RawEntry struct {
	Path   string
	Chunks []Chunk
}

// DecodeIndex reads the serialized index from r and decodes it into entries
// in their stored order.
//
// The index is always zlib-compressed regardless of the per-entry body
// compression, and deserializes to a pickled mapping of path -> list of
// (offset, length[, prefix]) tuples. Records missing the prefix element get
// an empty one. When the format obfuscates, every offset and length is
// XORed with key; prefixes are never masked.
func DecodeIndex(r io.Reader, f *Format, key uint64) ([]RawEntry, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, errors.Annotate(err, "decompressing index").Tag(CorruptIndexTag).Err()
	}
	defer zr.Close()

	u := pickle.NewUnpickler(zr)
	obj, err := u.Load()
	if err != nil {
		return nil, errors.Annotate(err, "deserializing index").Tag(CorruptIndexTag).Err()
	}
	dict, ok := obj.(*types.Dict)
	if !ok {
		return nil, errors.Reason("index root is %T, want a mapping", obj).
			Tag(CorruptIndexTag).Err()
	}

	entries := make([]RawEntry, 0, dict.Len())
	for _, kv := range *dict {
		path, err := indexString(kv.Key)
		if err != nil {
			return nil, errors.Annotate(err, "index key").Tag(CorruptIndexTag).Err()
		}
		chunks, err := decodeChunks(kv.Value, f, key)
		if err != nil {
			return nil, errors.Annotate(err, "entry %q", path).Tag(CorruptIndexTag).Err()
		}
		entries = append(entries, RawEntry{Path: path, Chunks: chunks})
	}
	return entries, nil
}

func decodeChunks(v interface{}, f *Format, key uint64) ([]Chunk, error) {
	lst, ok := v.(*types.List)
	if !ok {
		return nil, errors.Reason("chunk list is %T, want a list", v).Err()
	}
	chunks := make([]Chunk, 0, lst.Len())
	for i := 0; i < lst.Len(); i++ {
		tup, ok := lst.Get(i).(*types.Tuple)
		if !ok {
			return nil, errors.Reason("chunk %d is %T, want a tuple", i, lst.Get(i)).Err()
		}
		if tup.Len() != 2 && tup.Len() != 3 {
			return nil, errors.Reason("chunk %d has %d elements", i, tup.Len()).Err()
		}

		c := Chunk{Deflated: f.DeflatedBodies}
		var err error
		if c.Offset, err = indexUint(tup.Get(0)); err != nil {
			return nil, errors.Annotate(err, "chunk %d offset", i).Err()
		}
		if c.Length, err = indexUint(tup.Get(1)); err != nil {
			return nil, errors.Annotate(err, "chunk %d length", i).Err()
		}
		if tup.Len() == 3 {
			if c.Prefix, err = indexBytes(tup.Get(2)); err != nil {
				return nil, errors.Annotate(err, "chunk %d prefix", i).Err()
			}
		}

		if f.HasKey {
			c.Offset ^= key
			c.Length ^= key
		}
		if uint64(len(c.Prefix)) > c.Length {
			return nil, errors.Reason("chunk %d prefix longer than chunk (%d > %d)",
				i, len(c.Prefix), c.Length).Err()
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// indexString accepts the str/bytes spellings a pickled path shows up as,
// depending on which Python wrote the archive.
func indexString(v interface{}) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	}
	return "", errors.Reason("unexpected string type %T", v).Err()
}

func indexBytes(v interface{}) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	}
	return nil, errors.Reason("unexpected bytes type %T", v).Err()
}

// indexUint accepts the numeric spellings pickle produces: machine ints for
// small values, arbitrary-precision longs once obfuscation pushes a value
// past 2^31.
func indexUint(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case int:
		if n < 0 {
			return 0, errors.Reason("negative index value %d", n).Err()
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, errors.Reason("negative index value %d", n).Err()
		}
		return uint64(n), nil
	case uint64:
		return n, nil
	case *big.Int:
		if n.Sign() < 0 || !n.IsUint64() {
			return 0, errors.Reason("index value %s out of range", n).Err()
		}
		return n.Uint64(), nil
	}
	return 0, errors.Reason("unexpected numeric type %T", v).Err()
}
