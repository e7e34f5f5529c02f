// Copyright 2026 The RPA Kit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package rpadata

import (
	"bytes"
	"strings"

	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"
)

// Field addresses a hex-encoded value inside the signature line. End < 0
// means "to end of line".
type Field struct {
	Start, End int
}

// A Format describes one known RPA version: how to recognize it and where
// its header keeps the index offset and key material.
//
// Formats are immutable; the whole table is built once at init and never
// touched again.
type Format struct {
	// ID is the decoding strategy identifier. Several published versions
	// share a strategy (e.g. RPA-3.1 and RPA-4.0 both decode as "rpa3").
	ID string

	// Name is the published version string, e.g. "RPA-3.0".
	Name string

	// Magic is the ASCII signature prefix. Empty for RPA-1.0, which has no
	// signature and is recognized by its `.rpi` suffix instead.
	Magic string

	// Alias is set on community variants of an official version.
	Alias bool

	// Supported is false for versions we recognize but refuse to decode.
	Supported bool

	// Offset locates the index byte offset field. Unused when HasOffset is
	// false (RPA-1.0 keeps its index at offset zero).
	HasOffset bool
	Offset    Field

	// Key locates the obfuscation key component; KeyMask is a fixed second
	// component XORed in after parsing (zero for single-component formats).
	HasKey  bool
	Key     Field
	KeyMask uint64

	// DeflatedBodies is set when the version stores entry bodies
	// zlib-compressed after the raw prefix. No published version does; the
	// index alone is compressed. The flag exists so the chunk decoder
	// branches on the version, never on content sniffing.
	DeflatedBodies bool
}

// Extensions is the set of file suffixes the scanner considers candidates.
var Extensions = stringset.NewFromSlice(".rpa", ".rpi", ".rpc")

// Registry holds the known formats in resolution order.
type Registry struct {
	formats []*Format
	rpi     *Format
}

// NewRegistry builds a registry from the given formats, enforcing that no
// magic signature is a prefix of another (resolution must be unambiguous)
// and that at most one suffix-recognized format exists.
func NewRegistry(formats ...*Format) (*Registry, error) {
	r := &Registry{}
	seen := stringset.New(len(formats))
	for _, f := range formats {
		if f.Magic == "" {
			if r.rpi != nil {
				return nil, errors.Reason("duplicate suffix-recognized format %q", f.Name).Err()
			}
			r.rpi = f
			continue
		}
		if !seen.Add(f.Magic) {
			return nil, errors.Reason("duplicate magic %q", f.Magic).Err()
		}
		for _, g := range r.formats {
			if strings.HasPrefix(f.Magic, g.Magic) || strings.HasPrefix(g.Magic, f.Magic) {
				return nil, errors.Reason("ambiguous magics %q / %q", g.Magic, f.Magic).Err()
			}
		}
		r.formats = append(r.formats, f)
	}
	return r, nil
}

// Resolve matches the leading bytes of a candidate file against the known
// signatures. First match wins. A false return is not an error; it signals
// "not ours" to the caller.
func (r *Registry) Resolve(window []byte) (*Format, bool) {
	for _, f := range r.formats {
		if bytes.HasPrefix(window, []byte(f.Magic)) {
			return f, true
		}
	}
	return nil, false
}

// BySuffix returns the format recognized by file suffix alone, if any.
// RPA-1.0 index files carry no signature, only the `.rpi` suffix.
func (r *Registry) BySuffix(ext string) (*Format, bool) {
	if r.rpi != nil && ext == ".rpi" {
		return r.rpi, true
	}
	return nil, false
}

// altKeyMask is the fixed second key component of ALT-1.0 archives. The
// header key field is XORed with it to form the effective key.
const altKeyMask = 0xDABE8DF0

// DefaultRegistry knows every published RPA version.
var DefaultRegistry = func() *Registry {
	r, err := NewRegistry(
		&Format{ID: "rpa2", Name: "RPA-2.0", Magic: "RPA-2.0 ", Supported: true,
			HasOffset: true, Offset: Field{8, -1}},
		&Format{ID: "rpa3", Name: "RPA-3.0", Magic: "RPA-3.0 ", Supported: true,
			HasOffset: true, Offset: Field{8, 24}, HasKey: true, Key: Field{25, 33}},
		&Format{ID: "rpa3", Name: "RPA-3.1", Magic: "RPA-3.1", Alias: true, Supported: true,
			HasOffset: true, Offset: Field{8, 24}, HasKey: true, Key: Field{25, 33}},
		&Format{ID: "rpa3", Name: "RPA-4.0", Magic: "RPA-4.0", Alias: true, Supported: true,
			HasOffset: true, Offset: Field{8, 24}, HasKey: true, Key: Field{25, 33}},
		&Format{ID: "rpa32", Name: "RPA-3.2", Magic: "RPA-3.2", Supported: true,
			HasOffset: true, Offset: Field{8, 24}, HasKey: true, Key: Field{27, 35}},
		&Format{ID: "rpa32", Name: "RPI-3.0", Magic: "RPI-3.0", Alias: true, Supported: true,
			HasOffset: true, Offset: Field{8, 24}, HasKey: true, Key: Field{27, 35}},
		&Format{ID: "alt1", Name: "ALT-1.0", Magic: "ALT-1.0", Supported: true,
			HasOffset: true, Offset: Field{17, 33}, HasKey: true, Key: Field{8, 16},
			KeyMask: altKeyMask},
		&Format{ID: "zix12a", Name: "ZiX-12A", Magic: "ZiX-12A"},
		&Format{ID: "zix12b", Name: "ZiX-12B", Magic: "ZiX-12B"},
		&Format{ID: "rpa1", Name: "RPA-1.0", Supported: true},
	)
	if err != nil {
		panic(err)
	}
	return r
}()
