// Copyright 2026 The RPA Kit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package rpa

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zlib"
)

// The fixtures below fabricate real archive files, byte for byte: header
// line, entry bodies, then the zlib-deflated pickled index. Nothing here
// goes through the production encoder (there is none; writing archives is
// out of scope), so the tests exercise the decoder against independently
// constructed input.

// pickler emits the protocol-2 opcodes Python uses for an index dict.
type pickler struct {
	bytes.Buffer
}

func (p *pickler) proto()     { p.Write([]byte{0x80, 2}) }
func (p *pickler) stop()      { p.WriteByte('.') }
func (p *pickler) mark()      { p.WriteByte('(') }
func (p *pickler) emptyDict() { p.WriteByte('}') }
func (p *pickler) setItems()  { p.WriteByte('u') }
func (p *pickler) emptyList() { p.WriteByte(']') }
func (p *pickler) appends()   { p.WriteByte('e') }
func (p *pickler) tuple()     { p.WriteByte('t') }

func (p *pickler) unicode(s string) {
	p.WriteByte('X')
	binary.Write(p, binary.LittleEndian, uint32(len(s)))
	p.WriteString(s)
}

func (p *pickler) binstring(b []byte) {
	p.WriteByte('U')
	p.WriteByte(byte(len(b)))
	p.Write(b)
}

func (p *pickler) integer(v uint64) {
	if v <= 0x7fffffff {
		p.WriteByte('J')
		binary.Write(p, binary.LittleEndian, uint32(v))
		return
	}
	var raw [9]byte
	n := 0
	for x := v; x > 0; x >>= 8 {
		raw[n] = byte(x)
		n++
	}
	if raw[n-1]&0x80 != 0 {
		raw[n] = 0
		n++
	}
	p.WriteByte(0x8a)
	p.WriteByte(byte(n))
	p.Write(raw[:n])
}

func deflate(raw []byte) []byte {
	buf := &bytes.Buffer{}
	zw := zlib.NewWriter(buf)
	if _, err := zw.Write(raw); err != nil {
		panic(err)
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// fixChunk is one chunk of a fixture entry: the bytes it reassembles to,
// and how many of its leading bytes the index carries as the prefix
// instead of the archive body.
type fixChunk struct {
	data      string
	prefixLen int
}

// fixEntry is one fixture entry. Multi-chunk entries concatenate their
// chunks' data in listed order.
type fixEntry struct {
	path   string
	chunks []fixChunk
}

// file is the common single-chunk, no-prefix case.
func file(path, body string) fixEntry {
	return fixEntry{path: path, chunks: []fixChunk{{data: body}}}
}

func (e fixEntry) wholeBody() []byte {
	var b bytes.Buffer
	for _, c := range e.chunks {
		b.WriteString(c.data)
	}
	return b.Bytes()
}

// headerFor renders the signature line of a published version, with the
// key component spelled the way that version's header lays it out.
func headerFor(version string, offset, key uint64) string {
	if key > 0xffffffff {
		panic("header key fields are 8 hex digits; fixture keys must fit 32 bits")
	}
	switch version {
	case "RPA-2.0":
		return fmt.Sprintf("RPA-2.0 %016x\n", offset)
	case "RPA-3.0", "RPA-3.1", "RPA-4.0":
		return fmt.Sprintf("%s %016x %08x\n", version, offset, uint32(key))
	case "RPA-3.2", "RPI-3.0":
		return fmt.Sprintf("%s %016x 00%08x\n", version, offset, uint32(key))
	case "ALT-1.0":
		return fmt.Sprintf("ALT-1.0 %08x %016x\n", uint32(key^0xDABE8DF0), offset)
	}
	panic("no fixture header for " + version)
}

func versionHasKey(version string) bool {
	return version != "RPA-2.0"
}

// buildArchive lays out a complete single-file archive of the given
// version: header, chunk remainders, deflated pickled index. Offsets and
// lengths are obfuscated with key for keyed versions.
func buildArchive(version string, key uint64, entries []fixEntry) []byte {
	// The header is fixed-width per version, so its length is known before
	// the index offset is.
	hdrLen := len(headerFor(version, 0, key))
	mask := uint64(0)
	if versionHasKey(version) {
		mask = key
	}

	bodies := &bytes.Buffer{}
	p := &pickler{}
	p.proto()
	p.emptyDict()
	p.mark()
	for _, e := range entries {
		p.unicode(e.path)
		p.emptyList()
		p.mark()
		for _, c := range e.chunks {
			prefix := []byte(c.data)[:c.prefixLen]
			rest := []byte(c.data)[c.prefixLen:]
			offset := uint64(hdrLen + bodies.Len())
			bodies.Write(rest)
			p.mark()
			p.integer(offset ^ mask)
			p.integer(uint64(len(c.data)) ^ mask)
			p.binstring(prefix)
			p.tuple()
		}
		p.appends()
	}
	p.setItems()
	p.stop()

	out := &bytes.Buffer{}
	out.WriteString(headerFor(version, uint64(hdrLen+bodies.Len()), key))
	out.Write(bodies.Bytes())
	out.Write(deflate(p.Bytes()))
	return out.Bytes()
}

// buildPair writes an RPA-1.0 pair under dir: stem.rpi holding the plain
// deflated index, stem.rpa holding nothing but entry bodies. Returns the
// index file's path.
func buildPair(dir, stem string, entries []fixEntry) string {
	bodies := &bytes.Buffer{}
	p := &pickler{}
	p.proto()
	p.emptyDict()
	p.mark()
	for _, e := range entries {
		p.unicode(e.path)
		p.emptyList()
		p.mark()
		for _, c := range e.chunks {
			prefix := []byte(c.data)[:c.prefixLen]
			offset := uint64(bodies.Len())
			bodies.Write([]byte(c.data)[c.prefixLen:])
			p.mark()
			p.integer(offset)
			p.integer(uint64(len(c.data)))
			p.binstring(prefix)
			p.tuple()
		}
		p.appends()
	}
	p.setItems()
	p.stop()

	rpi := filepath.Join(dir, stem+".rpi")
	mustWrite(rpi, deflate(p.Bytes()))
	mustWrite(filepath.Join(dir, stem+".rpa"), bodies.Bytes())
	return rpi
}

func mustWrite(path string, data []byte) {
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		panic(err)
	}
	if err := os.WriteFile(path, data, 0666); err != nil {
		panic(err)
	}
}

// recSink records every event it sees. Safe under concurrent jobs.
type recSink struct {
	mu       sync.Mutex
	opened   []string
	entries  []string
	failures []string
}

func (s *recSink) ArchiveOpened(archive, _ string, _ int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = append(s.opened, archive)
}

func (s *recSink) Entry(_, storedPath string, _ uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, storedPath)
}

func (s *recSink) Failure(archive, storedPath string, _ error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, archive+"::"+storedPath)
}
