// Copyright 2026 The RPA Kit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package rpadata

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/zlib"
	. "github.com/smartystreets/goconvey/convey"
)

// pickler emits the handful of protocol-2 opcodes a Ren'Py index uses.
// Decoding is a library concern; fixtures have to write the stream
// themselves.
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

// unicode emits a BINUNICODE str, the spelling Python 3 uses for paths.
func (p *pickler) unicode(s string) {
	p.WriteByte('X')
	binary.Write(p, binary.LittleEndian, uint32(len(s)))
	p.WriteString(s)
}

// binstring emits a SHORT_BINSTRING, the spelling Python 2 archives use for
// both paths and prefixes.
func (p *pickler) binstring(b []byte) {
	p.WriteByte('U')
	p.WriteByte(byte(len(b)))
	p.Write(b)
}

// integer emits BININT when the value fits a signed 32-bit int and LONG1
// otherwise, exactly as Python's pickler picks its spelling. Obfuscated
// offsets routinely land in LONG1 territory.
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
		// keep the two's complement reading non-negative
		raw[n] = 0
		n++
	}
	p.WriteByte(0x8a)
	p.WriteByte(byte(n))
	p.Write(raw[:n])
}

// ixChunk/ixEntry describe fixture index records as stored on disk, i.e.
// already obfuscated when a key is in play.
type ixChunk struct {
	offset, length uint64
	prefix         []byte
	noPrefix       bool // emit a 2-tuple
}

type ixEntry struct {
	path   string
	py2    bool // spell the path as a py2 str
	chunks []ixChunk
}

func pickleIndex(entries []ixEntry) []byte {
	p := &pickler{}
	p.proto()
	p.emptyDict()
	p.mark()
	for _, e := range entries {
		if e.py2 {
			p.binstring([]byte(e.path))
		} else {
			p.unicode(e.path)
		}
		p.emptyList()
		p.mark()
		for _, c := range e.chunks {
			p.mark()
			p.integer(c.offset)
			p.integer(c.length)
			if !c.noPrefix {
				p.binstring(c.prefix)
			}
			p.tuple()
		}
		p.appends()
	}
	p.setItems()
	p.stop()
	return p.Bytes()
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

func TestDecodeIndex(t *testing.T) {
	t.Parallel()

	plain := &Format{ID: "rpa2", Name: "RPA-2.0", Supported: true, HasOffset: true}
	keyed := &Format{ID: "rpa3", Name: "RPA-3.0", Supported: true, HasOffset: true, HasKey: true}

	Convey("DecodeIndex", t, func() {
		Convey("decodes a plain index in stored order", func() {
			raw := deflate(pickleIndex([]ixEntry{
				{path: "z/last.txt", chunks: []ixChunk{{offset: 40, length: 7, noPrefix: true}}},
				{path: "a/first.txt", chunks: []ixChunk{{offset: 10, length: 3, prefix: []byte("he")}}},
			}))
			got, err := DecodeIndex(bytes.NewReader(raw), plain, 0)
			So(err, ShouldBeNil)
			So(len(got), ShouldEqual, 2)
			So(got[0].Path, ShouldEqual, "z/last.txt")
			So(got[1].Path, ShouldEqual, "a/first.txt")

			So(got[0].Chunks, ShouldResemble, []Chunk{{Offset: 40, Length: 7}})
			So(got[1].Chunks, ShouldResemble, []Chunk{{Offset: 10, Length: 3, Prefix: []byte("he")}})
		})

		Convey("py2 spellings decode the same", func() {
			raw := deflate(pickleIndex([]ixEntry{
				{path: "a.txt", py2: true, chunks: []ixChunk{{offset: 1, length: 2, prefix: []byte("x")}}},
			}))
			got, err := DecodeIndex(bytes.NewReader(raw), plain, 0)
			So(err, ShouldBeNil)
			So(got[0].Path, ShouldEqual, "a.txt")
			So(got[0].Chunks[0].Prefix, ShouldResemble, []byte("x"))
		})

		Convey("unscrambles offsets and lengths with the key", func() {
			const key = uint64(0xdeadbeef)
			raw := deflate(pickleIndex([]ixEntry{
				{path: "a.txt", chunks: []ixChunk{
					{offset: 100 ^ key, length: 5 ^ key, prefix: []byte("ab")},
				}},
			}))
			got, err := DecodeIndex(bytes.NewReader(raw), keyed, key)
			So(err, ShouldBeNil)
			So(got[0].Chunks[0].Offset, ShouldEqual, 100)
			So(got[0].Chunks[0].Length, ShouldEqual, 5)
			// the prefix is never masked
			So(got[0].Chunks[0].Prefix, ShouldResemble, []byte("ab"))
		})

		Convey("keyless formats read offsets at face value", func() {
			raw := deflate(pickleIndex([]ixEntry{
				{path: "a.txt", chunks: []ixChunk{{offset: 100, length: 5, noPrefix: true}}},
			}))
			got, err := DecodeIndex(bytes.NewReader(raw), plain, 0xdeadbeef)
			So(err, ShouldBeNil)
			So(got[0].Chunks[0].Offset, ShouldEqual, 100)
		})

		Convey("multiple chunks keep their listed order", func() {
			raw := deflate(pickleIndex([]ixEntry{
				{path: "big.bin", chunks: []ixChunk{
					{offset: 10, length: 4, noPrefix: true},
					{offset: 200, length: 6, prefix: []byte("zz")},
				}},
			}))
			got, err := DecodeIndex(bytes.NewReader(raw), plain, 0)
			So(err, ShouldBeNil)
			So(len(got[0].Chunks), ShouldEqual, 2)
			So(got[0].Chunks[0].Offset, ShouldEqual, 10)
			So(got[0].Chunks[1].Offset, ShouldEqual, 200)
		})

		Convey("not zlib at all is CorruptIndex", func() {
			_, err := DecodeIndex(bytes.NewReader([]byte("certainly not zlib")), plain, 0)
			So(err, ShouldNotBeNil)
			So(IsCorruptIndex(err), ShouldBeTrue)
		})

		Convey("zlib of garbage is CorruptIndex", func() {
			_, err := DecodeIndex(bytes.NewReader(deflate([]byte("not a pickle"))), plain, 0)
			So(err, ShouldNotBeNil)
			So(IsCorruptIndex(err), ShouldBeTrue)
		})

		Convey("a pickled non-mapping is CorruptIndex", func() {
			p := &pickler{}
			p.proto()
			p.emptyList()
			p.stop()
			_, err := DecodeIndex(bytes.NewReader(deflate(p.Bytes())), plain, 0)
			So(err, ShouldNotBeNil)
			So(IsCorruptIndex(err), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "want a mapping")
		})

		Convey("a prefix longer than its chunk is CorruptIndex", func() {
			raw := deflate(pickleIndex([]ixEntry{
				{path: "a.txt", chunks: []ixChunk{{offset: 1, length: 1, prefix: []byte("toolong")}}},
			}))
			_, err := DecodeIndex(bytes.NewReader(raw), plain, 0)
			So(err, ShouldNotBeNil)
			So(IsCorruptIndex(err), ShouldBeTrue)
		})

		Convey("deflated-bodies formats mark every chunk", func() {
			squash := &Format{ID: "x", Name: "X", Supported: true, DeflatedBodies: true}
			raw := deflate(pickleIndex([]ixEntry{
				{path: "a.txt", chunks: []ixChunk{{offset: 1, length: 2, noPrefix: true}}},
			}))
			got, err := DecodeIndex(bytes.NewReader(raw), squash, 0)
			So(err, ShouldBeNil)
			So(got[0].Chunks[0].Deflated, ShouldBeTrue)
		})
	})
}
