// Copyright 2026 The RPA Kit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package rpakit locates, identifies and unpacks Ren'Py Archive (RPA)
// containers. An RPA bundles the files of a Ren'Py game into a single blob;
// the format is proprietary but simple:
//   * an ASCII signature line naming the format version, followed by
//     hex-encoded text fields giving the byte offset of the index and, for
//     versions that obfuscate, one or more XOR key components.
//   * raw entry bodies, anywhere between the signature and the index,
//     addressed by (possibly obfuscated) offsets recorded in the index.
//   * a zlib-compressed, pickle-serialized index mapping each stored path to
//     a list of (offset, length, prefix) chunks, running from the declared
//     offset to end-of-file.
//
// The obfuscation is a single XOR mask over the numeric offset and length
// fields of the index. It is not cryptographic and never was; it only keeps
// naive hex editors honest.
//
// Version lineage, for the curious: RPA-2.0 introduced the offset field,
// RPA-3.0 the key field. RPA-3.1, RPA-3.2, RPA-4.0, RPI-3.0 and ALT-1.0 are
// community variants that move the fields around or add a second, fixed key
// component. RPA-1.0 is a pair of files: a `.rpi` index next to a `.rpa`
// data blob. ZiX-12A/B are recognized but deliberately not decoded.
//
// The decoding pipeline lives in package rpa (scan, open, index, extract)
// with the byte-level format knowledge in rpa/rpadata. cmd/rpakit is a thin
// command line front end.
package rpakit
