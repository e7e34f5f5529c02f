// Copyright 2026 The RPA Kit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package rpadata implements the byte-level pieces of the RPA format: the
// version registry with its magic signatures, header field extraction, index
// decoding (zlib + pickle + key unscrambling) and stored-path validation.
//
// Nothing in here touches the filesystem; callers hand in byte slices and
// readers and get immutable format data back.
package rpadata
