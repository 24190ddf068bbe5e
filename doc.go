// Copyright (c) 2025, Intel Corporation.
// SPDX-License-Identifier: BSD-3-Clause

// Package entgo provides entropy coding primitives for Go applications.
// It implements the block entropy stage used by zstd-family compressors:
// a length-limited canonical Huffman codec (compress/huff) and a
// finite state entropy codec (compress/fse) used both standalone and as
// the secondary coder for Huffman table headers.
package entgo
