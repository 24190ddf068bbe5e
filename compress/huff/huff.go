// Copyright (c) 2025, Intel Corporation.
// SPDX-License-Identifier: BSD-3-Clause

// Package huff implements the zstd-style block Huffman codec: a
// length-limited canonical prefix coder with a compact table header.
// Tables are serialized as weights, either packed 4 bits each or
// recompressed by package fse. Payloads use one bitstream (1X) or four
// independent bitstreams with a jump table (4X).
package huff

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/intel/entgo/compress/fse"
)

const (
	maxSymbolValue = 255

	// tableLogMax is the hard bound on code lengths; the weight format
	// cannot express more (weights occupy 4 bits).
	tableLogMax     = 12
	tableLogDefault = 11
	minTablelog     = 5

	// one sentinel slot, 256 leaves and up to 255 internal nodes
	huffNodesLen = 512

	// BlockSizeMax is the maximum input size for a single block.
	BlockSizeMax = 128 << 10
)

var (
	// ErrIncompressible is returned when input is judged to be too hard
	// to compress. The caller should store such blocks uncompressed.
	ErrIncompressible = errors.New("input is not compressible")

	// ErrUseRLE is returned from the compressor when the input is a single
	// byte value repeated. The caller should emit the one-byte RLE form.
	ErrUseRLE = errors.New("input is single value repeated")

	// ErrTooBig is returned if the input is too large for a single block.
	ErrTooBig = errors.New("input too big")

	// ErrMaxSymbolTooLarge is returned when the input contains symbol
	// values above the configured MaxSymbolValue.
	ErrMaxSymbolTooLarge = errors.New("maximum symbol value too large")

	// ErrTableLogTooLarge is returned when a table description exceeds
	// the supported code length bound.
	ErrTableLogTooLarge = errors.New("tableLog too large")

	// ErrMaxDecodedSizeExceeded is returned when decoded output exceeds
	// the configured limit.
	ErrMaxDecodedSizeExceeded = errors.New("maximum output size exceeded")
)

// ReusePolicy controls how a previously transmitted table may serve
// subsequent blocks.
type ReusePolicy uint8

const (
	// ReusePolicyAllow will reuse the previous table when the estimated
	// cost under it does not exceed header plus estimated cost of a
	// fresh table.
	ReusePolicyAllow ReusePolicy = iota

	// ReusePolicyPrefer will reuse aggressively whenever the previous
	// table covers the input, skipping the cost comparison.
	ReusePolicyPrefer

	// ReusePolicyNone disables table reuse.
	ReusePolicyNone
)

// repeatState tags the previously persisted table.
type repeatState uint8

const (
	repeatNone  repeatState = iota // no usable previous table
	repeatCheck                    // validate coverage before use
	repeatValid                    // caller-asserted: use without validation
)

type cTableEntry struct {
	val   uint16
	nBits uint8
}

type cTable []cTableEntry

type nodeElt struct {
	count  uint32
	parent uint16
	symbol byte
	nbBits uint8
}

// Scratch provides reusable working memory for the codec. A zero value
// is ready for use; keeping it between blocks avoids allocation.
type Scratch struct {
	count [maxSymbolValue + 1]uint32

	// Out is the output buffer.
	// If the scratch is re-used before the caller is done processing the
	// output, set this field to nil. Otherwise the buffer is reused for
	// the next block and allocation is avoided.
	Out []byte

	// OutTable will contain the table data only, if a new table has been generated.
	// Slice of the returned data.
	OutTable []byte

	// OutData will contain the compressed data.
	// Slice of the returned data.
	OutData []byte

	// MaxDecodedSize limits the decoders' output size.
	// Defaults to BlockSizeMax.
	MaxDecodedSize int

	// MaxSymbolValue overrides the maximum accepted symbol value of the
	// next block. 0 means 255.
	MaxSymbolValue uint8

	// TableLog requests a maximum code length for the next block.
	// Must be <= 12, 0 means 11. The effective value may be lower, or
	// higher when the number of used symbols needs longer codes.
	TableLog uint8

	// Reuse selects the table reuse policy.
	Reuse ReusePolicy

	symbolLen      uint16 // length of active part of the symbol table
	maxCount       int    // count of the most probable symbol
	actualTableLog uint8  // selected tablelog
	srcLen         int

	prevTable    cTable
	prevTableLog uint8
	prevState    repeatState

	cTable     cTable
	dt         dTable
	nodes      []nodeElt
	fse        *fse.Scratch
	huffWeight [maxSymbolValue + 1]byte
}

func (s *Scratch) prepare(in []byte) (*Scratch, error) {
	if len(in) > BlockSizeMax {
		return nil, ErrTooBig
	}
	if s == nil {
		s = &Scratch{}
	}
	if s.MaxSymbolValue == 0 {
		s.MaxSymbolValue = maxSymbolValue
	}
	if s.TableLog == 0 {
		s.TableLog = tableLogDefault
	}
	if s.TableLog > tableLogMax {
		return nil, ErrTableLogTooLarge
	}
	if s.TableLog < minTablelog {
		return nil, fmt.Errorf("tableLog (%d) < minTableLog (%d)", s.TableLog, minTablelog)
	}
	if s.MaxDecodedSize <= 0 || s.MaxDecodedSize > BlockSizeMax {
		s.MaxDecodedSize = BlockSizeMax
	}
	if cap(s.Out) == 0 {
		s.Out = make([]byte, 0, len(in))
	}
	s.Out = s.Out[:0]
	s.OutTable = nil
	s.OutData = nil
	if cap(s.nodes) < huffNodesLen+1 {
		s.nodes = make([]nodeElt, huffNodesLen+1)
	}
	s.nodes = s.nodes[:huffNodesLen+1]
	if s.fse == nil {
		s.fse = &fse.Scratch{}
	}
	s.srcLen = len(in)
	return s, nil
}

// TrustPrevTable marks the persisted previous table as valid for the
// next block without re-checking symbol coverage.
// Contract: the caller guarantees every symbol of the next input is
// covered by that table. A symbol past the table's last entry makes
// encoding panic with an index out of range; a symbol inside its range
// that has no code is encoded with zero bits, corrupting the stream.
func (s *Scratch) TrustPrevTable() {
	if len(s.prevTable) > 0 {
		s.prevState = repeatValid
	}
}

// TransferCTable copies the previously used compression table from src,
// so a stream of blocks can continue across Scratch instances.
func (s *Scratch) TransferCTable(src *Scratch) {
	if cap(s.prevTable) < len(src.prevTable) {
		s.prevTable = make(cTable, 0, maxSymbolValue+1)
	}
	s.prevTable = s.prevTable[:len(src.prevTable)]
	copy(s.prevTable, src.prevTable)
	s.prevTableLog = src.prevTableLog
	s.prevState = src.prevState
}

// canUseTable reports whether c covers every symbol occurring in the
// current histogram.
func (s *Scratch) canUseTable(c cTable) bool {
	if len(c) < int(s.symbolLen) {
		return false
	}
	for i, v := range s.count[:s.symbolLen] {
		if v != 0 && c[i].nBits == 0 {
			return false
		}
	}
	return true
}

// estimateSize returns the estimated size in bytes of the histogram
// encoded with this table.
func (c cTable) estimateSize(hist []uint32) int {
	nbBits := uint32(7)
	for i, v := range c[:len(hist)] {
		nbBits += uint32(v.nBits) * hist[i]
	}
	return int(nbBits >> 3)
}

func highBit32(val uint32) (n uint32) {
	return uint32(bits.Len32(val) - 1)
}
