// Copyright (c) 2025, Intel Corporation.
// SPDX-License-Identifier: BSD-3-Clause

// Package fse provides Finite State Entropy encoding and decoding.
//
// FSE is a tabled-ANS entropy coder: symbol probabilities are normalized
// to a power-of-two table, and two interleaved states walk that table
// while depositing bits. It is used by package huff to compress Huffman
// weight vectors, and works standalone on arbitrary byte blocks.
package fse

import (
	"errors"
	"fmt"
	"math/bits"
)

const (
	// Table sizes are 1<<tableLog entries. 12 keeps the hot tables inside
	// L1 while staying within the interchange format's bounds.
	maxTableLog     = 12
	maxTableSize    = 1 << maxTableLog
	defaultTablelog = 11
	minTablelog     = 5
	maxSymbolValue  = 255
)

var (
	// ErrIncompressible is returned when input is judged to be too hard to compress.
	ErrIncompressible = errors.New("input is not compressible")

	// ErrUseRLE is returned from the compressor when the input is a single byte value repeated.
	ErrUseRLE = errors.New("input is single value repeated")
)

// Scratch provides temporary storage for compression and decompression.
// It is reused between blocks to avoid allocations.
type Scratch struct {
	count [maxSymbolValue + 1]uint32
	norm  [maxSymbolValue + 1]int16
	br    byteReader
	bits  bitReader
	bw    bitWriter
	ct    cTable      // compression tables
	dt    []decSymbol // decompression table

	// Out is the output buffer.
	// If the scratch is re-used before the caller is done processing the
	// output, set this field to nil. Otherwise the buffer is reused for
	// the next block and allocation is avoided.
	Out []byte

	// DecompressLimit limits the maximum decoded size acceptable.
	// If 0 a 2GB limit applies.
	DecompressLimit int

	symbolLen      uint16 // length of active part of the symbol table
	actualTableLog uint8  // selected tablelog
	zeroBits       bool   // some state transition emits 0 bits

	// MaxSymbolValue overrides the maximum symbol value of the next block.
	MaxSymbolValue uint8

	// TableLog overrides the tablelog of the next block. Must be <= 12.
	TableLog uint8
}

// prepare sets defaults and allocates the output buffer.
func (s *Scratch) prepare(in []byte) (*Scratch, error) {
	if s == nil {
		s = &Scratch{}
	}
	if s.MaxSymbolValue == 0 {
		s.MaxSymbolValue = maxSymbolValue
	}
	if s.TableLog == 0 {
		s.TableLog = defaultTablelog
	}
	if s.TableLog > maxTableLog {
		return nil, fmt.Errorf("tableLog (%d) > maxTableLog (%d)", s.TableLog, maxTableLog)
	}
	if cap(s.Out) == 0 {
		s.Out = make([]byte, 0, len(in))
	}
	s.br.init(in)
	if s.DecompressLimit == 0 {
		// max size 2GB
		s.DecompressLimit = (2 << 30) - 1
	}
	return s, nil
}

// tableStep returns the interleaving stride used to spread symbols over the table.
func tableStep(tableSize uint32) uint32 {
	return (tableSize >> 1) + (tableSize >> 3) + 3
}

func highBits(val uint32) (n uint32) {
	return uint32(bits.Len32(val) - 1)
}
