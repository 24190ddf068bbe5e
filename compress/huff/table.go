// Copyright (c) 2025, Intel Corporation.
// SPDX-License-Identifier: BSD-3-Clause

package huff

import (
	"errors"
	"fmt"

	"github.com/intel/entgo/compress/fse"
)

// maxFSETableLog bounds the FSE coder used for weight vectors; the
// alphabet is tiny (weights 0..12) so a small table is enough.
const maxFSETableLog = 6

// write serializes the table as a weight vector and appends it to s.Out.
// Weights are tried through the FSE coder first; the compressed form is
// kept only when 1 < size < symbols/2, which also keeps the first byte
// below 128 so it cannot collide with the raw-packed discriminator.
// The last symbol's weight is implied by Kraft completion and not stored.
func (c cTable) write(s *Scratch) error {
	var (
		// precomputed conversion table
		bitsToWeight [tableLogMax + 1]byte
		huffLog      = s.actualTableLog
		// last weight is not saved.
		maxSymbolValue = uint8(s.symbolLen - 1)
		huffWeight     = s.huffWeight[:256]
	)

	// convert to weight
	bitsToWeight[0] = 0
	for n := uint8(1); n < huffLog+1; n++ {
		bitsToWeight[n] = huffLog + 1 - n
	}
	for n := uint8(0); n < maxSymbolValue; n++ {
		huffWeight[n] = bitsToWeight[c[n].nBits]
	}

	// attempt weights compression by FSE
	if maxSymbolValue >= 2 {
		s.fse.TableLog = maxFSETableLog
		b, err := fse.Compress(huffWeight[:maxSymbolValue], s.fse)
		if err == nil && len(b) > 1 && len(b) < int(maxSymbolValue/2) {
			s.Out = append(s.Out, uint8(len(b)))
			s.Out = append(s.Out, b...)
			return nil
		}
		// not compressible (rle or too flat): fall through to raw
	}

	// write raw values as 4-bits (max : 15)
	if maxSymbolValue > (256 - 128) {
		// should not happen: likely means source cannot be compressed
		return ErrIncompressible
	}
	op := s.Out
	// special case, pack weights 4 bits/weight.
	op = append(op, 128|(maxSymbolValue-1))
	// make the final combination deterministic
	huffWeight[maxSymbolValue] = 0
	for n := uint16(0); n < uint16(maxSymbolValue); n += 2 {
		op = append(op, (huffWeight[n]<<4)|huffWeight[n+1])
	}
	s.Out = op
	return nil
}

// ReadTable reads a table header from the input.
// The size of the input may be larger than the table definition; any
// content remaining after it is returned.
// The returned Scratch can be used for decoding, and for encoding with
// the reconstructed table (it becomes the previous table).
func ReadTable(in []byte, s *Scratch) (s2 *Scratch, remain []byte, err error) {
	s, err = s.prepare(nil)
	if err != nil {
		return s, nil, err
	}
	if len(in) <= 1 {
		return s, nil, errors.New("input too small for table")
	}
	iSize := in[0]
	in = in[1:]
	if iSize >= 128 {
		// raw-packed weights, 4 bits each
		oSize := iSize - 127
		iSize = (oSize + 1) / 2
		if int(iSize) > len(in) {
			return s, nil, errors.New("input too small for table")
		}
		for n := uint8(0); n < oSize; n += 2 {
			v := in[n/2]
			s.huffWeight[n] = v >> 4
			s.huffWeight[n+1] = v & 15
		}
		s.symbolLen = uint16(oSize)
		in = in[iSize:]
	} else {
		if len(in) < int(iSize) {
			return s, nil, fmt.Errorf("input too small for table, want %d bytes, have %d", iSize, len(in))
		}
		// FSE compressed weights
		s.fse.DecompressLimit = 255
		s.fse.Out = s.huffWeight[:0]
		b, err := fse.Decompress(in[:iSize], s.fse)
		s.fse.Out = nil
		if err != nil {
			return s, nil, fmt.Errorf("fse decompress returned: %w", err)
		}
		if len(b) > 255 {
			return s, nil, errors.New("corrupt input: output table too large")
		}
		s.symbolLen = uint16(len(b))
		in = in[iSize:]
	}

	// collect weight stats
	var rankStats [tableLogMax + 1]uint32
	weightTotal := uint32(0)
	for _, v := range s.huffWeight[:s.symbolLen] {
		if v > tableLogMax {
			return s, nil, errors.New("corrupt input: weight too large")
		}
		rankStats[v]++
		// (1 << (v-1)) with v==0 contributing nothing
		weightTotal += (1 << v) >> 1
	}
	if weightTotal == 0 {
		return s, nil, errors.New("corrupt input: weights zero")
	}

	// get last non-null symbol weight; implied, total must be a power of two
	{
		tableLog := highBit32(weightTotal) + 1
		if tableLog > tableLogMax {
			return s, nil, ErrTableLogTooLarge
		}
		s.actualTableLog = uint8(tableLog)
		// determine the last weight
		{
			total := uint32(1) << tableLog
			rest := total - weightTotal
			verif := uint32(1) << highBit32(rest)
			lastWeight := highBit32(rest) + 1
			if verif != rest {
				// last value must be a clean power of 2
				return s, nil, errors.New("corrupt input: last value not power of two")
			}
			if lastWeight > tableLogMax {
				return s, nil, errors.New("corrupt input: last weight too large")
			}
			s.huffWeight[s.symbolLen] = uint8(lastWeight)
			s.symbolLen++
			rankStats[lastWeight]++
		}
	}

	if (rankStats[1] < 2) || (rankStats[1]&1 != 0) {
		// by construction: at least 2 elts of rank 1, and an even count
		return s, nil, errors.New("corrupt input: min elt size, even check failed")
	}

	// calculate starting value for each rank
	{
		var nextRankStart uint32
		for n := uint8(1); n < s.actualTableLog+1; n++ {
			current := nextRankStart
			nextRankStart += rankStats[n] << (n - 1)
			rankStats[n] = current
		}
	}

	// fill DTable (always full size)
	tSize := 1 << tableLogMax
	if len(s.dt.single) != tSize {
		s.dt.single = make([]dEntrySingle, tSize)
	}

	cTab := s.prevTable
	if cap(cTab) < maxSymbolValue+1 {
		cTab = make(cTable, 0, maxSymbolValue+1)
	}
	cTab = cTab[:maxSymbolValue+1]
	s.prevTable = cTab[:s.symbolLen]
	s.prevTableLog = s.actualTableLog
	s.prevState = repeatCheck

	for n, w := range s.huffWeight[:s.symbolLen] {
		if w == 0 {
			cTab[n] = cTableEntry{}
			continue
		}
		length := (uint32(1) << w) >> 1
		d := dEntrySingle{
			entry: uint16(s.actualTableLog+1-w) | (uint16(n) << 8),
		}

		rank := &rankStats[w]
		cTab[n] = cTableEntry{
			val:   uint16(*rank >> (w - 1)),
			nBits: uint8(d.entry),
		}

		single := s.dt.single[*rank : *rank+length]
		for i := range single {
			single[i] = d
		}
		*rank += length
	}

	return s, in, nil
}
