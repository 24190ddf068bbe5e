// Copyright (c) 2025, Intel Corporation.
// SPDX-License-Identifier: BSD-3-Clause

package huff

import (
	"errors"
	"fmt"
)

type dTable struct {
	single []dEntrySingle
}

// dEntrySingle packs one decode step: low byte is the bit count, high
// byte the decoded symbol.
type dEntrySingle struct {
	entry uint16
}

// Decompress1X decompresses a single-stream block.
// The length of the supplied input must match the end of the block exactly.
// Before calling this, the table must be initialized with ReadTable,
// unless the encoder re-used a table the caller transferred.
func (s *Scratch) Decompress1X(in []byte) (out []byte, err error) {
	if len(s.dt.single) == 0 {
		return nil, errors.New("no table loaded")
	}
	var br bitReader
	if err = br.init(in); err != nil {
		return nil, err
	}
	s.Out = s.Out[:0]

	const tlSize = 1 << tableLogMax
	const tlMask = tlSize - 1
	dt := s.dt.single[:tlSize]
	tl := s.actualTableLog

	// Use a temp table to avoid bound checks/append penalty.
	var tmp = s.huffWeight[:256]
	var off uint8

	for br.off >= 8 {
		br.fillFast()
		v := dt[br.peekBitsFast(tl)&tlMask]
		br.advance(uint8(v.entry))
		tmp[off+0] = uint8(v.entry >> 8)

		v = dt[br.peekBitsFast(tl)&tlMask]
		br.advance(uint8(v.entry))
		tmp[off+1] = uint8(v.entry >> 8)

		br.fillFast()
		v = dt[br.peekBitsFast(tl)&tlMask]
		br.advance(uint8(v.entry))
		tmp[off+2] = uint8(v.entry >> 8)

		v = dt[br.peekBitsFast(tl)&tlMask]
		br.advance(uint8(v.entry))
		tmp[off+3] = uint8(v.entry >> 8)

		off += 4
		if off == 0 {
			if len(s.Out)+256 > s.MaxDecodedSize {
				return nil, ErrMaxDecodedSizeExceeded
			}
			s.Out = append(s.Out, tmp...)
		}
	}

	if len(s.Out)+int(off) > s.MaxDecodedSize {
		return nil, ErrMaxDecodedSizeExceeded
	}
	s.Out = append(s.Out, tmp[:off]...)

	for !br.finished() {
		br.fill()
		if len(s.Out) >= s.MaxDecodedSize {
			return nil, ErrMaxDecodedSizeExceeded
		}
		v := dt[br.peekBitsFast(tl)&tlMask]
		br.advance(uint8(v.entry))
		s.Out = append(s.Out, uint8(v.entry>>8))
	}
	return s.Out, br.close()
}

// Decompress4X decompresses a four-stream block.
// The length of the supplied input must match the end of the block
// exactly, and the uncompressed size must be known and provided.
func (s *Scratch) Decompress4X(in []byte, dstSize int) (out []byte, err error) {
	if len(s.dt.single) == 0 {
		return nil, errors.New("no table loaded")
	}
	if len(in) < 6+(4*1) {
		return nil, errors.New("input too small")
	}
	if dstSize > s.MaxDecodedSize {
		return nil, ErrMaxDecodedSizeExceeded
	}

	// 6 byte jump table: the lengths of the first 3 streams; the last
	// is implied by the total.
	var start = 6
	var segments [4][]byte
	for i := 0; i < 3; i++ {
		length := int(in[i*2]) | (int(in[i*2+1]) << 8)
		if start+length > len(in) {
			return nil, errors.New("truncated input (wrong stream length)")
		}
		segments[i] = in[start : start+length]
		start += length
	}
	if start >= len(in) {
		return nil, errors.New("truncated input (wrong stream length)")
	}
	segments[3] = in[start:]

	dstEvery := (dstSize + 3) / 4
	if cap(s.Out) < dstSize {
		s.Out = make([]byte, 0, dstSize)
	}
	s.Out = s.Out[:dstSize]

	const tlSize = 1 << tableLogMax
	const tlMask = tlSize - 1
	dt := s.dt.single[:tlSize]
	tl := s.actualTableLog

	for i, seg := range segments {
		var br bitReader
		if err := br.init(seg); err != nil {
			return nil, err
		}
		dstOff := i * dstEvery
		end := dstOff + dstEvery
		if end > dstSize {
			end = dstSize
		}
		dst := s.Out[dstOff:end]
		n := 0

		for br.off >= 8 && n+4 <= len(dst) {
			br.fillFast()
			v := dt[br.peekBitsFast(tl)&tlMask]
			br.advance(uint8(v.entry))
			dst[n] = uint8(v.entry >> 8)

			v = dt[br.peekBitsFast(tl)&tlMask]
			br.advance(uint8(v.entry))
			dst[n+1] = uint8(v.entry >> 8)

			br.fillFast()
			v = dt[br.peekBitsFast(tl)&tlMask]
			br.advance(uint8(v.entry))
			dst[n+2] = uint8(v.entry >> 8)

			v = dt[br.peekBitsFast(tl)&tlMask]
			br.advance(uint8(v.entry))
			dst[n+3] = uint8(v.entry >> 8)
			n += 4
		}

		for !br.finished() {
			br.fill()
			if n >= len(dst) {
				return nil, errors.New("corrupt input: stream overruns segment")
			}
			v := dt[br.peekBitsFast(tl)&tlMask]
			br.advance(uint8(v.entry))
			dst[n] = uint8(v.entry >> 8)
			n++
		}
		if err := br.close(); err != nil {
			return nil, err
		}
		if n != len(dst) {
			return nil, fmt.Errorf("corrupt input: decoded %d bytes, expected %d in stream %d", n, len(dst), i)
		}
	}

	return s.Out, nil
}
