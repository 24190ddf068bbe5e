// Copyright (c) 2025, Intel Corporation.
// SPDX-License-Identifier: BSD-3-Clause

package fse

import (
	"encoding/binary"
	"errors"
)

// bitReader reads a bitstream in reverse: the last byte is consumed
// first and its highest set bit is the end-of-stream marker left by
// bitWriter.close.
type bitReader struct {
	in       []byte
	off      uint // next byte to read is at in[off-1]
	value    uint64
	bitsRead uint8
}

// init initializes and overwrites the current state.
func (b *bitReader) init(in []byte) error {
	if len(in) < 1 {
		return errors.New("corrupt stream: too short")
	}
	b.in = in
	b.off = uint(len(in))
	// the marker byte must be non-zero
	v := in[len(in)-1]
	if v == 0 {
		return errors.New("corrupt stream, did not find end of stream")
	}
	b.bitsRead = 64
	b.value = 0
	if len(in) >= 8 {
		b.fillFastStart()
	} else {
		b.fill()
		b.fill()
	}
	b.bitsRead += 8 - uint8(highBits(uint32(v)))
	return nil
}

// getBits returns bits and advances, tolerating an exhausted stream.
func (b *bitReader) getBits(n uint8) uint16 {
	if n == 0 || b.bitsRead >= 64 {
		return 0
	}
	return b.getBitsFast(n)
}

// getBitsFast requires that at least one bit is requested every call.
func (b *bitReader) getBitsFast(n uint8) uint16 {
	const regMask = 64 - 1
	v := uint16((b.value << (b.bitsRead & regMask)) >> ((regMask + 1 - n) & regMask))
	b.bitsRead += n
	return v
}

// fillFast refills when at least 32 bits were read; input must have 4 bytes left.
func (b *bitReader) fillFast() {
	if b.bitsRead < 32 {
		return
	}
	// 2 bounds checks.
	v := b.in[b.off-4 : b.off]
	v = v[:4]
	low := (uint32(v[0])) | (uint32(v[1]) << 8) | (uint32(v[2]) << 16) | (uint32(v[3]) << 24)
	b.value = (b.value << 32) | uint64(low)
	b.bitsRead -= 32
	b.off -= 4
}

// fill refills, safe near the start of the stream.
func (b *bitReader) fill() {
	if b.bitsRead < 32 {
		return
	}
	if b.off > 4 {
		v := b.in[b.off-4 : b.off]
		v = v[:4]
		low := (uint32(v[0])) | (uint32(v[1]) << 8) | (uint32(v[2]) << 16) | (uint32(v[3]) << 24)
		b.value = (b.value << 32) | uint64(low)
		b.bitsRead -= 32
		b.off -= 4
		return
	}
	for b.off > 0 {
		b.value = (b.value << 8) | uint64(b.in[b.off-1])
		b.bitsRead -= 8
		b.off--
	}
}

// fillFastStart loads the trailing 8 bytes in one shot.
func (b *bitReader) fillFastStart() {
	v := b.in[len(b.in)-8:]
	v = v[:8]
	b.value = binary.LittleEndian.Uint64(v)
	b.bitsRead = 0
	b.off -= 8
}

// finished reports whether all bits have been consumed.
func (b *bitReader) finished() bool {
	return b.off == 0 && b.bitsRead >= 64
}

// close validates that the stream was not overread.
func (b *bitReader) close() error {
	if b.bitsRead > 64 {
		return errors.New("corrupt stream: read past end")
	}
	return nil
}
