// Copyright (c) 2025, Intel Corporation.
// SPDX-License-Identifier: BSD-3-Clause

package huff

import (
	"bytes"
	"fmt"
	"os"
	"testing"
	"text/tabwriter"

	"github.com/klauspost/compress/huff0"
	"github.com/stretchr/testify/require"
)

func TestTableRoundtrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		src  []byte
	}{
		{"zipf-small", zipfBytes(21, 4<<10, 20)},
		{"zipf-wide", zipfBytes(22, 32<<10, 250)},
		{"skewed", append(bytes.Repeat([]byte("a"), 4000), zipfBytes(23, 500, 60)...)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var s Scratch
			_, err := Compress1X(tc.src, &s)
			require.NoError(t, err)

			var d Scratch
			dd, remain, err := ReadTable(s.OutTable, &d)
			require.NoError(t, err)
			require.Len(t, remain, 0)

			require.Equal(t, s.actualTableLog, dd.prevTableLog)
			// the reconstructed table must match, up to zero-count padding
			require.GreaterOrEqual(t, len(dd.prevTable), len(s.cTable))
			for i, want := range s.cTable {
				require.Equal(t, want.nBits, dd.prevTable[i].nBits, "symbol %d nBits", i)
				if want.nBits > 0 {
					require.Equal(t, want.val, dd.prevTable[i].val, "symbol %d val", i)
				}
			}
			for _, extra := range dd.prevTable[len(s.cTable):] {
				require.Zero(t, extra.nBits)
			}
		})
	}
}

func TestReadTableCorrupt(t *testing.T) {
	var s Scratch
	src := zipfBytes(24, 8<<10, 40)
	comp, err := Compress1X(src, &s)
	require.NoError(t, err)

	var d Scratch
	// empty and undersized inputs
	_, _, err = ReadTable(nil, &d)
	require.Error(t, err)
	_, _, err = ReadTable(comp[:1], &d)
	require.Error(t, err)

	// truncated payload
	if len(s.OutTable) > 2 {
		_, _, err = ReadTable(s.OutTable[:len(s.OutTable)-1], &d)
		require.Error(t, err)
	}

	// raw header promising more weights than present
	_, _, err = ReadTable([]byte{255, 0x11}, &d)
	require.Error(t, err)

	// raw weights that do not complete to a power of two
	_, _, err = ReadTable([]byte{128 | 1, 0x31}, &d)
	require.Error(t, err)

	// oversized weight value
	_, _, err = ReadTable([]byte{128 | 1, 0xFF, 0x00}, &d)
	require.Error(t, err)
}

// Our streams follow the zstd block format, so an independent huff0
// implementation must be able to decode them, and we must decode its.
func TestCrossDecode1X(t *testing.T) {
	src := zipfBytes(25, 32<<10, 100)

	var s Scratch
	comp, err := Compress1X(src, &s)
	require.NoError(t, err)

	ks := &huff0.Scratch{}
	ks, remain, err := huff0.ReadTable(comp, ks)
	require.NoError(t, err)
	ks.MaxDecodedSize = len(src)
	got, err := ks.Decompress1X(remain)
	require.NoError(t, err)
	require.True(t, bytes.Equal(got, src), "huff0 could not reproduce source, diff at %d", diff(got, src))
}

func TestCrossDecode4X(t *testing.T) {
	src := zipfBytes(26, 64<<10, 140)

	var s Scratch
	comp, err := Compress4X(src, &s)
	require.NoError(t, err)

	ks := &huff0.Scratch{}
	ks, remain, err := huff0.ReadTable(comp, ks)
	require.NoError(t, err)
	ks.MaxDecodedSize = len(src)
	got, err := ks.Decompress4X(remain, len(src))
	require.NoError(t, err)
	require.True(t, bytes.Equal(got, src), "huff0 could not reproduce source, diff at %d", diff(got, src))
}

func TestCompressionRatio(t *testing.T) {
	data := opticks(t)
	cw := tabwriter.NewWriter(os.Stderr, 0, 15, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintln(cw, "block\tentgo\thuff0\t")
	for _, size := range []int{16 << 10, 64 << 10, BlockSizeMax} {
		if size > len(data) {
			break
		}
		block := data[:size]

		s := Scratch{Reuse: ReusePolicyNone}
		comp, err := Compress1X(block, &s)
		require.NoError(t, err)

		ks := &huff0.Scratch{Reuse: huff0.ReusePolicyNone}
		kcomp, _, kerr := huff0.Compress1X(block, ks)
		require.NoError(t, kerr)

		fmt.Fprintf(cw, "%d\t%.3f\t%.3f\t\n", size,
			float64(len(comp))/float64(size),
			float64(len(kcomp))/float64(size))
	}
	cw.Flush()
}

func TestCrossEncode(t *testing.T) {
	src := zipfBytes(27, 32<<10, 100)

	ks := &huff0.Scratch{}
	comp, _, err := huff0.Compress1X(src, ks)
	require.NoError(t, err)

	var d Scratch
	dd, remain, err := ReadTable(comp, &d)
	require.NoError(t, err)
	dd.MaxDecodedSize = len(src)
	got, err := dd.Decompress1X(remain)
	require.NoError(t, err)
	require.True(t, bytes.Equal(got, src), "could not reproduce huff0 stream, diff at %d", diff(got, src))
}
