// Copyright (c) 2025, Intel Corporation.
// SPDX-License-Identifier: BSD-3-Clause

package huff

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"pgregory.net/rapid"
)

func opticks(t testing.TB) (data []byte) {
	data, _ = os.ReadFile(filepath.Join(runtime.GOROOT(), "src", "testdata", "Isaac.Newton-Opticks.txt"))
	if data == nil {
		t.Skip("skip for no test data file")
	}
	return data
}

// zipfBytes generates size bytes over nsym symbols with a zipfian
// distribution, deterministically.
func zipfBytes(seed int64, size, nsym int) []byte {
	rng := rand.New(rand.NewSource(seed))
	z := rand.NewZipf(rng, 1.2, 1, uint64(nsym-1))
	out := make([]byte, size)
	for i := range out {
		out[i] = byte(z.Uint64())
	}
	return out
}

func diff(d, s []byte) (pos int) {
	pos = -1
	for i := 0; i < len(d) && i < len(s); i++ {
		if d[i] != s[i] {
			pos = i
			break
		}
	}
	return
}

func roundtrip1X(t *testing.T, src []byte) {
	t.Helper()
	var s Scratch
	comp, err := Compress1X(src, &s)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	var d Scratch
	dd, remain, err := ReadTable(comp, &d)
	if err != nil {
		t.Fatalf("read table: %v", err)
	}
	dd.MaxDecodedSize = len(src)
	got, err := dd.Decompress1X(remain)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("roundtrip mismatch, src %d got %d, first diff at %d", len(src), len(got), diff(got, src))
	}
}

func roundtrip4X(t *testing.T, src []byte) {
	t.Helper()
	var s Scratch
	comp, err := Compress4X(src, &s)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	var d Scratch
	dd, remain, err := ReadTable(comp, &d)
	if err != nil {
		t.Fatalf("read table: %v", err)
	}
	got, err := dd.Decompress4X(remain, len(src))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("roundtrip mismatch, src %d got %d, first diff at %d", len(src), len(got), diff(got, src))
	}
}

func TestCompressRLE(t *testing.T) {
	var s Scratch
	_, err := Compress1X([]byte("AAAA"), &s)
	if !errors.Is(err, ErrUseRLE) {
		t.Fatalf("got %v, want ErrUseRLE", err)
	}
	if len(s.Out) != 1 || s.Out[0] != 'A' {
		t.Fatalf("rle payload %q, want \"A\"", s.Out)
	}
}

func TestCompressEmpty(t *testing.T) {
	var s Scratch
	_, err := Compress1X(nil, &s)
	if !errors.Is(err, ErrIncompressible) {
		t.Fatalf("got %v, want ErrIncompressible", err)
	}
}

func TestCompressTooFlat(t *testing.T) {
	var s Scratch
	_, err := Compress1X([]byte("ABABABAB"), &s)
	if !errors.Is(err, ErrIncompressible) {
		t.Fatalf("got %v, want ErrIncompressible", err)
	}
}

func TestCompressTooBig(t *testing.T) {
	var s Scratch
	_, err := Compress1X(make([]byte, BlockSizeMax+1), &s)
	if !errors.Is(err, ErrTooBig) {
		t.Fatalf("got %v, want ErrTooBig", err)
	}
}

func TestCompressTwoSymbols(t *testing.T) {
	src := bytes.Repeat([]byte("AB"), 512)
	var s Scratch
	_, err := Compress1X(src, &s)
	if err != nil {
		t.Fatal(err)
	}
	if s.cTable['A'].nBits != 1 || s.cTable['B'].nBits != 1 {
		t.Fatalf("lengths %d/%d, want 1/1", s.cTable['A'].nBits, s.cTable['B'].nBits)
	}
	roundtrip1X(t, src)
}

func TestCompressAllSymbolsOnce(t *testing.T) {
	src := make([]byte, 256)
	for i := range src {
		src[i] = byte(i)
	}
	var s Scratch
	_, err := Compress1X(src, &s)
	// uniform input cannot benefit; the flatness filter rejects it
	if !errors.Is(err, ErrIncompressible) {
		t.Fatalf("got %v, want ErrIncompressible", err)
	}
}

func TestRoundtripZipf(t *testing.T) {
	src := zipfBytes(42, 64<<10, 64)
	roundtrip1X(t, src)
	roundtrip4X(t, src)

	var s Scratch
	_, err := Compress1X(src, &s)
	if err != nil {
		t.Fatal(err)
	}
	for i := range s.cTable {
		if s.cTable[i].nBits > 11 {
			t.Fatalf("symbol %d: %d bits > default limit", i, s.cTable[i].nBits)
		}
	}
}

func TestRoundtripText(t *testing.T) {
	data := opticks(t)
	for _, size := range []int{300, 4 << 10, 64 << 10, BlockSizeMax} {
		if size > len(data) {
			break
		}
		roundtrip1X(t, data[:size])
		roundtrip4X(t, data[:size])
	}
}

func TestRoundtripTableLogs(t *testing.T) {
	src := zipfBytes(7, 32<<10, 200)
	for _, tl := range []uint8{5, 8, 9, 11, 12} {
		s := Scratch{TableLog: tl}
		comp, err := Compress1X(src, &s)
		if err != nil {
			t.Fatalf("tableLog %d: %v", tl, err)
		}
		var d Scratch
		dd, remain, err := ReadTable(comp, &d)
		if err != nil {
			t.Fatalf("tableLog %d: %v", tl, err)
		}
		got, err := dd.Decompress1X(remain)
		if err != nil {
			t.Fatalf("tableLog %d: %v", tl, err)
		}
		if !bytes.Equal(got, src) {
			t.Fatalf("tableLog %d: mismatch at %d", tl, diff(got, src))
		}
	}
}

// reverseBytes gives a second block with the exact same histogram.
func reverseBytes(in []byte) []byte {
	out := make([]byte, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

func TestReuseAllow(t *testing.T) {
	blockA := zipfBytes(1, 16<<10, 80)
	blockB := reverseBytes(blockA)

	var s Scratch
	first, err := Compress1X(blockA, &s)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.OutTable) == 0 {
		t.Fatal("first block should carry a table")
	}
	firstLen := len(first)
	// keep first intact: the next block would otherwise reuse its buffer
	s.Out = nil

	// second block with near-identical statistics: the old table should
	// win the cost comparison and the header is dropped
	second, err := Compress1X(blockB, &s)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.OutTable) != 0 {
		t.Fatal("reused block should not carry a table")
	}
	if len(second) >= firstLen {
		t.Fatalf("reused block (%d) not smaller than first (%d)", len(second), firstLen)
	}

	// decode the second block with the first block's table
	var d Scratch
	dd, remain, err := ReadTable(first, &d)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dd.Decompress1X(remain); err != nil {
		t.Fatal(err)
	}
	got, err := dd.Decompress1X(second)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, blockB) {
		t.Fatalf("reuse roundtrip mismatch at %d", diff(got, blockB))
	}
}

func TestReusePrefer(t *testing.T) {
	blockA := zipfBytes(3, 16<<10, 80)
	blockB := reverseBytes(blockA)

	s := Scratch{Reuse: ReusePolicyPrefer}
	_, err := Compress1X(blockA, &s)
	if err != nil {
		t.Fatal(err)
	}
	s.TrustPrevTable()
	second, err := Compress1X(blockB, &s)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.OutTable) != 0 {
		t.Fatal("preferred reuse must not emit a table")
	}
	if len(second) == 0 {
		t.Fatal("no output")
	}
}

func TestReuseInvalidated(t *testing.T) {
	// first block misses symbol 'z' entirely, second is full of it:
	// the check state must reject the old table and emit a fresh one
	blockA := bytes.Repeat([]byte("aabbbbcccccccc"), 512)
	blockB := bytes.Repeat([]byte("zzzzzzzazbbzzz"), 512)

	var s Scratch
	if _, err := Compress1X(blockA, &s); err != nil {
		t.Fatal(err)
	}
	second, err := Compress1X(blockB, &s)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.OutTable) == 0 {
		t.Fatal("invalidated table must be replaced and transmitted")
	}
	var d Scratch
	dd, remain, err := ReadTable(second, &d)
	if err != nil {
		t.Fatal(err)
	}
	got, err := dd.Decompress1X(remain)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, blockB) {
		t.Fatalf("mismatch at %d", diff(got, blockB))
	}
}

func TestMaxSymbolValue(t *testing.T) {
	src := zipfBytes(5, 8<<10, 256)
	src[0] = 255
	s := Scratch{MaxSymbolValue: 128}
	_, err := Compress1X(src, &s)
	if !errors.Is(err, ErrMaxSymbolTooLarge) {
		t.Fatalf("got %v, want ErrMaxSymbolTooLarge", err)
	}
}

// TestRoundtripRapid drives the roundtrip invariant over generated
// distributions: skewed, narrow and wide alphabets.
func TestRoundtripRapid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nsym := rapid.IntRange(2, 255).Draw(t, "nsym")
		size := rapid.IntRange(32, 8<<10).Draw(t, "size")
		seed := rapid.Int64().Draw(t, "seed")
		src := zipfBytes(seed, size, nsym)

		var s Scratch
		comp, err := Compress1X(src, &s)
		if errors.Is(err, ErrIncompressible) || errors.Is(err, ErrUseRLE) {
			return
		}
		if err != nil {
			t.Fatal(err)
		}
		if len(comp) >= len(src) {
			t.Fatalf("compressed %d >= source %d", len(comp), len(src))
		}
		var d Scratch
		dd, remain, err := ReadTable(comp, &d)
		if err != nil {
			t.Fatal(err)
		}
		dd.MaxDecodedSize = len(src)
		got, err := dd.Decompress1X(remain)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, src) {
			t.Fatalf("mismatch at %d", diff(got, src))
		}
	})
}

func FuzzCompress(f *testing.F) {
	f.Add([]byte("hello world hello world hello"))
	f.Add(zipfBytes(9, 4096, 30))
	f.Add(bytes.Repeat([]byte{1, 2, 3, 4}, 100))
	f.Fuzz(func(t *testing.T, src []byte) {
		if len(src) > BlockSizeMax {
			src = src[:BlockSizeMax]
		}
		var s Scratch
		comp, err := Compress1X(src, &s)
		if err != nil {
			return
		}
		var d Scratch
		dd, remain, err := ReadTable(comp, &d)
		if err != nil {
			t.Fatal(err)
		}
		got, err := dd.Decompress1X(remain)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, src) {
			t.Fatal("roundtrip mismatch")
		}
	})
}

func BenchmarkCompress1X(b *testing.B) {
	src := zipfBytes(11, 64<<10, 128)
	var s Scratch
	b.SetBytes(int64(len(src)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := Compress1X(src, &s)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCompress4X(b *testing.B) {
	src := zipfBytes(11, 64<<10, 128)
	var s Scratch
	b.SetBytes(int64(len(src)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := Compress4X(src, &s)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecompress1X(b *testing.B) {
	src := zipfBytes(11, 64<<10, 128)
	var s Scratch
	comp, err := Compress1X(src, &s)
	if err != nil {
		b.Fatal(err)
	}
	var d Scratch
	dd, remain, err := ReadTable(comp, &d)
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(src)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := dd.Decompress1X(remain); err != nil {
			b.Fatal(err)
		}
	}
}
