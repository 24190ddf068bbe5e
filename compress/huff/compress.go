// Copyright (c) 2025, Intel Corporation.
// SPDX-License-Identifier: BSD-3-Clause

package huff

import (
	"math"
)

// Compress1X compresses in as a single Huffman-coded bitstream.
// The output is the table header (unless a previous table is reused)
// followed by the payload. Returns ErrIncompressible when the block
// should be stored raw and ErrUseRLE when it is a single repeated byte.
func Compress1X(in []byte, s *Scratch) ([]byte, error) {
	s, err := s.prepare(in)
	if err != nil {
		return nil, err
	}
	return compress(in, s, (*Scratch).compress1X)
}

// Compress4X compresses in as four independent bitstreams covering the
// input split in quarters, preceded by a 6-byte jump table. This allows
// decoders to run the streams in parallel. Input must be at least 12 bytes.
func Compress4X(in []byte, s *Scratch) ([]byte, error) {
	s, err := s.prepare(in)
	if err != nil {
		return nil, err
	}
	return compress(in, s, (*Scratch).compress4X)
}

func compress(in []byte, s *Scratch, compressor func(s *Scratch, src []byte) ([]byte, error)) ([]byte, error) {
	// the caller stores empty and near-empty blocks uncompressed
	if len(in) <= 1 {
		return nil, ErrIncompressible
	}

	// Trusted reuse path: skip the histogram entirely.
	// Coverage is the caller's contract, see TrustPrevTable.
	if s.Reuse == ReusePolicyPrefer && s.prevState == repeatValid {
		return s.compressReuse(in, compressor)
	}

	// Create histogram
	maxCount := s.countSimple(in)
	if s.symbolLen > uint16(s.MaxSymbolValue)+1 {
		return nil, ErrMaxSymbolTooLarge
	}
	if maxCount == len(in) {
		// single symbol, rle. The one-byte payload is left in s.Out.
		s.Out = append(s.Out, in[0])
		return nil, ErrUseRLE
	}
	if maxCount <= (len(in)>>7)+1 {
		// fast heuristic: not compressible enough
		return nil, ErrIncompressible
	}

	// Check validity of the previous table.
	if s.prevState == repeatCheck && !s.canUseTable(s.prevTable) {
		s.prevState = repeatNone
	}
	if s.Reuse == ReusePolicyPrefer && s.prevState != repeatNone {
		return s.compressReuse(in, compressor)
	}
	if s.Reuse == ReusePolicyNone {
		s.prevState = repeatNone
	}

	// Build a fresh table.
	if err := s.buildCTable(); err != nil {
		return nil, err
	}

	// Write table description header.
	if err := s.cTable.write(s); err != nil {
		return nil, err
	}
	hSize := len(s.Out)

	// Check if using the previous table is beneficial.
	if s.prevState != repeatNone {
		hist := s.count[:s.symbolLen]
		oldSize := s.prevTable.estimateSize(hist)
		newSize := s.cTable.estimateSize(hist)
		if oldSize <= hSize+newSize || hSize+12 >= len(in) {
			s.Out = s.Out[:0]
			return s.compressReuse(in, compressor)
		}
	}

	// Use the new table.
	if hSize+12 >= len(in) {
		return nil, ErrIncompressible
	}
	s.OutTable = s.Out[:hSize:hSize]

	out, err := compressor(s, in)
	if err != nil {
		return nil, err
	}
	s.Out = out
	if len(s.Out) >= len(in)-1 {
		s.OutTable = nil
		return nil, ErrIncompressible
	}
	// Save the new table for the following blocks.
	if cap(s.prevTable) < len(s.cTable) {
		s.prevTable = make(cTable, 0, maxSymbolValue+1)
	}
	s.prevTable = s.prevTable[:len(s.cTable)]
	copy(s.prevTable, s.cTable)
	s.prevTableLog = s.actualTableLog
	s.prevState = repeatCheck
	s.OutData = s.Out[hSize:]
	return s.Out, nil
}

// compressReuse encodes with the persisted table and no table header;
// the header was already transmitted with an earlier block.
func (s *Scratch) compressReuse(in []byte, compressor func(s *Scratch, src []byte) ([]byte, error)) ([]byte, error) {
	keepTable := s.cTable
	keepTL := s.actualTableLog
	s.cTable = s.prevTable
	s.actualTableLog = s.prevTableLog
	out, err := compressor(s, in)
	s.cTable = keepTable
	s.actualTableLog = keepTL
	if err != nil {
		return nil, err
	}
	if len(out) >= len(in)-1 {
		return nil, ErrIncompressible
	}
	s.Out = out
	s.OutData = out
	return out, nil
}

// countSimple counts symbol occurrences and returns the largest count.
// It also updates s.symbolLen to one past the highest used symbol.
func (s *Scratch) countSimple(in []byte) (max int) {
	for i := range s.count[:] {
		s.count[i] = 0
	}
	for _, v := range in {
		s.count[v]++
	}
	m := uint32(0)
	s.symbolLen = 0
	for i, v := range s.count[:] {
		if v > m {
			m = v
		}
		if v > 0 {
			s.symbolLen = uint16(i) + 1
		}
	}
	s.maxCount = int(m)
	return int(m)
}

// minTableLog provides the minimum logSize to safely represent statistics.
func (s *Scratch) minTableLog() uint8 {
	minBitsSrc := highBit32(uint32(s.srcLen)) + 1
	minBitsSymbols := highBit32(uint32(s.symbolLen-1)) + 2
	if minBitsSrc < minBitsSymbols {
		return uint8(minBitsSrc)
	}
	return uint8(minBitsSymbols)
}

// optimalTableLog calculates and sets the optimal tableLog in s.actualTableLog.
func (s *Scratch) optimalTableLog() {
	tableLog := s.TableLog
	minBits := s.minTableLog()
	maxBitsSrc := uint8(highBit32(uint32(s.srcLen-1))) - 1
	if maxBitsSrc < tableLog {
		// accuracy can be reduced
		tableLog = maxBitsSrc
	}
	if minBits > tableLog {
		// need a minimum to safely represent all symbol values
		tableLog = minBits
	}
	if tableLog < minTablelog {
		tableLog = minTablelog
	}
	if tableLog > tableLogMax {
		tableLog = tableLogMax
	}
	s.actualTableLog = tableLog
}

// huffSort sorts the live node range by count, descending.
// Symbols are first bucketed by log2(count+1), then insertion-sorted
// within the bucket, so equal counts stay in symbol order. The +1 in
// the bucket derivation sends zero counts to the last bucket.
func (s *Scratch) huffSort() {
	type rankPos struct {
		base    uint32
		current uint32
	}
	var rank [32]rankPos

	count := s.count[:s.symbolLen]
	nodes := s.nodes[1 : s.symbolLen+1]

	for _, c := range count {
		rank[highBit32(c+1)].base++
	}
	for n := 30; n > 0; n-- {
		rank[n-1].base += rank[n].base
	}
	for n := range rank[:] {
		rank[n].current = rank[n].base
	}
	for n, c := range count {
		r := highBit32(c+1) + 1
		pos := rank[r].current
		rank[r].current++
		for pos > rank[r].base && c > nodes[pos-1].count {
			nodes[pos] = nodes[pos-1]
			pos--
		}
		nodes[pos].count = c
		nodes[pos].symbol = byte(n)
	}
}

// buildCTable builds a length-limited canonical code table from the
// current histogram. Slot 0 of the node array is a sentinel whose count
// acts as a strong barrier for the merge cursors; slots for internal
// nodes not yet constructed hold 1<<30 so they never win a comparison.
func (s *Scratch) buildCTable() error {
	s.optimalTableLog()

	if cap(s.cTable) < maxSymbolValue+1 {
		s.cTable = make(cTable, 0, maxSymbolValue+1)
	}
	s.cTable = s.cTable[:s.symbolLen]
	for i := range s.cTable {
		s.cTable[i] = cTableEntry{}
	}
	for i := range s.nodes {
		s.nodes[i] = nodeElt{}
	}

	s.huffSort()
	huffNode0 := s.nodes[0 : huffNodesLen+1]
	huffNode := huffNode0[1:]

	nonNullRank := s.symbolLen - 1
	for huffNode[nonNullRank].count == 0 {
		nonNullRank--
	}

	// init for parents
	nodeNb := int16(s.symbolLen)
	lowS := int16(nonNullRank)
	nodeRoot := nodeNb + lowS - 1
	lowN := nodeNb
	huffNode[nodeNb].count = huffNode[lowS].count + huffNode[lowS-1].count
	huffNode[lowS].parent, huffNode[lowS-1].parent = uint16(nodeNb), uint16(nodeNb)
	nodeNb++
	lowS -= 2
	for n := nodeNb; n <= nodeRoot; n++ {
		huffNode[n].count = 1 << 30
	}
	// fake entry, strong barrier
	huffNode0[0].count = 1 << 31

	// create parents
	for nodeNb <= nodeRoot {
		var n1, n2 int16
		if huffNode0[lowS+1].count < huffNode0[lowN+1].count {
			n1 = lowS
			lowS--
		} else {
			n1 = lowN
			lowN++
		}
		if huffNode0[lowS+1].count < huffNode0[lowN+1].count {
			n2 = lowS
			lowS--
		} else {
			n2 = lowN
			lowN++
		}
		huffNode[nodeNb].count = huffNode0[n1+1].count + huffNode0[n2+1].count
		huffNode0[n1+1].parent, huffNode0[n2+1].parent = uint16(nodeNb), uint16(nodeNb)
		nodeNb++
	}

	// distribute weights (unlimited tree height)
	huffNode[nodeRoot].nbBits = 0
	for n := nodeRoot - 1; n >= int16(s.symbolLen); n-- {
		huffNode[n].nbBits = huffNode[huffNode[n].parent].nbBits + 1
	}
	for n := uint16(0); n <= nonNullRank; n++ {
		huffNode[n].nbBits = huffNode[huffNode[n].parent].nbBits + 1
	}

	// enforce the maximum code length
	s.actualTableLog = s.setMaxHeight(int(nonNullRank))
	if s.actualTableLog > tableLogMax {
		return ErrTableLogTooLarge
	}

	// fill result into ctable (val, nbBits)
	var nbPerRank [tableLogMax + 1]uint16
	var valPerRank [16]uint16
	for _, v := range huffNode[:nonNullRank+1] {
		nbPerRank[v.nbBits]++
	}
	// determine starting value per rank
	{
		min := uint16(0)
		for n := s.actualTableLog; n > 0; n-- {
			// get starting value within each rank
			valPerRank[n] = min
			min += nbPerRank[n]
			min >>= 1
		}
	}
	// push nbBits per symbol, symbol order
	for _, v := range huffNode[:s.symbolLen] {
		s.cTable[v.symbol].nBits = v.nbBits
	}
	// assign value within rank, symbol order
	for n, val := range s.cTable {
		v := valPerRank[val.nBits]
		s.cTable[n].val = v
		valPerRank[val.nBits] = v + 1
	}
	return nil
}

// noSymbol marks an empty rank in rankLast.
const noSymbol = math.MaxInt32

// setMaxHeight rewrites code lengths so none exceeds s.actualTableLog.
// Oversized codes are clamped first; the Kraft deficit this creates is
// tracked in units of one codeword slot at the maximum length, then
// repaid by lengthening the cheapest available shorter codes. A final
// pass shortens codes at the bound if the repayment overshot.
// Returns the resulting maximum code length.
func (s *Scratch) setMaxHeight(lastNonNull int) uint8 {
	maxNbBits := s.actualTableLog
	huffNode := s.nodes[1 : huffNodesLen+1]

	largestBits := huffNode[lastNonNull].nbBits
	// early exit: no element exceeds the bound
	if largestBits <= maxNbBits {
		return largestBits
	}

	baseCost := int(1) << (largestBits - maxNbBits)
	totalCost := 0
	n := lastNonNull

	for huffNode[n].nbBits > maxNbBits {
		totalCost += baseCost - (1 << (largestBits - huffNode[n].nbBits))
		huffNode[n].nbBits = maxNbBits
		n--
	}
	// n ends at the index of the smallest symbol using < maxNbBits
	for n >= 0 && huffNode[n].nbBits == maxNbBits {
		n--
	}

	// renorm totalCost; it is necessarily a multiple of baseCost
	totalCost >>= largestBits - maxNbBits

	// repay normalized cost
	// rankLast[k] is the index of the last (smallest count) node of
	// length maxNbBits-k
	var rankLast [tableLogMax + 2]int
	for i := range rankLast[:] {
		rankLast[i] = noSymbol
	}
	{
		currentNbBits := maxNbBits
		for pos := n; pos >= 0; pos-- {
			if huffNode[pos].nbBits >= currentNbBits {
				continue
			}
			currentNbBits = huffNode[pos].nbBits // < maxNbBits
			rankLast[maxNbBits-currentNbBits] = pos
		}
	}

	for totalCost > 0 {
		nBitsToDecrease := uint8(highBit32(uint32(totalCost))) + 1
		for ; nBitsToDecrease > 1; nBitsToDecrease-- {
			highPos := rankLast[nBitsToDecrease]
			lowPos := rankLast[nBitsToDecrease-1]
			if highPos == noSymbol {
				continue
			}
			if lowPos == noSymbol {
				break
			}
			highTotal := huffNode[highPos].count
			lowTotal := 2 * huffNode[lowPos].count
			if highTotal <= lowTotal {
				break
			}
		}
		// only triggered when no more rank-1 symbol is left; there is
		// necessarily at least one higher rank available
		for nBitsToDecrease <= tableLogMax && rankLast[nBitsToDecrease] == noSymbol {
			nBitsToDecrease++
		}
		totalCost -= 1 << (nBitsToDecrease - 1)
		if rankLast[nBitsToDecrease-1] == noSymbol {
			// this rank is no longer empty
			rankLast[nBitsToDecrease-1] = rankLast[nBitsToDecrease]
		}
		huffNode[rankLast[nBitsToDecrease]].nbBits++
		if rankLast[nBitsToDecrease] == 0 {
			// reached the largest symbol
			rankLast[nBitsToDecrease] = noSymbol
		} else {
			rankLast[nBitsToDecrease]--
			if huffNode[rankLast[nBitsToDecrease]].nbBits != maxNbBits-nBitsToDecrease {
				// this rank is now empty
				rankLast[nBitsToDecrease] = noSymbol
			}
		}
	}

	for totalCost < 0 {
		// cost correction overshot; shorten codes at the bound
		if rankLast[1] == noSymbol {
			// no rank-1 symbol left: create one from the largest rank-0 node
			for n >= 0 && huffNode[n].nbBits == maxNbBits {
				n--
			}
			huffNode[n+1].nbBits--
			rankLast[1] = n + 1
			totalCost++
			continue
		}
		huffNode[rankLast[1]+1].nbBits--
		rankLast[1]++
		totalCost++
	}

	return maxNbBits
}

// compress1X encodes src as a single stream using the current cTable.
func (s *Scratch) compress1X(src []byte) ([]byte, error) {
	return s.compress1xDo(s.Out, src)
}

// compress1xDo encodes symbols tail-first, so the reverse-reading
// decoder produces them head-first.
func (s *Scratch) compress1xDo(dst, src []byte) ([]byte, error) {
	var bw = bitWriter{out: dst}

	// N is the length divisible by 4.
	n := len(src)
	n -= n & 3
	cTable := s.cTable[:len(s.cTable)]

	// Encode last bytes.
	for i := len(src) & 3; i > 0; i-- {
		bw.encSymbol(cTable, src[n+i-1])
	}
	n -= 4
	if s.actualTableLog <= 8 {
		for ; n >= 0; n -= 4 {
			tmp := src[n : n+4]
			bw.flush32()
			bw.encFourSymbols(cTable, tmp[3], tmp[2], tmp[1], tmp[0])
		}
	} else {
		for ; n >= 0; n -= 4 {
			tmp := src[n : n+4]
			bw.flush32()
			bw.encTwoSymbols(cTable, tmp[3], tmp[2])
			bw.flush32()
			bw.encTwoSymbols(cTable, tmp[1], tmp[0])
		}
	}
	bw.close()
	return bw.out, nil
}

// compress4X encodes src as four streams, split in quarters, with a
// jump table of the first three stream lengths in front.
func (s *Scratch) compress4X(src []byte) ([]byte, error) {
	if len(src) < 12 {
		// no saving possible: input too small for four streams
		return nil, ErrIncompressible
	}
	segmentSize := (len(src) + 3) / 4

	// 6 byte jump table
	offsetIdx := len(s.Out)
	s.Out = append(s.Out, sixZeros[:]...)

	for i := 0; i < 4; i++ {
		toDo := src
		if len(toDo) > segmentSize {
			toDo = toDo[:segmentSize]
		}
		src = src[len(toDo):]

		idx := len(s.Out)
		var err error
		s.Out, err = s.compress1xDo(s.Out, toDo)
		if err != nil {
			return nil, err
		}
		if len(s.Out)-idx > math.MaxUint16 {
			// length cannot be represented by the jump table
			return nil, ErrIncompressible
		}
		// write length
		if i < 3 {
			length := len(s.Out) - idx
			s.Out[offsetIdx+i*2] = byte(length)
			s.Out[offsetIdx+i*2+1] = byte(length >> 8)
		}
	}

	return s.Out, nil
}

var sixZeros [6]byte
