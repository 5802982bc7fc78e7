// Package mem provides tiny, allocation-free byte/word conversion helpers
// shared by the hazmat packages.
package mem

import "encoding/binary"

// WordsFromBytes reads up to 16 little-endian 32-bit words from block,
// zero-padding any bytes beyond len(block). It panics if block is longer
// than 64 bytes.
func WordsFromBytes(block []byte) (words [16]uint32) {
	if len(block) > 64 {
		panic("mem: block longer than 64 bytes")
	}
	var padded [64]byte
	copy(padded[:], block)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(padded[i*4 : i*4+4])
	}
	return words
}

// BytesFromWords appends the little-endian encoding of words to dst and
// returns the extended slice.
func BytesFromWords(dst []byte, words []uint32) []byte {
	for _, w := range words {
		dst = binary.LittleEndian.AppendUint32(dst, w)
	}
	return dst
}

// SplitCounter splits a 64-bit chunk counter into its little-endian low and
// high 32-bit halves, as consumed by the compression function's input words.
func SplitCounter(counter uint64) (lo, hi uint32) {
	return uint32(counter), uint32(counter >> 32)
}
