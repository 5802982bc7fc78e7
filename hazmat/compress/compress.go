// Package compress implements the BLAKE3 compression function: the G-mix,
// the seven-round permutation schedule, and the parent/leaf state
// initialization they share.
//
// This is a hazmat package: it has no notion of chunks, trees, or domain
// flags beyond what the caller supplies. Callers that need a chunk
// accumulator or a Merkle tree should use hazmat/chunk and the root
// blaketree package instead.
package compress

import (
	"math/bits"

	"github.com/codahale/blaketree/internal/mem"
)

const (
	// OutLen is the size, in bytes, of a chaining value.
	OutLen = 32

	// BlockLen is the size, in bytes, of a compression input block.
	BlockLen = 64

	// ChunkLen is the maximum number of input bytes accumulated into a
	// single leaf chunk.
	ChunkLen = 1024
)

// Domain separation flags.
const (
	ChunkStart uint32 = 1 << 0
	ChunkEnd   uint32 = 1 << 1
	Parent     uint32 = 1 << 2
	Root       uint32 = 1 << 3
)

// IV is the BLAKE3 initial chaining value: the eight fractional-hex words of
// SHA-256's IV.
var IV = [8]uint32{
	0x6A09E667, 0xBB67AE85, 0x3C6EF372, 0xA54FF53A,
	0x510E527F, 0x9B05688C, 0x1F83D9AB, 0x5BE0CD19,
}

// msgPermutation is the message-word permutation applied between rounds.
var msgPermutation = [16]int{2, 6, 3, 10, 7, 0, 4, 13, 1, 11, 12, 5, 9, 14, 15, 8}

// g performs one G-mix of the state in place, combining message words mx and my
// into the quarter (a, b, c, d).
func g(state *[16]uint32, a, b, c, d int, mx, my uint32) {
	state[a] += state[b] + mx
	state[d] = bits.RotateLeft32(state[d]^state[a], -16)
	state[c] += state[d]
	state[b] = bits.RotateLeft32(state[b]^state[c], -12)

	state[a] += state[b] + my
	state[d] = bits.RotateLeft32(state[d]^state[a], -8)
	state[c] += state[d]
	state[b] = bits.RotateLeft32(state[b]^state[c], -7)
}

// round applies the eight G-mixes of a single round: four on columns, then
// four on diagonals.
func round(state *[16]uint32, m [16]uint32) {
	g(state, 0, 4, 8, 12, m[0], m[1])
	g(state, 1, 5, 9, 13, m[2], m[3])
	g(state, 2, 6, 10, 14, m[4], m[5])
	g(state, 3, 7, 11, 15, m[6], m[7])

	g(state, 0, 5, 10, 15, m[8], m[9])
	g(state, 1, 6, 11, 12, m[10], m[11])
	g(state, 2, 7, 8, 13, m[12], m[13])
	g(state, 3, 4, 9, 14, m[14], m[15])
}

func permute(m [16]uint32) (out [16]uint32) {
	for i, p := range msgPermutation {
		out[i] = m[p]
	}
	return out
}

// Compress runs the BLAKE3 compression function over cv, block, counter,
// blockLen, and flags, returning the full 16-word output state. The first
// eight words are the chaining value; the feed-forward in the last eight
// words is what root-output extension reads from.
func Compress(cv [8]uint32, block [16]uint32, counter uint64, blockLen uint32, flags uint32) [16]uint32 {
	counterLo, counterHi := mem.SplitCounter(counter)
	state := [16]uint32{
		cv[0], cv[1], cv[2], cv[3], cv[4], cv[5], cv[6], cv[7],
		IV[0], IV[1], IV[2], IV[3],
		counterLo, counterHi, blockLen, flags,
	}

	m := block
	for round_ := 0; round_ < 7; round_++ {
		round(&state, m)
		if round_ < 6 {
			m = permute(m)
		}
	}

	for i := 0; i < 8; i++ {
		state[i] ^= state[i+8]
		state[i+8] ^= cv[i]
	}

	return state
}
