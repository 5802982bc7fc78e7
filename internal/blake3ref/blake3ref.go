// Package blake3ref implements a reference, incremental, streaming BLAKE3
// hasher, used only as the test oracle cross-checked against
// BinaryMerkleTree's roots. It is intentionally not part of the public API:
// there is no streaming Hasher facade exported at the module root, only this
// internal oracle used for testing.
//
// The CV-stack discipline here (push a completed chunk's chaining value,
// then fold it with the stack top while the running chunk count's low bit
// is zero) is what the tree's promotion rule in package blaketree mirrors.
// The two constructions are required to agree by construction, not by
// coincidence.
package blake3ref

import (
	"github.com/codahale/blaketree/hazmat/chunk"
	"github.com/codahale/blaketree/hazmat/compress"
)

// maxStackDepth bounds the CV stack: 2^54 chunks of compress.ChunkLen bytes
// each is 2^64 bytes, the largest input a 64-bit length can address.
const maxStackDepth = 54

// Hasher is an incremental BLAKE3 hasher.
type Hasher struct {
	keyWords [8]uint32
	flags    uint32

	chunkState *chunk.ChunkState

	cvStack    [maxStackDepth][8]uint32
	cvStackLen int
}

// New returns a Hasher seeded with keyWords (IV for an unkeyed hash) and
// flags (0 for an unkeyed hash).
func New(keyWords [8]uint32, flags uint32) *Hasher {
	return &Hasher{
		keyWords:   keyWords,
		flags:      flags,
		chunkState: chunk.NewChunkState(keyWords, 0, flags),
	}
}

// Write absorbs input.
func (h *Hasher) Write(input []byte) (int, error) {
	n := len(input)

	for len(input) > 0 {
		if h.chunkState.Len() == compress.ChunkLen {
			chunkCV := h.chunkState.Output().ChainingValue()
			totalChunks := h.chunkState.ChunkCounter() + 1
			h.addChunkChainingValue(chunkCV, totalChunks)
			h.chunkState = chunk.NewChunkState(h.keyWords, totalChunks, h.flags)
		}

		want := compress.ChunkLen - h.chunkState.Len()
		take := min(want, len(input))
		h.chunkState.Update(input[:take])
		input = input[take:]
	}

	return n, nil
}

// addChunkChainingValue folds newCV into the stack, collapsing right-edge
// pairs while the low bit of totalChunks is 0, exactly mirroring
// blaketree's promotion rule one completed chunk at a time.
func (h *Hasher) addChunkChainingValue(newCV [8]uint32, totalChunks uint64) {
	for totalChunks&1 == 0 {
		top := h.popCV()
		newCV = chunk.ParentOutput(top, newCV, h.keyWords, h.flags).ChainingValue()
		totalChunks >>= 1
	}
	h.pushCV(newCV)
}

func (h *Hasher) pushCV(cv [8]uint32) {
	h.cvStack[h.cvStackLen] = cv
	h.cvStackLen++
}

func (h *Hasher) popCV() [8]uint32 {
	h.cvStackLen--
	return h.cvStack[h.cvStackLen]
}

// Sum appends the 32-byte BLAKE3 hash of everything written so far to dst.
func (h *Hasher) Sum(dst []byte) []byte {
	out := make([]byte, 32)
	h.finalOutput().RootOutputBytes(out)
	return append(dst, out...)
}

// RootOutputBytes writes len(dst) bytes of extended BLAKE3 output into dst.
func (h *Hasher) RootOutputBytes(dst []byte) {
	h.finalOutput().RootOutputBytes(dst)
}

// finalOutput folds the chunk state and the remaining stack, top to bottom,
// into the root's Output.
func (h *Hasher) finalOutput() chunk.Output {
	output := h.chunkState.Output()
	for i := h.cvStackLen - 1; i >= 0; i-- {
		output = chunk.ParentOutput(h.cvStack[i], output.ChainingValue(), h.keyWords, h.flags)
	}
	return output
}

// Sum256 is a convenience wrapper that hashes data in one call and returns
// the canonical 32-byte BLAKE3 hash.
func Sum256(data []byte) (out [32]byte) {
	h := New(compress.IV, 0)
	_, _ = h.Write(data)
	h.RootOutputBytes(out[:])
	return out
}
