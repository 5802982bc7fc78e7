// Package chunk implements the BLAKE3 leaf-chunk accumulator, the
// deferred-finalization Output record, and the parent-node constructor.
//
// This is a hazmat package: an Output is a pure value that records enough
// state to be compressed again later, either as a non-root chaining value
// or, once, as an arbitrary-length root output stream. Getting ROOT set at
// the wrong time, or storing the wrong counter/flags, silently produces the
// wrong hash; callers should go through the root blaketree package rather
// than constructing Outputs directly unless they are implementing a tree
// algorithm themselves.
package chunk

import (
	"github.com/codahale/blaketree/hazmat/compress"
	"github.com/codahale/blaketree/internal/mem"
)

// Output is the deferred-finalization record stored at every node of a
// BinaryMerkleTree: the inputs to a BLAKE3 compression, without having fixed
// whether that compression is a non-root chaining value or the first block
// of a root output stream.
type Output struct {
	InputChainingValue [8]uint32
	BlockWords         [16]uint32
	Counter            uint64
	BlockLen           uint32
	Flags              uint32
}

// ChainingValue derives the chaining value of o: the first eight words of
// compressing o's fields once, with o.Flags as stored. Nodes stored in a
// tree never carry ROOT, so for them this is the non-root chaining value.
func (o Output) ChainingValue() [8]uint32 {
	state := compress.Compress(o.InputChainingValue, o.BlockWords, o.Counter, o.BlockLen, o.Flags)
	return [8]uint32{state[0], state[1], state[2], state[3], state[4], state[5], state[6], state[7]}
}

// RootOutputBytes writes len(dst) bytes of root output into dst: repeated
// compressions of o's fields with flags|ROOT and an incrementing counter,
// each contributing up to 64 little-endian bytes. The first 32 bytes of
// this stream are the canonical BLAKE3 hash, for an o derived from the root
// of a tree over the whole input.
func (o Output) RootOutputBytes(dst []byte) {
	flags := o.Flags | compress.Root

	var i uint64
	for len(dst) > 0 {
		state := compress.Compress(o.InputChainingValue, o.BlockWords, i, o.BlockLen, flags)
		var block []byte
		block = mem.BytesFromWords(block, state[:])
		n := copy(dst, block)
		dst = dst[n:]
		i++
	}
}

// ChunkState accumulates up to compress.ChunkLen bytes of a single leaf
// chunk into an Output.
type ChunkState struct {
	chainingValue    [8]uint32
	chunkCounter     uint64
	block            [compress.BlockLen]byte
	blockLen         int
	blocksCompressed int
	flags            uint32
}

// NewChunkState returns a ChunkState for the chunk at chunkCounter, seeded
// with keyWords (the tree's key words, or IV for an unkeyed tree)
// and flags.
func NewChunkState(keyWords [8]uint32, chunkCounter uint64, flags uint32) *ChunkState {
	return &ChunkState{
		chainingValue: keyWords,
		chunkCounter:  chunkCounter,
		flags:         flags,
	}
}

// Len returns the number of bytes absorbed into cs so far.
func (cs *ChunkState) Len() int {
	return cs.blocksCompressed*compress.BlockLen + cs.blockLen
}

// ChunkCounter returns the chunk index cs was constructed with.
func (cs *ChunkState) ChunkCounter() uint64 {
	return cs.chunkCounter
}

// startFlag returns CHUNK_START if no block of this chunk has yet been
// compressed, else 0.
func (cs *ChunkState) startFlag() uint32 {
	if cs.blocksCompressed == 0 {
		return compress.ChunkStart
	}
	return 0
}

// Update absorbs input into the chunk. The caller must not feed more than
// compress.ChunkLen total bytes across the lifetime of cs.
func (cs *ChunkState) Update(input []byte) {
	for len(input) > 0 {
		if cs.blockLen == compress.BlockLen {
			var words [16]uint32
			words = mem.WordsFromBytes(cs.block[:])
			state := compress.Compress(cs.chainingValue, words, cs.chunkCounter, compress.BlockLen, cs.flags|cs.startFlag())
			cs.chainingValue = [8]uint32{state[0], state[1], state[2], state[3], state[4], state[5], state[6], state[7]}
			cs.blocksCompressed++
			cs.block = [compress.BlockLen]byte{}
			cs.blockLen = 0
		}

		n := min(compress.BlockLen-cs.blockLen, len(input))
		copy(cs.block[cs.blockLen:], input[:n])
		cs.blockLen += n
		input = input[n:]
	}
}

// Output finalizes the chunk, returning its Output. cs must not be used
// afterward.
func (cs *ChunkState) Output() Output {
	blockWords := mem.WordsFromBytes(cs.block[:cs.blockLen])
	return Output{
		InputChainingValue: cs.chainingValue,
		BlockWords:         blockWords,
		Counter:            cs.chunkCounter,
		BlockLen:           uint32(cs.blockLen),
		Flags:              cs.flags | cs.startFlag() | compress.ChunkEnd,
	}
}

// ParentOutput combines two children's chaining values into their parent's
// Output.
func ParentOutput(leftCV, rightCV, keyWords [8]uint32, flags uint32) Output {
	var blockWords [16]uint32
	copy(blockWords[:8], leftCV[:])
	copy(blockWords[8:], rightCV[:])
	return Output{
		InputChainingValue: keyWords,
		BlockWords:         blockWords,
		Counter:            0,
		BlockLen:           compress.BlockLen,
		Flags:              compress.Parent | flags,
	}
}

// ChunkOutput accumulates data (at most compress.ChunkLen bytes) into a
// single chunk's Output in one call. It is a convenience wrapper around
// NewChunkState/Update/Output used by tree construction and by callers
// preparing a replacement leaf for InsertLeaf/BulkInsertLeaves.
func ChunkOutput(keyWords [8]uint32, chunkCounter uint64, flags uint32, data []byte) Output {
	cs := NewChunkState(keyWords, chunkCounter, flags)
	cs.Update(data)
	return cs.Output()
}
