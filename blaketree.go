// Package blaketree implements a binary Merkle tree whose root equals the
// BLAKE3 chaining value of the same bytes. Individual leaves (1024-byte
// BLAKE3 chunks) can be overwritten and the affected path recomputed in
// O(log n); a sorted batch of leaf overwrites is applied in work
// proportional to the union of their update paths rather than to the tree
// size.
//
// The tree is a heap-indexed array of hazmat/chunk.Output nodes, 1-based,
// root at index 1, padded up to the smallest power of two at or above the
// real leaf count. The subtlety is the promotion rule: where a subtree's population
// is odd, the lone right-edge node is carried up to its parent slot
// unchanged rather than combined with a sibling. That is what makes the
// tree's root agree with the BLAKE3 chaining value over a chunk count that
// isn't a power of two, exactly as BLAKE3's own streaming hasher handles
// it (see internal/blake3ref).
package blaketree

import (
	"errors"
	"math/bits"

	"github.com/codahale/blaketree/hazmat/chunk"
	"github.com/codahale/blaketree/hazmat/compress"
)

// ErrNotSorted is returned by BulkInsertLeaves when indices is not strictly
// ascending, or does not have the same length as outputs. The tree is left
// unmodified.
var ErrNotSorted = errors.New("blaketree: indices not strictly ascending")

// BinaryMerkleTree is a binary Merkle tree over BLAKE3 chunk outputs.
type BinaryMerkleTree struct {
	nodes          []chunk.Output
	actualLeaves   int
	numberOfLeaves int // P: the next power of two >= actualLeaves (1 for actualLeaves == 1)
	leafStartIndex int // == numberOfLeaves
	keyWords       [8]uint32
	flags          uint32
}

// FromInput splits input into compress.ChunkLen-sized chunks (the last may
// be short; an empty input yields a single empty chunk with counter 0) and
// builds a BinaryMerkleTree over their outputs, keyed with keyWords and
// flags. Passing compress.IV and 0 reproduces the unkeyed, public BLAKE3
// hash.
func FromInput(input []byte, keyWords [8]uint32, flags uint32) *BinaryMerkleTree {
	n := max(1, (len(input)+compress.ChunkLen-1)/compress.ChunkLen)
	leaves := make([]chunk.Output, n)
	for i := range leaves {
		start := i * compress.ChunkLen
		end := min(start+compress.ChunkLen, len(input))
		leaves[i] = chunk.ChunkOutput(keyWords, uint64(i), flags, input[start:end])
	}
	return NewFromLeaves(leaves, keyWords, flags)
}

// NewFromLeaves builds a BinaryMerkleTree over caller-supplied leaf
// outputs, keyed with keyWords and flags. leaves must be non-empty.
func NewFromLeaves(leaves []chunk.Output, keyWords [8]uint32, flags uint32) *BinaryMerkleTree {
	n := len(leaves)
	if n == 0 {
		panic("blaketree: NewFromLeaves requires at least one leaf")
	}

	p := nextPowerOfTwo(n)
	t := &BinaryMerkleTree{
		nodes:          make([]chunk.Output, 2*p),
		actualLeaves:   n,
		numberOfLeaves: p,
		leafStartIndex: p,
		keyWords:       keyWords,
		flags:          flags,
	}
	copy(t.nodes[p:p+n], leaves)

	if n == 1 {
		t.nodes[1] = leaves[0]
		return t
	}

	levelStart, levelCount := p, n
	for levelStart > 1 {
		parentStart := levelStart / 2
		parentCount := (levelCount + 1) / 2

		for i := 0; i < parentCount; i++ {
			left := levelStart + 2*i
			right := left + 1
			if 2*i+1 >= levelCount {
				t.nodes[parentStart+i] = t.nodes[left]
			} else {
				t.nodes[parentStart+i] = chunk.ParentOutput(t.nodes[left].ChainingValue(), t.nodes[right].ChainingValue(), keyWords, flags)
			}
		}

		levelStart, levelCount = parentStart, parentCount
	}

	return t
}

// Root returns the tree's root Output, with compress.Root set in its
// flags. Internally stored nodes never have compress.Root set.
func (t *BinaryMerkleTree) Root() chunk.Output {
	root := t.nodes[1]
	root.Flags |= compress.Root
	return root
}

// NumLeaves returns P, the padded leaf slot count (the next power of two
// >= ActualLeaves).
func (t *BinaryMerkleTree) NumLeaves() int {
	return t.numberOfLeaves
}

// ActualLeaves returns the real leaf count the tree was built with.
func (t *BinaryMerkleTree) ActualLeaves() int {
	return t.actualLeaves
}

// InsertLeaf overwrites the leaf at index and recomputes every ancestor on
// its path to the root. It panics if index is out of [0, ActualLeaves()).
func (t *BinaryMerkleTree) InsertLeaf(index int, output chunk.Output) {
	if index < 0 || index >= t.actualLeaves {
		panic("blaketree: leaf index out of range")
	}

	c := t.leafStartIndex + index
	t.nodes[c] = output

	for c != 1 {
		left, right, parent, hasRightSibling := t.geometry(c)
		if hasRightSibling {
			t.nodes[parent] = chunk.ParentOutput(t.nodes[left].ChainingValue(), t.nodes[right].ChainingValue(), t.keyWords, t.flags)
		} else {
			t.nodes[parent] = t.nodes[left]
		}
		c = parent
	}
}

// BulkInsertLeaves overwrites the leaves at indices (which must be strictly
// ascending and the same length as outputs) with outputs, then recomputes
// every touched ancestor exactly once via a sibling-coalescing breadth-first
// walk. An empty indices is a no-op success.
//
// If indices is not strictly ascending, or its length does not match
// outputs, BulkInsertLeaves returns ErrNotSorted and leaves the tree
// completely unmodified: the ordering is checked before any leaf or
// ancestor is written.
func (t *BinaryMerkleTree) BulkInsertLeaves(indices []int, outputs []chunk.Output) error {
	if len(indices) == 0 {
		return nil
	}

	if len(indices) != len(outputs) {
		return ErrNotSorted
	}

	for i := 1; i < len(indices); i++ {
		if indices[i] <= indices[i-1] {
			return ErrNotSorted
		}
	}

	for _, idx := range indices {
		if idx < 0 || idx >= t.actualLeaves {
			panic("blaketree: leaf index out of range")
		}
	}

	queue := make([]int, 0, len(indices))
	for i, idx := range indices {
		slot := t.leafStartIndex + idx
		t.nodes[slot] = outputs[i]
		queue = append(queue, slot)
	}

	for head := 0; head < len(queue); head++ {
		current := queue[head]
		if current == 1 {
			break
		}

		if head+1 < len(queue) && queue[head+1] == current^1 {
			head++
		}

		left, right, parent, hasRightSibling := t.geometry(current)
		if hasRightSibling {
			t.nodes[parent] = chunk.ParentOutput(t.nodes[left].ChainingValue(), t.nodes[right].ChainingValue(), t.keyWords, t.flags)
		} else {
			t.nodes[parent] = t.nodes[left]
		}
		queue = append(queue, parent)
	}

	return nil
}

// geometry computes, for node slot c, the (left, right, parent) slots and
// whether c's level actually has a right sibling (i.e. whether parent
// should be a fresh ParentOutput rather than a promotion of left).
func (t *BinaryMerkleTree) geometry(c int) (left, right, parent int, hasRightSibling bool) {
	sibling := c ^ 1
	left, right = min(c, sibling), max(c, sibling)
	parent = c >> 1

	levelStart, levelCount := t.levelAt(t.levelOf(c))
	hasRightSibling = right < levelStart+levelCount
	return
}

// levelOf returns the level k of slot c, measured up from the leaves
// (k == 0 at the leaf level, increasing toward the root).
func (t *BinaryMerkleTree) levelOf(c int) int {
	log2P := bits.Len(uint(t.numberOfLeaves)) - 1
	depthFromRoot := bits.Len(uint(c)) - 1
	return log2P - depthFromRoot
}

// levelAt returns level k's start slot and real population, via the
// recurrence pop(0) = actualLeaves, pop(j+1) = ceil(pop(j)/2), with
// levelStart(j) = P >> j.
func (t *BinaryMerkleTree) levelAt(k int) (start, count int) {
	start = t.numberOfLeaves >> k
	count = t.actualLeaves
	for i := 0; i < k; i++ {
		count = (count + 1) / 2
	}
	return start, count
}

// nextPowerOfTwo returns the smallest power of two >= n, treating n <= 1 as
// 1.
func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}
