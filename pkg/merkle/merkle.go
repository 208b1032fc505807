// Package merkle implements the append-only binary hash tree replicas
// exchange during anti-entropy. Leaves are digests of inserted byte
// strings in insertion order; a lone left child is promoted upward
// unchanged, so no synthetic padding ever enters the tree.
package merkle

import (
	"crypto/md5"
	"errors"
	"math/bits"
)

// Digest hashes a byte string. The tree treats it as opaque.
type Digest func([]byte) []byte

// MD5 is the default digest.
func MD5(b []byte) []byte {
	sum := md5.Sum(b)
	return sum[:]
}

var ErrNotBytes = errors.New("merkle: insert requires a byte string")

// Tree is the level matrix. Level 0 holds the leaf digests; level L+1
// holds H(left||right) for each full pair at level L, or the left child
// itself when it has no sibling.
type Tree struct {
	digest    Digest
	matrix    [][][]byte
	leafCount int
}

func New() *Tree {
	return NewWithDigest(MD5)
}

func NewWithDigest(d Digest) *Tree {
	return &Tree{digest: d, matrix: [][][]byte{{}}}
}

func (t *Tree) LeafCount() int { return t.leafCount }

// RootLevel is the index of the current top level: 0 when empty, and
// ceil(log2(leafCount)) otherwise.
func (t *Tree) RootLevel() int { return len(t.matrix) - 1 }

// Level returns the digests at one level. Shared, not copied.
func (t *Tree) Level(l int) [][]byte {
	if l < 0 || l >= len(t.matrix) {
		return nil
	}
	return t.matrix[l]
}

// Insert appends the digest of b as a new leaf and recomputes the spine
// above it.
func (t *Tree) Insert(b []byte) error {
	if b == nil {
		return ErrNotBytes
	}
	t.matrix[0] = append(t.matrix[0], t.digest(b))
	t.leafCount++

	col := t.leafCount - 1
	for lvl := 0; ; lvl++ {
		if len(t.matrix[lvl]) == 1 && lvl == len(t.matrix)-1 {
			return nil
		}
		parent := col / 2
		val := t.matrix[lvl][parent*2]
		if right := parent*2 + 1; right < len(t.matrix[lvl]) {
			joined := make([]byte, 0, len(val)+len(t.matrix[lvl][right]))
			joined = append(joined, val...)
			joined = append(joined, t.matrix[lvl][right]...)
			val = t.digest(joined)
		}
		if lvl+1 == len(t.matrix) {
			t.matrix = append(t.matrix, [][]byte{})
		}
		if parent < len(t.matrix[lvl+1]) {
			t.matrix[lvl+1][parent] = val
		} else {
			t.matrix[lvl+1] = append(t.matrix[lvl+1], val)
		}
		col = parent
	}
}

// RootHash returns the digest at the top of the tree, or ok=false on the
// empty tree.
func (t *Tree) RootHash() ([]byte, bool) {
	if t.leafCount == 0 {
		return nil, false
	}
	return t.matrix[len(t.matrix)-1][0], true
}

// Levels exports the matrix for the wire. The outer slices are fresh;
// digests are shared.
func (t *Tree) Levels() [][][]byte {
	out := make([][][]byte, len(t.matrix))
	for i, lvl := range t.matrix {
		out[i] = append([][]byte(nil), lvl...)
	}
	return out
}

// FromLevels rebuilds a tree view from a wire matrix. The digest is only
// needed if the caller keeps inserting, which anti-entropy never does.
func FromLevels(levels [][][]byte) *Tree {
	t := NewWithDigest(MD5)
	if len(levels) == 0 {
		return t
	}
	t.matrix = levels
	t.leafCount = len(levels[0])
	return t
}

// expectedRootLevel is ceil(log2(n)) for n >= 1, 0 for n == 0.
func expectedRootLevel(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}
