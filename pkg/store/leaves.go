package store

import (
	"bytes"

	"github.com/YinWang3026/dynago/pkg/merkle"
)

// BuildTree snapshots the keyspace into an anti-entropy tree. Leaves are
// appended in sorted-key order so two replicas holding the same versions
// produce the same root; each leaf covers the key, its clock and its
// sibling set.
func (s *Store) BuildTree() *merkle.Tree {
	t := merkle.New()
	for _, key := range s.SortedKeys() {
		v := s.data[key]
		var buf bytes.Buffer
		buf.WriteString(key)
		buf.WriteByte(0)
		buf.Write(v.Ctx.Clock.Canonical())
		buf.WriteByte(0)
		buf.Write(v.CanonicalValues())
		// buf always holds at least the two separator bytes, so it is
		// never nil; Insert only fails on nil input
		_ = t.Insert(buf.Bytes())
	}
	return t
}
