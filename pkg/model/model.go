// Package model holds the value types shared by every replica: write
// contexts, sibling sets and the reconciliation rules between them.
package model

import (
	"bytes"
	"sort"

	"github.com/YinWang3026/dynago/pkg/vclock"
)

// NodeID names a replica. It doubles as the node's transport address.
type NodeID string

// NoNode is the absent-hint sentinel.
const NoNode NodeID = ""

// Context travels with every stored value: the version clock plus an
// optional hint naming the node the write was originally intended for.
type Context struct {
	Clock vclock.VClock
	Hint  NodeID
}

func NewContext() Context {
	return Context{Clock: vclock.New()}
}

// Clone returns an independent copy.
func (c Context) Clone() Context {
	return Context{Clock: c.Clock.Clone(), Hint: c.Hint}
}

// WithoutHint strips the hint, keeping the clock.
func (c Context) WithoutHint() Context {
	return Context{Clock: c.Clock.Clone()}
}

// Compare orders two contexts by their clocks.
func Compare(a, b Context) vclock.Ordering {
	return vclock.Compare(a.Clock, b.Clock)
}

// CombineContexts keeps the later context when one strictly precedes the
// other; on concurrency it combines the clocks and keeps whichever hint is
// set, left-biased.
func CombineContexts(a, b Context) Context {
	switch Compare(a, b) {
	case vclock.Before:
		return b.Clone()
	case vclock.After:
		return a.Clone()
	}
	hint := a.Hint
	if hint == NoNode {
		hint = b.Hint
	}
	return Context{Clock: vclock.Combine(a.Clock, b.Clock), Hint: hint}
}

// Versioned is the stored state of one key: the set of concurrent sibling
// payloads and their combined context.
type Versioned struct {
	Values [][]byte
	Ctx    Context
}

func NewVersioned(values [][]byte, ctx Context) Versioned {
	return Versioned{Values: sortUnique(values), Ctx: ctx}
}

// Clone returns an independent copy.
func (v Versioned) Clone() Versioned {
	vals := make([][]byte, len(v.Values))
	for i, b := range v.Values {
		vals[i] = bytes.Clone(b)
	}
	return Versioned{Values: vals, Ctx: v.Ctx.Clone()}
}

// Merge reconciles two versions of the same key. An ordered pair keeps
// the later one; concurrent versions keep the sorted union of their
// siblings under the combined context.
func Merge(a, b Versioned) Versioned {
	switch Compare(a.Ctx, b.Ctx) {
	case vclock.Before:
		return b.Clone()
	case vclock.After:
		return a.Clone()
	}
	union := make([][]byte, 0, len(a.Values)+len(b.Values))
	union = append(union, a.Values...)
	union = append(union, b.Values...)
	return Versioned{
		Values: sortUnique(union),
		Ctx:    CombineContexts(a.Ctx, b.Ctx),
	}
}

// CanonicalValues renders a sibling set deterministically for hashing.
func (v Versioned) CanonicalValues() []byte {
	var buf bytes.Buffer
	for _, val := range v.Values {
		buf.Write(val)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func sortUnique(values [][]byte) [][]byte {
	out := make([][]byte, 0, len(values))
	for _, v := range values {
		out = append(out, bytes.Clone(v))
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i], out[j]) < 0 })
	dedup := out[:0]
	for _, v := range out {
		if len(dedup) == 0 || !bytes.Equal(dedup[len(dedup)-1], v) {
			dedup = append(dedup, v)
		}
	}
	return dedup
}
