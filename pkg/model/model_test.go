package model

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/YinWang3026/dynago/pkg/vclock"
)

func ctxWith(clock vclock.VClock, hint NodeID) Context {
	return Context{Clock: clock, Hint: hint}
}

func TestCombineContextsOrdered(t *testing.T) {
	older := ctxWith(vclock.VClock{"a": 1}, "b")
	newer := ctxWith(vclock.VClock{"a": 2}, NoNode)

	got := CombineContexts(older, newer)
	require.Equal(t, newer.Clock, got.Clock)
	require.Equal(t, NoNode, got.Hint)

	got = CombineContexts(newer, older)
	require.Equal(t, newer.Clock, got.Clock)
}

func TestCombineContextsConcurrent(t *testing.T) {
	left := ctxWith(vclock.VClock{"a": 1}, NoNode)
	right := ctxWith(vclock.VClock{"b": 1}, "c")

	got := CombineContexts(left, right)
	require.Equal(t, vclock.VClock{"a": 1, "b": 1}, got.Clock)
	require.Equal(t, NodeID("c"), got.Hint)

	// left hint wins when both are set
	left.Hint = "x"
	got = CombineContexts(left, right)
	require.Equal(t, NodeID("x"), got.Hint)
}

func TestMergeKeepsLater(t *testing.T) {
	old := NewVersioned([][]byte{[]byte("42")}, ctxWith(vclock.VClock{"a": 1}, NoNode))
	new_ := NewVersioned([][]byte{[]byte("49")}, ctxWith(vclock.VClock{"a": 2}, NoNode))

	got := Merge(old, new_)
	require.Equal(t, [][]byte{[]byte("49")}, got.Values)

	got = Merge(new_, old)
	require.Equal(t, [][]byte{[]byte("49")}, got.Values)
}

func TestMergeConcurrentCollectsSiblings(t *testing.T) {
	a := NewVersioned([][]byte{[]byte("x")}, ctxWith(vclock.VClock{"a": 1}, NoNode))
	b := NewVersioned([][]byte{[]byte("y")}, ctxWith(vclock.VClock{"b": 1}, NoNode))

	got := Merge(a, b)
	require.Equal(t, [][]byte{[]byte("x"), []byte("y")}, got.Values)
	require.Equal(t, vclock.VClock{"a": 1, "b": 1}, got.Ctx.Clock)
}

func TestMergeDeduplicatesSiblings(t *testing.T) {
	a := NewVersioned([][]byte{[]byte("x"), []byte("x")}, ctxWith(vclock.VClock{"a": 1}, NoNode))
	b := NewVersioned([][]byte{[]byte("x")}, ctxWith(vclock.VClock{"b": 1}, NoNode))

	got := Merge(a, b)
	require.Equal(t, [][]byte{[]byte("x")}, got.Values)
}
