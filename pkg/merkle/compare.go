package merkle

import "bytes"

// Outcome of comparing a sender's tree against the receiver's, evaluated
// on the receiver.
type Outcome int

const (
	// Same: both trees agree, nothing to ship.
	Same Outcome = iota
	// DoNothing: the receiver has nothing the sender is missing.
	DoNothing
	// SendFrom: the receiver should ship its leaves from index K onward.
	SendFrom
)

func (o Outcome) String() string {
	switch o {
	case Same:
		return "same"
	case DoNothing:
		return "do_nothing"
	default:
		return "send_from"
	}
}

// Compare decides what the receiver owes the sender. When it returns
// SendFrom, k is the smallest leaf index such that every earlier leaf is
// known equal on both sides; leaves left of the divergence need not ship.
func Compare(sender, receiver *Tree) (Outcome, int) {
	switch {
	case sender.leafCount == 0 && receiver.leafCount == 0:
		return Same, 0
	case sender.leafCount == 0:
		return SendFrom, 0
	case receiver.leafCount == 0:
		return DoNothing, 0
	case sender.RootLevel() > receiver.RootLevel():
		return DoNothing, 0
	case receiver.RootLevel() > sender.RootLevel():
		return SendFrom, 0
	}

	sRoot, _ := sender.RootHash()
	rRoot, _ := receiver.RootHash()
	if bytes.Equal(sRoot, rRoot) {
		return Same, 0
	}

	// Same height, diverging roots: descend, tracking the rightmost
	// first-mismatch over all levels.
	maxIdx := 0
	for lvl := sender.RootLevel() - 1; lvl >= 0; lvl-- {
		if col, ok := firstMismatch(sender.matrix[lvl], receiver.matrix[lvl]); ok {
			if idx := col << lvl; idx > maxIdx {
				maxIdx = idx
			}
		}
	}
	if leafEqual(sender.matrix[0], receiver.matrix[0], maxIdx) {
		maxIdx++
	}
	return SendFrom, maxIdx
}

// firstMismatch finds the first column where the two levels disagree; a
// missing column on either side counts as a mismatch.
func firstMismatch(a, b [][]byte) (int, bool) {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for c := 0; c < n; c++ {
		if c >= len(a) || c >= len(b) || !bytes.Equal(a[c], b[c]) {
			return c, true
		}
	}
	return 0, false
}

func leafEqual(a, b [][]byte, idx int) bool {
	return idx < len(a) && idx < len(b) && bytes.Equal(a[idx], b[idx])
}
