// Package ring places keys on a fixed consistent-hash ring. Each node
// owns one token (the digest of its id); a key belongs to the first
// tokens clockwise from the key's own digest.
package ring

import (
	"bytes"
	"crypto/md5"

	"github.com/petar/GoLLRB/llrb"

	"github.com/YinWang3026/dynago/pkg/model"
)

type token struct {
	pos []byte
	id  model.NodeID
}

func (t token) Less(than llrb.Item) bool {
	o := than.(token)
	if c := bytes.Compare(t.pos, o.pos); c != 0 {
		return c < 0
	}
	return t.id < o.id
}

// Ring is immutable after construction; membership is fixed for the life
// of the cluster.
type Ring struct {
	tree *llrb.LLRB
	size int
}

func New(nodes []model.NodeID) *Ring {
	tree := llrb.New()
	for _, id := range nodes {
		sum := md5.Sum([]byte(id))
		tree.ReplaceOrInsert(token{pos: sum[:], id: id})
	}
	return &Ring{tree: tree, size: tree.Len()}
}

func (r *Ring) Size() int { return r.size }

// Pref returns the top-k node ids for key in ring order.
func (r *Ring) Pref(key string, k int) []model.NodeID {
	return r.Walk(key, k)
}

// Walk returns up to limit distinct node ids clockwise from key's
// position, wrapping around the ring.
func (r *Ring) Walk(key string, limit int) []model.NodeID {
	if limit > r.size {
		limit = r.size
	}
	if limit <= 0 {
		return nil
	}
	sum := md5.Sum([]byte(key))
	out := make([]model.NodeID, 0, limit)
	collect := func(i llrb.Item) bool {
		out = append(out, i.(token).id)
		return len(out) < limit
	}
	r.tree.AscendGreaterOrEqual(token{pos: sum[:]}, collect)
	if len(out) < limit {
		r.tree.AscendGreaterOrEqual(r.tree.Min(), func(i llrb.Item) bool {
			if len(out) >= limit {
				return false
			}
			return collect(i)
		})
	}
	return out
}
