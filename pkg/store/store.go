// Package store holds a replica's local keyspace. The owning node is a
// single-threaded actor, so the store is deliberately lock-free; all
// access happens inside one message handler at a time.
package store

import (
	"sort"

	"github.com/YinWang3026/dynago/pkg/model"
)

type Store struct {
	data map[string]model.Versioned
}

func New() *Store {
	return &Store{data: make(map[string]model.Versioned)}
}

func (s *Store) Len() int { return len(s.data) }

func (s *Store) Get(key string) (model.Versioned, bool) {
	v, ok := s.data[key]
	return v, ok
}

// Put merges the incoming version into whatever is already stored for
// key: outdated payloads are dropped, concurrent ones become siblings.
func (s *Store) Put(key string, v model.Versioned) model.Versioned {
	if existing, ok := s.data[key]; ok {
		v = model.Merge(existing, v)
	} else {
		v = v.Clone()
	}
	s.data[key] = v
	return v
}

// Drop removes a key outright. Crash simulation does not use it; a crash
// replaces the whole store.
func (s *Store) Drop(key string) {
	delete(s.data, key)
}

// SortedKeys is the canonical leaf order for anti-entropy trees.
func (s *Store) SortedKeys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot copies the whole keyspace. Used by GetState and tests.
func (s *Store) Snapshot() map[string]model.Versioned {
	out := make(map[string]model.Versioned, len(s.data))
	for k, v := range s.data {
		out[k] = v.Clone()
	}
	return out
}

// KeysHintedFor returns the keys whose stored context still carries a
// hint for node, in canonical order.
func (s *Store) KeysHintedFor(node model.NodeID) []string {
	var keys []string
	for k, v := range s.data {
		if v.Ctx.Hint == node {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// ClearHint drops the hint on key, leaving the version untouched.
func (s *Store) ClearHint(key string) {
	if v, ok := s.data[key]; ok {
		v.Ctx.Hint = model.NoNode
		s.data[key] = v
	}
}
