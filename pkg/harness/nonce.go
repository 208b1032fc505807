package harness

import (
	"fmt"
	"math/rand"
)

// nonceRegistry draws request correlators from [1, 10^9]. Uniqueness is
// probabilistic; a collision means the run's results cannot be trusted,
// so it surfaces as an error instead of being papered over.
type nonceRegistry struct {
	rng  *rand.Rand
	seen map[uint64]bool
}

func newNonceRegistry(rng *rand.Rand) *nonceRegistry {
	return &nonceRegistry{rng: rng, seen: make(map[uint64]bool)}
}

func (r *nonceRegistry) next() (uint64, error) {
	nonce := uint64(r.rng.Int63n(1_000_000_000)) + 1
	if err := r.claim(nonce); err != nil {
		return 0, err
	}
	return nonce, nil
}

func (r *nonceRegistry) claim(nonce uint64) error {
	if r.seen[nonce] {
		return fmt.Errorf("%w: %d", ErrDuplicateNonce, nonce)
	}
	r.seen[nonce] = true
	return nil
}
