package effect

import "math/rand/v2"

// Rand is the only source of randomness the effects use. Inject a seeded
// source to get reproducible sequences.
type Rand interface {
	// IntN returns a uniform value in [0,n). n > 0.
	IntN(n int) int
}

// NewRand returns a seeded PCG source.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// between returns a uniform value in [lo,hi).
func between(r Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.IntN(hi-lo)
}
