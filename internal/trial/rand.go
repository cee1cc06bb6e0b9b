package trial

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// Rand is the seeded random source of one trial. It is a PCG generator
// keyed by the 64-bit trial seed, so a seed reproduces the same stream on
// every platform.
type Rand struct {
	r *rand.Rand
}

// NewRand creates a source from a 64-bit seed.
func NewRand(seed int64) *Rand {
	s := uint64(seed)
	return &Rand{r: rand.New(rand.NewPCG(s, s^0x9E3779B97F4A7C15))}
}

// Float64 returns a value in [0, 1).
func (r *Rand) Float64() float64 { return r.r.Float64() }

// IntN returns a value in [0, n).
func (r *Rand) IntN(n int) int { return r.r.IntN(n) }

// Int64 returns a non-negative 63-bit value.
func (r *Rand) Int64() int64 { return r.r.Int64() }

// Uniform returns a value in [lo, hi).
func (r *Rand) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*r.r.Float64()
}

// Chance returns true with probability p.
func (r *Rand) Chance(p float64) bool {
	return r.r.Float64() < p
}

// Shuffle permutes n elements with a Fisher-Yates pass from the top index
// down, drawing j uniformly from [0, i].
func (r *Rand) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := r.r.IntN(i + 1)
		swap(i, j)
	}
}

// freshSeed draws a seed from the operating system's entropy pool.
func freshSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return rand.Int64()
	}
	return int64(binary.LittleEndian.Uint64(b[:]) >> 1)
}
