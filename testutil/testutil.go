// Package testutil provides deterministic random data generators for tests
// and benchmarks.
package testutil

import (
	"math/rand"
	"sync"

	"github.com/hupe1980/gradtape/model"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Coeff returns a pseudo-random partial derivative in [-1,1), excluding 0.
func (r *RNG) Coeff() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		c := r.rand.Float64()*2 - 1
		if c != 0 {
			return c
		}
	}
}

// Coeffs returns n pseudo-random partial derivatives.
func (r *RNG) Coeffs(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = r.Coeff()
	}
	return out
}

// Entries builds n Jacobian entries with random coefficients against
// identifiers drawn from ids.
func (r *RNG) Entries(n int, ids []model.Identifier) []model.JacobianEntry {
	out := make([]model.JacobianEntry, n)
	for i := range out {
		out[i] = model.JacobianEntry{
			Coeff: r.Coeff(),
			ID:    ids[r.Intn(len(ids))],
		}
	}
	return out
}

// Bytes returns n pseudo-random bytes.
func (r *RNG) Bytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]byte, n)
	_, _ = r.rand.Read(out)
	return out
}
