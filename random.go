package luckydraw

import (
	"crypto/rand"
	"math/big"
	"time"
)

// RandFunc produces a uniform random float in [0, 1).
// The selector consumes exactly one value per non-forced draw slot, which
// makes the whole selection deterministic for a fixed value sequence.
type RandFunc func() float64

// SecureRandomGenerator implements secure random number generation using crypto/rand
type SecureRandomGenerator struct{}

// NewSecureRandomGenerator creates a new secure random generator
func NewSecureRandomGenerator() *SecureRandomGenerator {
	return &SecureRandomGenerator{}
}

// GenerateFloat generates a secure random float between 0 and 1 (exclusive of 1)
func (g *SecureRandomGenerator) GenerateFloat() (float64, error) {
	// Generate a random 64-bit integer
	randomBig, err := rand.Int(rand.Reader, big.NewInt(1<<53)) // Use 53 bits for precision
	if err != nil {
		return 0, err
	}

	// Convert to float64 and normalize to [0, 1)
	result := float64(randomBig.Int64()) / float64(1<<53)
	return result, nil
}

// GenerateInRange generates a secure random number within [min, max] (inclusive)
func (g *SecureRandomGenerator) GenerateInRange(min, max int) (int, error) {
	if min > max {
		return 0, ErrInvalidParameters
	}

	// Handle edge case where min == max
	if min == max {
		return min, nil
	}

	rangeSize := max - min + 1
	randomBig, err := rand.Int(rand.Reader, big.NewInt(int64(rangeSize)))
	if err != nil {
		return 0, err
	}

	return int(randomBig.Int64()) + min, nil
}

// RandFunc adapts the generator to the RandFunc signature.
// If crypto/rand fails it falls back to a timestamp-derived value so a draw
// never blocks on the entropy source.
func (g *SecureRandomGenerator) RandFunc() RandFunc {
	return func() float64 {
		v, err := g.GenerateFloat()
		if err != nil {
			return float64(time.Now().UnixNano()%1_000_000_000) / 1_000_000_000
		}
		return v
	}
}

// SecureRand returns a RandFunc backed by crypto/rand
func SecureRand() RandFunc {
	return NewSecureRandomGenerator().RandFunc()
}
