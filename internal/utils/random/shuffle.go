package random

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// intn returns a uniform random integer in [0, n) from crypto/rand.
func intn(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("failed to generate random number: %w", err)
	}
	return int(v.Int64()), nil
}

// Shuffle performs an unbiased Fisher-Yates shuffle of the slice in place.
func Shuffle[T any](slice []T) error {
	for i := len(slice) - 1; i > 0; i-- {
		j, err := intn(i + 1)
		if err != nil {
			return err
		}
		slice[i], slice[j] = slice[j], slice[i]
	}
	return nil
}

// Sample returns up to count elements drawn uniformly without replacement.
// The input slice is never modified.
func Sample[T any](items []T, count int) ([]T, error) {
	if count <= 0 || len(items) == 0 {
		return []T{}, nil
	}
	pool := make([]T, len(items))
	copy(pool, items)
	if err := Shuffle(pool); err != nil {
		return nil, err
	}
	if count > len(pool) {
		count = len(pool)
	}
	return pool[:count], nil
}
