// Package hasher contains the default [domain.Hasher] implementation.
package hasher

import (
	"encoding/json"
	"hash/fnv"

	"github.com/nestdb/nestdb/domain"
)

// Hasher implements domain.Hasher by hashing the canonical JSON form of a
// value. Maps marshal with sorted keys, so equal documents hash equal.
type Hasher struct{}

// NewHasher returns a new implementation of domain.Hasher.
func NewHasher() domain.Hasher {
	return &Hasher{}
}

// Hash implements domain.Hasher.
func (h *Hasher) Hash(a any) (uint64, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return 0, err
	}
	hasher := fnv.New64a()
	if _, err = hasher.Write(b); err != nil {
		return 0, err
	}
	return hasher.Sum64(), nil
}
