// Package uncomparable contains a map keyed by values of type [any] that do
// not need to be [comparable], such as key tuples holding slices. Keys are
// bucketed by the given hasher and resolved with the given comparer, which
// returns an error instead of panicking.
package uncomparable

import (
	"iter"
	"slices"

	"github.com/nestdb/nestdb/domain"
)

// Map represents a map[K]T where K does not need to be [comparable].
type Map[T any] struct {
	buckets  [][]kv[T]
	hasher   domain.Hasher
	comparer domain.Comparer
	length   int
}

type kv[T any] struct {
	key   any
	value T
}

// New returns a new instance of [Map] with the given [domain.Hasher] and
// [domain.Comparer].
func New[T any](hasher domain.Hasher, comparer domain.Comparer) *Map[T] {
	return &Map[T]{
		buckets:  make([][]kv[T], 8),
		hasher:   hasher,
		comparer: comparer,
	}
}

func (m *Map[T]) bucketIndex(key any) (uint64, error) {
	h, err := m.hasher.Hash(key)
	if err != nil {
		return 0, err
	}
	return h % uint64(len(m.buckets)), nil
}

// Get returns the value for the given key with a bool indicating whether it
// exists in the map. If hash or comparison fails, returns an error.
func (m *Map[T]) Get(key any) (T, bool, error) {
	n, err := m.bucketIndex(key)
	if err != nil {
		return *new(T), false, err
	}
	for _, entry := range m.buckets[n] {
		c, err := m.comparer.Compare(key, entry.key)
		if err != nil {
			return *new(T), false, err
		}
		if c == 0 {
			return entry.value, true, nil
		}
	}
	return *new(T), false, nil
}

// Set adds or replaces the given key in the map, returning error on hash or
// comparison failure.
func (m *Map[T]) Set(key any, value T) error {
	n, err := m.bucketIndex(key)
	if err != nil {
		return err
	}
	bucket := m.buckets[n]
	for i, entry := range bucket {
		c, err := m.comparer.Compare(key, entry.key)
		if err != nil {
			return err
		}
		if c == 0 {
			bucket[i] = kv[T]{key: key, value: value}
			return nil
		}
	}
	m.buckets[n] = append(bucket, kv[T]{key: key, value: value})
	m.length++
	return nil
}

// Delete removes a given key from the map, if it exists. If the given key
// could not be hashed or some comparison failed, it returns the error.
func (m *Map[T]) Delete(key any) error {
	n, err := m.bucketIndex(key)
	if err != nil {
		return err
	}
	bucket := m.buckets[n]
	for i, entry := range bucket {
		c, err := m.comparer.Compare(key, entry.key)
		if err != nil {
			return err
		}
		if c == 0 {
			m.length--
			m.buckets[n] = slices.Delete(bucket, i, i+1)
			return nil
		}
	}
	return nil
}

// Len returns the amount of stored values.
func (m *Map[T]) Len() int {
	return m.length
}

// Keys returns an unordered [iter.Seq] over the stored keys.
func (m *Map[T]) Keys() iter.Seq[any] {
	return func(yield func(any) bool) {
		for _, bucket := range m.buckets {
			for _, entry := range bucket {
				if !yield(entry.key) {
					return
				}
			}
		}
	}
}

// Values returns an unordered [iter.Seq] over the stored values.
func (m *Map[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, bucket := range m.buckets {
			for _, entry := range bucket {
				if !yield(entry.value) {
					return
				}
			}
		}
	}
}

// Iter returns an unordered [iter.Seq2] over the key+value pairs.
func (m *Map[T]) Iter() iter.Seq2[any, T] {
	return func(yield func(any, T) bool) {
		for _, bucket := range m.buckets {
			for _, entry := range bucket {
				if !yield(entry.key, entry.value) {
					return
				}
			}
		}
	}
}
