// Package pool provides the buffer pools used between the reader and its
// downstream consumers.
package pool

// Pool is an interface that defines methods on a pool of reusable elements.
type Pool[T any] interface {
	// Get returns an element from the pool.
	Get() T

	// Put returns an element back to the pool.
	Put(T)
}
