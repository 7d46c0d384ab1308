package pool

// Fixed is a bounded pool. It lazily creates up to capacity elements via
// newFn; once all of them are handed out, Get blocks until one is Put back.
// This is the backpressure point between a producer and slower consumers.
type Fixed[T any] struct {
	available chan T
	// tokens counts created elements; a successful send reserves a creation.
	tokens chan struct{}
	newFn  func() T
}

func NewFixed[T any](capacity uint, newFn func() T) *Fixed[T] {
	return &Fixed[T]{
		available: make(chan T, capacity),
		tokens:    make(chan struct{}, capacity),
		newFn:     newFn,
	}
}

// Get returns an idle element, creates a new one while under capacity,
// or blocks until an element is returned.
func (p *Fixed[T]) Get() T {
	select {
	case el := <-p.available:
		return el
	default:
	}

	select {
	case p.tokens <- struct{}{}:
		return p.newFn()
	default:
	}

	return <-p.available
}

// Put returns el to the pool. Putting more elements than were obtained
// from Get blocks.
func (p *Fixed[T]) Put(el T) {
	p.available <- el
}

// Capacity reports the maximum number of elements the pool hands out.
func (p *Fixed[T]) Capacity() uint { return uint(cap(p.tokens)) }

// Created reports how many elements have been created so far.
func (p *Fixed[T]) Created() uint { return uint(len(p.tokens)) }
