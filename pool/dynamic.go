package pool

import "sync"

// Dynamic is an unbounded pool backed by sync.Pool. Get never blocks.
// It suits scratch buffers whose count is bounded by something else
// (for example the number of compression workers).
type Dynamic[T any] struct {
	p sync.Pool
}

func NewDynamic[T any](newFn func() T) *Dynamic[T] {
	return &Dynamic[T]{p: sync.Pool{New: func() interface{} { return newFn() }}}
}

func (d *Dynamic[T]) Get() T { return d.p.Get().(T) }

func (d *Dynamic[T]) Put(el T) { d.p.Put(el) }
