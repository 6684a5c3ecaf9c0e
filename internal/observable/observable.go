// Package observable provides values that notify their consumers on every update.
package observable

import "sync"

// Producer is anything consumers can be connected to
type Producer[T any] interface {
	Connect(fn func(T))
}

// Value holds the latest value and fans every Set out to connected consumers
type Value[T any] struct {
	mu        sync.RWMutex
	v         T
	set       bool
	consumers []func(T)
}

// NewValue creates an empty value
func NewValue[T any]() *Value[T] {
	return &Value[T]{}
}

// Set stores x and notifies every consumer, in connection order
func (o *Value[T]) Set(x T) {
	o.mu.Lock()
	o.v = x
	o.set = true
	consumers := o.consumers
	o.mu.Unlock()

	for _, fn := range consumers {
		fn(x)
	}
}

// Get returns the latest value and whether one was ever set
func (o *Value[T]) Get() (T, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.v, o.set
}

// Connect registers fn for every subsequent Set
func (o *Value[T]) Connect(fn func(T)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.consumers = append(o.consumers[:len(o.consumers):len(o.consumers)], fn)
}

// Map returns a value that follows src through fn
func Map[S, T any](src Producer[S], fn func(S) T) *Value[T] {
	out := NewValue[T]()
	src.Connect(func(s S) {
		out.Set(fn(s))
	})
	return out
}

// Linear returns a value that follows src as multiplier*x + offset
func Linear(src Producer[float64], multiplier, offset float64) *Value[float64] {
	return Map(src, func(x float64) float64 {
		return multiplier*x + offset
	})
}
