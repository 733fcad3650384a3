// Package signal provides process-wide observable values.
package signal

import "sync"

// Value holds a value of type T and notifies subscribers when it changes.
// Subscribers are invoked synchronously on the goroutine calling Set, in
// subscription order, and must not call Set on the same Value.
type Value[T any] struct {
	mu     sync.Mutex
	notify sync.Mutex
	value  T
	equal  func(a, b T) bool
	nextID int
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// New constructs a Value. equal decides whether Set is a change; nil treats
// every Set as a change.
func New[T any](initial T, equal func(a, b T) bool) *Value[T] {
	return &Value[T]{value: initial, equal: equal}
}

// NewComparable constructs a Value for comparable types using ==.
func NewComparable[T comparable](initial T) *Value[T] {
	return New(initial, func(a, b T) bool { return a == b })
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

// Set stores value and notifies subscribers if it differs from the current one.
// It reports whether a change was published.
func (v *Value[T]) Set(value T) bool {
	v.notify.Lock()
	defer v.notify.Unlock()

	v.mu.Lock()
	if v.equal != nil && v.equal(v.value, value) {
		v.mu.Unlock()
		return false
	}
	v.value = value
	subs := append([]subscriber[T](nil), v.subs...)
	v.mu.Unlock()

	for _, sub := range subs {
		sub.fn(value)
	}
	return true
}

// Subscribe registers fn and immediately delivers the current value to it.
// The returned func removes the subscription.
func (v *Value[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	v.notify.Lock()
	defer v.notify.Unlock()

	v.mu.Lock()
	v.nextID++
	id := v.nextID
	v.subs = append(v.subs, subscriber[T]{id: id, fn: fn})
	current := v.value
	v.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			for i, sub := range v.subs {
				if sub.id == id {
					v.subs = append(v.subs[:i], v.subs[i+1:]...)
					return
				}
			}
		})
	}
}
