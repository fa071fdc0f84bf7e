// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package computed

import "sync"

// Source is a value that can be read and watched.
type Source[T any] interface {
	// Get returns the current value.
	Get() T

	// Subscribe calls fn after every change. With fireImmediately, fn
	// is also called with the current value before Subscribe returns.
	// The returned function cancels the subscription.
	Subscribe(fireImmediately bool, fn func(T)) (cancel func())
}

// Compile-time interface check.
var _ Source[int] = (*Value[int])(nil)

// Value is an owned observable value. Notifications are delivered in
// order: a subscriber sees every Set exactly once, in the order the Sets
// happened. Subscribers must not call Set on the Value that notified
// them.
type Value[T any] struct {
	// notifyMu serializes Set and the immediate delivery of Subscribe,
	// so subscribers never see values out of order.
	notifyMu sync.Mutex

	mu          sync.Mutex
	current     T
	nextID      uint64
	subscribers map[uint64]func(T)
}

// NewValue returns a Value holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{current: initial, subscribers: make(map[uint64]func(T))}
}

func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set replaces the value and notifies every subscriber.
func (v *Value[T]) Set(value T) {
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()
	v.publish(func(T) T { return value })
}

// Update replaces the value with change applied to the current one,
// atomically with respect to other Sets and Updates. change must not
// call back into the Value.
func (v *Value[T]) Update(change func(T) T) {
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()
	v.publish(change)
}

// publish must be called with notifyMu held.
func (v *Value[T]) publish(change func(T) T) {
	v.mu.Lock()
	v.current = change(v.current)
	value := v.current
	subscribers := make([]func(T), 0, len(v.subscribers))
	for _, fn := range v.subscribers {
		subscribers = append(subscribers, fn)
	}
	v.mu.Unlock()

	for _, fn := range subscribers {
		fn(value)
	}
}

func (v *Value[T]) Subscribe(fireImmediately bool, fn func(T)) (cancel func()) {
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()

	v.mu.Lock()
	v.nextID++
	id := v.nextID
	v.subscribers[id] = fn
	current := v.current
	v.mu.Unlock()

	if fireImmediately {
		fn(current)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.subscribers, id)
			v.mu.Unlock()
		})
	}
}
