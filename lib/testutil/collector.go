// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"sync"
	"time"
)

// Collector records values delivered to a callback, typically a
// message handler running on another goroutine, and lets the test wait
// for them in order.
//
//	received := testutil.NewCollector[string]()
//	listener := channel.NewMessageListener(ch, "test", func(v string, _ channel.Origin) { received.Add(v) })
//	...
//	got := received.Next(t, 5*time.Second, "waiting for message")
type Collector[T any] struct {
	mu     sync.Mutex
	values []T
	stream chan T
}

// NewCollector returns an empty Collector.
func NewCollector[T any]() *Collector[T] {
	return &Collector[T]{stream: make(chan T, 1024)}
}

// Add records v. It never blocks the caller as long as fewer than 1024
// values are waiting to be consumed by Next.
func (c *Collector[T]) Add(v T) {
	c.mu.Lock()
	c.values = append(c.values, v)
	c.mu.Unlock()
	select {
	case c.stream <- v:
	default:
	}
}

// Values returns every value recorded so far.
func (c *Collector[T]) Values() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.values...)
}

// Len returns how many values have been recorded.
func (c *Collector[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

// Next waits for the next value not yet returned by Next.
func (c *Collector[T]) Next(t Fataler, timeout time.Duration, what ...any) T {
	t.Helper()
	return RequireReceive[T](t, c.stream, timeout, what...)
}

// Quiet fails the test if a value not yet returned by Next arrives
// within d.
func (c *Collector[T]) Quiet(t Fataler, d time.Duration, what ...any) {
	t.Helper()
	RequireNoReceive[T](t, c.stream, d, what...)
}
