// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package computed mirrors a value owned by one context into the other
// contexts that observe it.
//
// The owning side wraps the value in a [Source] (usually a [Value]) and
// registers a [NewChannelObserver] for it in an [ObserverSet]. A
// [Publisher] listens on the administration channel. When an observing
// side announces that a channel became observed, the Publisher starts a
// push loop for it: the current value is sent immediately and every
// later change is sent as it happens, skipping values whose encoding is
// identical to the last one pushed. When the channel becomes unobserved
// the loop stops.
//
// The observing side holds a [Proxy] seeded with a pending value. The
// Proxy counts its observers. The first Observe resets the value to
// pending and announces "became-observed"; the last stop resets it again
// and announces "became-unobserved". Pushes arriving while nobody
// observes are ignored, and reading the value outside observation fails
// with [ErrUnobservedRead] rather than returning something stale.
//
// At most one observer may exist per channel id. [ObserverSet.Guard]
// reports every id registered more than once and keeps rejecting
// duplicate registrations for as long as it runs.
package computed
