// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction.
//
// Peers take a Clock for request deadlines and handshake timeouts. In
// production, Real() provides the standard library behavior. In tests,
// Fake() provides a clock that advances only when Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go func() { _, err = peer.Request(ctx, "slow-channel", nil) }()
//	c.WaitForTimers(1)         // the request registered its deadline
//	c.Advance(30 * time.Second) // the request now times out
package clock
