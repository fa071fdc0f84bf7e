// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] bound every wait on a bridge
// event with a wall-clock timeout so a lost message fails the test
// instead of hanging it. [RequireNoReceive] is the converse and checks
// that nothing arrives during a short quiet period. These are the only
// wall-clock waits in the test suite; request deadlines in tests go
// through a fake clock.
//
// [Collector] records values handed to a callback on another goroutine
// and lets the test wait for them one at a time.
//
// [SocketDir] and [SocketPath] place unix sockets under /tmp, since
// socket paths are limited to 108 bytes and test temp directories can
// be nested deeper than that.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation, such as listener ids and endpoint names.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
