// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// Fataler is the part of testing.TB the wait helpers need.
type Fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive returns the next value from ch, failing the test if
// ch is closed or nothing arrives within timeout.
//
//	reply := testutil.RequireReceive(t, replies, 5*time.Second, "reply on %s", channelID)
func RequireReceive[T any](t Fataler, ch <-chan T, timeout time.Duration, what ...any) T {
	t.Helper()
	timer := time.NewTimer(timeout) //nolint:realclock test hang prevention
	defer timer.Stop()
	select {
	case v, ok := <-ch:
		if ok {
			return v
		}
		t.Fatalf("%s: channel closed before a value arrived", describe(what))
	case <-timer.C:
		t.Fatalf("%s: nothing received within %v", describe(what), timeout)
	}
	var zero T
	return zero
}

// RequireClosed waits for a done-style channel to close, failing the
// test after timeout. A value sent on ch also satisfies it.
//
//	testutil.RequireClosed(t, peer.Done(), 5*time.Second, "peer shutdown")
func RequireClosed(t Fataler, ch <-chan struct{}, timeout time.Duration, what ...any) {
	t.Helper()
	timer := time.NewTimer(timeout) //nolint:realclock test hang prevention
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
		t.Fatalf("%s: still open after %v", describe(what), timeout)
	}
}

// RequireNoReceive fails the test if ch yields a value or closes within
// quiet. Use it to check that a listener was not invoked.
//
//	testutil.RequireNoReceive(t, received, 50*time.Millisecond, "unsubscribed listener")
func RequireNoReceive[T any](t Fataler, ch <-chan T, quiet time.Duration, what ...any) {
	t.Helper()
	timer := time.NewTimer(quiet) //nolint:realclock bounded wait for absence
	defer timer.Stop()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("%s: channel closed unexpectedly", describe(what))
			return
		}
		t.Fatalf("%s: unexpected value %v", describe(what), v)
	case <-timer.C:
	}
}

// describe renders the optional trailing arguments of the helpers: a
// plain string, a format string with arguments, or anything else.
func describe(what []any) string {
	switch {
	case len(what) == 0:
		return "wait"
	case len(what) == 1:
		return fmt.Sprint(what[0])
	}
	if format, ok := what[0].(string); ok {
		return fmt.Sprintf(format, what[1:]...)
	}
	return fmt.Sprint(what...)
}
