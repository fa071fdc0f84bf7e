// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"errors"
	"fmt"
)

// ErrNoResponder matches (via errors.Is) every *NoResponderError. It is
// the one failure in this package that callers are expected to handle
// at runtime rather than treat as a wiring bug.
var ErrNoResponder = errors.New("no responder enlisted")

// NoResponderError is returned by a request when nothing on the other
// side answers ChannelID.
type NoResponderError struct {
	ChannelID string
}

func (e *NoResponderError) Error() string {
	return fmt.Sprintf("request on channel %q: no responder is enlisted", e.ChannelID)
}

func (e *NoResponderError) Is(target error) bool { return target == ErrNoResponder }

// MultipleRespondersError is returned by a request when the transport
// finds more than one responder for ChannelID. This violates the
// single-responder contract and is never retried.
type MultipleRespondersError struct {
	ChannelID string
	Count     int
}

func (e *MultipleRespondersError) Error() string {
	return fmt.Sprintf("request on channel %q: %d responders are enlisted, expected exactly one", e.ChannelID, e.Count)
}

// DuplicateListenerError is returned when a message listener id is
// enlisted while a listener with the same id is live.
type DuplicateListenerError struct {
	ChannelID  string
	ListenerID string
}

func (e *DuplicateListenerError) Error() string {
	return fmt.Sprintf("message listener %q on channel %q is already enlisted", e.ListenerID, e.ChannelID)
}

// DuplicateResponderError is returned when a second responder is
// enlisted for a request channel that already has one.
type DuplicateResponderError struct {
	ChannelID string
}

func (e *DuplicateResponderError) Error() string {
	return fmt.Sprintf("request channel %q already has a responder", e.ChannelID)
}

// RemoteError carries a failure returned by the responding handler.
type RemoteError struct {
	ChannelID string
	Message   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("responder for channel %q failed: %s", e.ChannelID, e.Message)
}
