// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"

	"github.com/bureau-foundation/ipcbridge/lib/channel"
)

// Adapter is the boundary between channel semantics and whatever moves
// bytes between contexts. Implementations must be safe for concurrent
// use.
type Adapter interface {
	channel.MessageSender
	channel.Requester

	// EnlistMessage registers listener for messages arriving on its
	// channel. Returns a *channel.DuplicateListenerError if a listener
	// with the same id is already enlisted.
	EnlistMessage(listener channel.MessageListener) (Disposer, error)

	// EnlistRequest registers listener as the responder of its
	// channel. Returns a *channel.DuplicateResponderError if the
	// channel already has a responder on this side.
	EnlistRequest(listener channel.RequestListener) (Disposer, error)
}

// Disposer removes the registration that produced it. Calling it more
// than once has no further effect.
type Disposer func()

var (
	// ErrPeerClosed is returned by requests that were pending, or
	// issued, after the peer connection closed.
	ErrPeerClosed = errors.New("transport: peer closed")

	// ErrRequestTimeout is returned by a request that received no
	// response within the configured request timeout.
	ErrRequestTimeout = errors.New("transport: request timed out")
)
