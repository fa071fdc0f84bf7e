// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries channel traffic between the host context
// and its client contexts.
//
// The package defines one interface, [Adapter], with the four
// primitives every higher layer is built on: enlisting a message
// listener, enlisting the responder of a request channel, sending a
// message, and performing a request. Enlistment returns a [Disposer]
// that removes exactly the registration it created.
//
// The production implementation, [Peer], runs the channel protocol over
// one persistent bidirectional stream (a unix socket or a TCP
// connection). Both ends exchange a hello frame announcing their name
// and build version, then multiplex CBOR frames: messages are
// fire-and-forget, requests carry a correlation id that the matching
// response echoes. Payloads above a configurable size are compressed
// with LZ4 or Zstandard. A request whose channel has no responder on
// the receiving side is answered with a no-responder error rather than
// left pending. [Listen] and [Dial] establish the stream; on Linux the
// listener reads the connecting process's credentials and can refuse
// connections from other users.
//
// [MemoryBridge] is an in-process stand-in for tests. It wires several
// [MemoryEndpoint] values together so that a message sent from one
// reaches the matching listeners of every other endpoint, either inline
// or queued until the test calls [MemoryBridge.MessagePropagation].
package transport
