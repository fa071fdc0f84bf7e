// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"github.com/bureau-foundation/ipcbridge/lib/channel"
	"github.com/bureau-foundation/ipcbridge/lib/codec"
)

// frameType identifies a frame on a peer stream.
type frameType uint8

const (
	frameHello frameType = iota + 1
	frameMessage
	frameRequest
	frameResponse
)

// maxPayloadSize bounds the uncompressed size a frame may claim, so a
// corrupt or hostile header cannot make the receiver allocate
// arbitrarily.
const maxPayloadSize = 64 << 20

// frame is the unit of the peer protocol. Which fields are set depends
// on Type:
//
//   - hello: Peer, Version
//   - message: Channel, Payload
//   - request: Channel, ID, Payload
//   - response: ID, and either Payload or Error
//
// Payload holds the channel payload's CBOR bytes, compressed when
// Compression is not none, in which case Size is the uncompressed
// length.
type frame struct {
	Type        frameType         `cbor:"type"`
	Channel     string            `cbor:"channel,omitempty"`
	ID          string            `cbor:"id,omitempty"`
	Payload     []byte            `cbor:"payload,omitempty"`
	Compression codec.Compression `cbor:"compression,omitempty"`
	Size        int               `cbor:"size,omitempty"`
	Error       *frameError       `cbor:"error,omitempty"`
	Peer        string            `cbor:"peer,omitempty"`
	Version     string            `cbor:"version,omitempty"`
}

// Error codes carried in a response frame.
const (
	codeNoResponder = "no-responder"
	codeHandler     = "handler"
)

type frameError struct {
	Code    string `cbor:"code"`
	Message string `cbor:"message"`
}

// responseError converts a response frame's error back into the
// channel error the caller would have seen in-process.
func responseError(channelID string, e *frameError) error {
	switch e.Code {
	case codeNoResponder:
		return &channel.NoResponderError{ChannelID: channelID}
	default:
		return &channel.RemoteError{ChannelID: channelID, Message: e.Message}
	}
}
