// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"

	"github.com/bureau-foundation/ipcbridge/lib/codec"
)

// Origin describes where a delivered message came from. Peer is the
// name the sending context announced when the transport connected.
type Origin struct {
	Peer string
}

// MessageHandler handles one encoded message. A returned error means
// the payload could not be decoded; transports log it and move on.
type MessageHandler func(payload []byte, origin Origin) error

// RequestHandler answers one encoded request with an encoded response.
type RequestHandler func(ctx context.Context, payload []byte) ([]byte, error)

// MessageListener binds a handler to a message channel. Several
// listeners may share a channel as long as their IDs differ.
type MessageListener struct {
	ID      string
	Channel Descriptor
	Handler MessageHandler
}

// Key is the identity used when reconciling declared listeners with
// live enlistments: the listener id, since a message channel has many.
func (l MessageListener) Key() string { return l.ID }

// RequestListener binds the single responder of a request channel.
type RequestListener struct {
	Channel Descriptor
	Handler RequestHandler
}

// Key is the identity used when reconciling declared responders with
// live enlistments: the channel id, since a request channel has one.
func (l RequestListener) Key() string { return l.Channel.ID() }

// ListenerID derives the enlisted id of a message listener from its
// channel and the short id its feature gave it.
func ListenerID(channelID, id string) string {
	return channelID + "-message-listener-" + id
}

// NewMessageListener returns a listener that decodes each message on
// ch as T before calling handle.
func NewMessageListener[T any](ch MessageChannel[T], id string, handle func(message T, origin Origin)) MessageListener {
	channelID := ch.ID()
	return MessageListener{
		ID:      ListenerID(channelID, id),
		Channel: ch,
		Handler: func(payload []byte, origin Origin) error {
			var message T
			if err := codec.DecodePayload(channelID, payload, &message); err != nil {
				return err
			}
			handle(message, origin)
			return nil
		},
	}
}

// NewRequestListener returns the responder for ch. handle may block;
// the caller on the other side waits for it.
func NewRequestListener[Req, Res any](ch RequestChannel[Req, Res], handle func(ctx context.Context, request Req) (Res, error)) RequestListener {
	channelID := ch.ID()
	return RequestListener{
		Channel: ch,
		Handler: func(ctx context.Context, payload []byte) ([]byte, error) {
			var request Req
			if len(payload) > 0 {
				if err := codec.DecodePayload(channelID, payload, &request); err != nil {
					return nil, err
				}
			}
			response, err := handle(ctx, request)
			if err != nil {
				return nil, err
			}
			return codec.EncodePayload(channelID, response)
		},
	}
}
