// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"

	"github.com/bureau-foundation/ipcbridge/lib/codec"
)

// MessageSender delivers an encoded message to the other side, best
// effort. It never blocks on the receiver and never reports whether
// anything was listening.
type MessageSender interface {
	SendMessage(channelID string, payload []byte)
}

// Requester performs an encoded request against the single responder
// on the other side.
type Requester interface {
	Request(ctx context.Context, channelID string, payload []byte) ([]byte, error)
}

// Send encodes message and hands it to sender. The only error is a
// *codec.PayloadError for a value that cannot cross the boundary;
// having no listeners on the other side is not an error.
func Send[T any](sender MessageSender, ch MessageChannel[T], message T) error {
	payload, err := codec.EncodePayload(ch.ID(), message)
	if err != nil {
		return err
	}
	sender.SendMessage(ch.ID(), payload)
	return nil
}

// Call sends request on ch and waits for the response. It blocks until
// the responder answers, ctx is done, or the transport gives up.
func Call[Req, Res any](ctx context.Context, requester Requester, ch RequestChannel[Req, Res], request Req) (Res, error) {
	var response Res

	payload, err := codec.EncodePayload(ch.ID(), request)
	if err != nil {
		return response, err
	}

	raw, err := requester.Request(ctx, ch.ID(), payload)
	if err != nil {
		return response, err
	}

	if len(raw) > 0 {
		if err := codec.DecodePayload(ch.ID(), raw, &response); err != nil {
			return response, err
		}
	}
	return response, nil
}

// Fetch calls a request channel that takes no input.
func Fetch[Res any](ctx context.Context, requester Requester, ch RequestChannel[Empty, Res]) (Res, error) {
	return Call(ctx, requester, ch, Empty{})
}
