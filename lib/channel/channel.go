// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import "fmt"

// Kind discriminates the two channel variants.
type Kind uint8

const (
	// KindMessage is a fire-and-forget, multicast channel.
	KindMessage Kind = iota + 1
	// KindRequest is a single-responder call/response channel.
	KindRequest
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindRequest:
		return "request"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Descriptor is the runtime view of a channel: its id and its kind.
type Descriptor interface {
	ID() string
	Kind() Kind
}

// MessageChannel describes a message channel carrying values of type T.
type MessageChannel[T any] struct {
	id string
}

// Message returns the descriptor for the message channel id.
func Message[T any](id string) MessageChannel[T] {
	return MessageChannel[T]{id: id}
}

func (c MessageChannel[T]) ID() string     { return c.id }
func (c MessageChannel[T]) Kind() Kind     { return KindMessage }
func (c MessageChannel[T]) String() string { return "message:" + c.id }

// RequestChannel describes a request channel taking Req and answering
// with Res.
type RequestChannel[Req, Res any] struct {
	id string
}

// Request returns the descriptor for the request channel id.
func Request[Req, Res any](id string) RequestChannel[Req, Res] {
	return RequestChannel[Req, Res]{id: id}
}

func (c RequestChannel[Req, Res]) ID() string     { return c.id }
func (c RequestChannel[Req, Res]) Kind() Kind     { return KindRequest }
func (c RequestChannel[Req, Res]) String() string { return "request:" + c.id }

// Empty is the request type of channels that take no input. Use [Fetch]
// to call them.
type Empty struct{}

// Same reports whether a and b name the same channel.
func Same(a, b Descriptor) bool {
	return a.Kind() == b.Kind() && a.ID() == b.ID()
}
