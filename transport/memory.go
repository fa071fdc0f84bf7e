// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/ipcbridge/lib/channel"
)

// Compile-time interface check.
var _ Adapter = (*MemoryEndpoint)(nil)

// DeliveryMode selects when a MemoryBridge invokes message handlers.
type DeliveryMode int

const (
	// DeliverSync invokes handlers inline, before SendMessage returns.
	DeliverSync DeliveryMode = iota

	// DeliverAsync queues each delivery until the test calls
	// MessagePropagation or MessagePropagationRecursive.
	DeliverAsync
)

// maxPropagationRounds bounds MessagePropagationRecursive so that two
// handlers that keep answering each other fail the test instead of
// hanging it.
const maxPropagationRounds = 1000

// MemoryBridge connects in-process endpoints for tests. A message sent
// from one involved endpoint reaches the matching listeners of every
// other involved endpoint, never the sender's own. A request is routed
// to the single responder among the other endpoints.
type MemoryBridge struct {
	mode   DeliveryMode
	logger *slog.Logger

	mu        sync.Mutex
	endpoints []*MemoryEndpoint
	pending   []memoryDelivery
}

type memoryDelivery struct {
	channelID string
	payload   []byte
	origin    channel.Origin
	handler   channel.MessageHandler
}

// NewMemoryBridge creates a bridge with no endpoints. A nil logger
// discards handler failures in sync mode.
func NewMemoryBridge(mode DeliveryMode, logger *slog.Logger) *MemoryBridge {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MemoryBridge{mode: mode, logger: logger}
}

// Involve wires endpoints into the bridge. Listeners enlisted before or
// after involvement are both reachable. Involving an endpoint that
// already belongs to another bridge panics.
func (b *MemoryBridge) Involve(endpoints ...*MemoryEndpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, endpoint := range endpoints {
		endpoint.mu.Lock()
		current := endpoint.bridge
		if current == nil {
			endpoint.bridge = b
		}
		endpoint.mu.Unlock()

		switch current {
		case nil:
			b.endpoints = append(b.endpoints, endpoint)
		case b:
		default:
			panic(fmt.Sprintf("transport: endpoint %q is already involved in another bridge", endpoint.name))
		}
	}
}

// PendingDeliveries returns the number of queued deliveries.
func (b *MemoryBridge) PendingDeliveries() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// MessagePropagation performs one round of queued deliveries: every
// delivery queued before the call. Deliveries queued by the handlers it
// runs wait for the next round. Returns the joined handler errors.
func (b *MemoryBridge) MessagePropagation() error {
	b.mu.Lock()
	round := b.pending
	b.pending = nil
	b.mu.Unlock()

	var errs []error
	for _, delivery := range round {
		if err := delivery.handler(delivery.payload, delivery.origin); err != nil {
			errs = append(errs, fmt.Errorf("delivering on channel %q: %w", delivery.channelID, err))
		}
	}
	return errors.Join(errs...)
}

// MessagePropagationRecursive runs propagation rounds until nothing is
// queued, including deliveries triggered by earlier rounds.
func (b *MemoryBridge) MessagePropagationRecursive() error {
	var errs []error
	for round := 0; b.PendingDeliveries() > 0; round++ {
		if round == maxPropagationRounds {
			errs = append(errs, fmt.Errorf("deliveries still queued after %d propagation rounds", maxPropagationRounds))
			break
		}
		if err := b.MessagePropagation(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// others returns every involved endpoint except from.
func (b *MemoryBridge) others(from *MemoryEndpoint) []*MemoryEndpoint {
	b.mu.Lock()
	defer b.mu.Unlock()

	others := make([]*MemoryEndpoint, 0, len(b.endpoints))
	for _, endpoint := range b.endpoints {
		if endpoint != from {
			others = append(others, endpoint)
		}
	}
	return others
}

func (b *MemoryBridge) deliver(from *MemoryEndpoint, channelID string, payload []byte) {
	origin := channel.Origin{Peer: from.name}

	var deliveries []memoryDelivery
	for _, endpoint := range b.others(from) {
		for _, handler := range endpoint.registry.messageHandlers(channelID) {
			deliveries = append(deliveries, memoryDelivery{
				channelID: channelID,
				payload:   payload,
				origin:    origin,
				handler:   handler,
			})
		}
	}

	if b.mode == DeliverAsync {
		b.mu.Lock()
		b.pending = append(b.pending, deliveries...)
		b.mu.Unlock()
		return
	}

	for _, delivery := range deliveries {
		if err := delivery.handler(delivery.payload, delivery.origin); err != nil {
			b.logger.Warn("message handler failed",
				"channel", channelID,
				"from", from.name,
				"error", err,
			)
		}
	}
}

func (b *MemoryBridge) request(ctx context.Context, from *MemoryEndpoint, channelID string, payload []byte) ([]byte, error) {
	var handlers []channel.RequestHandler
	for _, endpoint := range b.others(from) {
		if handler, ok := endpoint.registry.responder(channelID); ok {
			handlers = append(handlers, handler)
		}
	}

	switch len(handlers) {
	case 0:
		return nil, &channel.NoResponderError{ChannelID: channelID}
	case 1:
	default:
		return nil, &channel.MultipleRespondersError{ChannelID: channelID, Count: len(handlers)}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	response, err := handlers[0](ctx, payload)
	if err != nil {
		return nil, &channel.RemoteError{ChannelID: channelID, Message: err.Error()}
	}
	return response, nil
}

// MemoryEndpoint is one context's side of a MemoryBridge. It satisfies
// Adapter, so code under test cannot tell it from a Peer.
type MemoryEndpoint struct {
	name     string
	registry *registry

	mu     sync.Mutex
	bridge *MemoryBridge
}

// NewMemoryEndpoint creates an endpoint named name. The name is what
// receivers see in channel.Origin.Peer.
func NewMemoryEndpoint(name string) *MemoryEndpoint {
	return &MemoryEndpoint{name: name, registry: newRegistry()}
}

// Name returns the endpoint's name.
func (e *MemoryEndpoint) Name() string { return e.name }

func (e *MemoryEndpoint) currentBridge() *MemoryBridge {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bridge
}

func (e *MemoryEndpoint) EnlistMessage(listener channel.MessageListener) (Disposer, error) {
	return e.registry.enlistMessage(listener)
}

func (e *MemoryEndpoint) EnlistRequest(listener channel.RequestListener) (Disposer, error) {
	return e.registry.enlistRequest(listener)
}

// SendMessage delivers payload to the other endpoints. An endpoint that
// has not been involved drops the message.
func (e *MemoryEndpoint) SendMessage(channelID string, payload []byte) {
	if bridge := e.currentBridge(); bridge != nil {
		bridge.deliver(e, channelID, payload)
	}
}

// Request calls the single responder for channelID among the other
// endpoints. The responder runs on the calling goroutine.
func (e *MemoryEndpoint) Request(ctx context.Context, channelID string, payload []byte) ([]byte, error) {
	bridge := e.currentBridge()
	if bridge == nil {
		return nil, &channel.NoResponderError{ChannelID: channelID}
	}
	return bridge.request(ctx, e, channelID, payload)
}
