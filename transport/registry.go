// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bureau-foundation/ipcbridge/lib/channel"
)

// registry holds the listeners enlisted on one side of a connection.
// Both Peer and MemoryEndpoint delegate to it. Each enlistment gets a
// sequence number so that a stale Disposer never removes a newer
// registration that reused the same key.
type registry struct {
	mu         sync.RWMutex
	sequence   uint64
	messages   map[string]messageEntry
	responders map[string]responderEntry
}

type messageEntry struct {
	sequence uint64
	listener channel.MessageListener
}

type responderEntry struct {
	sequence uint64
	listener channel.RequestListener
}

func newRegistry() *registry {
	return &registry{
		messages:   make(map[string]messageEntry),
		responders: make(map[string]responderEntry),
	}
}

func (r *registry) enlistMessage(listener channel.MessageListener) (Disposer, error) {
	if listener.Channel == nil || listener.Handler == nil {
		return nil, fmt.Errorf("message listener %q: channel and handler are required", listener.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.messages[listener.ID]; exists {
		return nil, &channel.DuplicateListenerError{ChannelID: listener.Channel.ID(), ListenerID: listener.ID}
	}
	r.sequence++
	sequence := r.sequence
	r.messages[listener.ID] = messageEntry{sequence: sequence, listener: listener}

	return r.disposer(func() {
		if entry, ok := r.messages[listener.ID]; ok && entry.sequence == sequence {
			delete(r.messages, listener.ID)
		}
	}), nil
}

func (r *registry) enlistRequest(listener channel.RequestListener) (Disposer, error) {
	if listener.Channel == nil || listener.Handler == nil {
		return nil, fmt.Errorf("request listener: channel and handler are required")
	}
	channelID := listener.Channel.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.responders[channelID]; exists {
		return nil, &channel.DuplicateResponderError{ChannelID: channelID}
	}
	r.sequence++
	sequence := r.sequence
	r.responders[channelID] = responderEntry{sequence: sequence, listener: listener}

	return r.disposer(func() {
		if entry, ok := r.responders[channelID]; ok && entry.sequence == sequence {
			delete(r.responders, channelID)
		}
	}), nil
}

// disposer wraps remove so that it runs at most once, under the lock.
func (r *registry) disposer(remove func()) Disposer {
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			remove()
		})
	}
}

// messageHandlers returns the handlers of every listener on channelID,
// ordered by listener id.
func (r *registry) messageHandlers(channelID string) []channel.MessageHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []channel.MessageListener
	for _, entry := range r.messages {
		if entry.listener.Channel.ID() == channelID {
			matched = append(matched, entry.listener)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	handlers := make([]channel.MessageHandler, len(matched))
	for i, listener := range matched {
		handlers[i] = listener.Handler
	}
	return handlers
}

func (r *registry) responder(channelID string) (channel.RequestHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.responders[channelID]
	if !ok {
		return nil, false
	}
	return entry.listener.Handler, true
}
