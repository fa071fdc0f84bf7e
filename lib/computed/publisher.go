// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package computed

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/bureau-foundation/ipcbridge/lib/channel"
	"github.com/bureau-foundation/ipcbridge/lib/codec"
)

// publisherListenerID is the short id of the administration listener.
const publisherListenerID = "publisher"

// Publisher serves computed channels to one observing side. It runs one
// push loop per channel that side currently observes.
type Publisher struct {
	observers *ObserverSet
	sender    channel.MessageSender
	logger    *slog.Logger

	mu    sync.Mutex
	loops map[string]*pushLoop
}

// pushLoop is the state of one observed channel.
type pushLoop struct {
	cancel  func()
	stopped bool
	last    codec.Digest
	pushed  bool
}

// NewPublisher returns a Publisher pushing values from observers
// through sender.
func NewPublisher(observers *ObserverSet, sender channel.MessageSender, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Publisher{
		observers: observers,
		sender:    sender,
		logger:    logger,
		loops:     make(map[string]*pushLoop),
	}
}

// Listener returns the administration channel listener to declare on
// the owning side.
func (p *Publisher) Listener() channel.MessageListener {
	return channel.NewMessageListener(AdministrationChannel, publisherListenerID, p.handleAdministration)
}

func (p *Publisher) handleAdministration(message AdministrationMessage, origin channel.Origin) {
	switch message.Status {
	case StatusBecameObserved:
		p.start(message.ChannelID)
	case StatusBecameUnobserved:
		p.stop(message.ChannelID)
	default:
		p.logger.Warn("ignoring unknown computed channel status",
			"channel", message.ChannelID,
			"status", message.Status,
			"from", origin.Peer,
		)
	}
}

func (p *Publisher) start(channelID string) {
	observer, ok := p.observers.Lookup(channelID)
	if !ok {
		p.logger.Warn("computed channel observed but not published", "channel", channelID)
		return
	}

	p.mu.Lock()
	if _, running := p.loops[channelID]; running {
		p.mu.Unlock()
		p.logger.Debug("computed channel already observed", "channel", channelID)
		return
	}
	loop := &pushLoop{}
	p.loops[channelID] = loop
	p.mu.Unlock()

	// Watch pushes the current value before returning.
	cancel := observer.Watch(func(payload []byte, err error) {
		p.push(channelID, loop, payload, err)
	})

	p.mu.Lock()
	if loop.stopped {
		p.mu.Unlock()
		cancel()
		return
	}
	loop.cancel = cancel
	p.mu.Unlock()
	p.logger.Debug("computed channel push loop started", "channel", channelID)
}

func (p *Publisher) push(channelID string, loop *pushLoop, payload []byte, err error) {
	if err != nil {
		p.logger.Error("computed value cannot be published", "channel", channelID, "error", err)
		return
	}
	digest := codec.Fingerprint(payload)

	p.mu.Lock()
	if loop.stopped || (loop.pushed && loop.last == digest) {
		p.mu.Unlock()
		return
	}
	loop.last = digest
	loop.pushed = true
	p.mu.Unlock()

	p.sender.SendMessage(channelID, payload)
}

func (p *Publisher) stop(channelID string) {
	p.mu.Lock()
	loop, ok := p.loops[channelID]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.loops, channelID)
	loop.stopped = true
	cancel := loop.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.logger.Debug("computed channel push loop stopped", "channel", channelID)
}

// Observed returns the channel ids with a running push loop, sorted.
func (p *Publisher) Observed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	channelIDs := make([]string, 0, len(p.loops))
	for channelID := range p.loops {
		channelIDs = append(channelIDs, channelID)
	}
	sort.Strings(channelIDs)
	return channelIDs
}

// Close stops every push loop. Used when the observing side goes away
// without announcing it.
func (p *Publisher) Close() {
	for _, channelID := range p.Observed() {
		p.stop(channelID)
	}
}
