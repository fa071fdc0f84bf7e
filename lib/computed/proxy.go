// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package computed

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/ipcbridge/lib/channel"
	"github.com/bureau-foundation/ipcbridge/lib/listening"
)

// ErrUnobservedRead is returned by Proxy.Get when nothing observes the
// proxy, since its value is only kept current while observed.
var ErrUnobservedRead = errors.New("computed value read outside observation")

// proxyListenerID is the short id of the push listener.
const proxyListenerID = "proxy"

// Proxy is the observing side's view of a computed channel.
type Proxy[T any] struct {
	ch      channel.MessageChannel[T]
	pending T
	sender  channel.MessageSender
	logger  *slog.Logger
	token   *listening.Token

	mu          sync.Mutex
	value       T
	nextID      uint64
	subscribers map[uint64]*subscription[T]

	// outbox holds announcements in the order their transitions were
	// decided. Only the goroutine that set flushing sends them.
	outbox   []Status
	flushing bool
}

type subscription[T any] struct {
	fn func(T)

	// primed is set once fn has seen the value current at Observe.
	// Pushes are not delivered before that.
	primed bool
}

// NewProxy creates the proxy for ch, declaring its push listener in
// messages. Observers see pending until the owning side's first push.
func NewProxy[T any](ch channel.MessageChannel[T], pending T, sender channel.MessageSender, messages *listening.Supply[channel.MessageListener], logger *slog.Logger) (*Proxy[T], error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Proxy[T]{
		ch:          ch,
		pending:     pending,
		sender:      sender,
		logger:      logger.With("channel", ch.ID()),
		value:       pending,
		subscribers: make(map[uint64]*subscription[T]),
	}
	token, err := messages.Add(channel.NewMessageListener(ch, proxyListenerID, p.receive))
	if err != nil {
		return nil, fmt.Errorf("declaring computed channel proxy: %w", err)
	}
	p.token = token
	return p, nil
}

// Observe calls fn with the current value and then with every pushed
// value until stop is called. The first observer announces the channel
// as observed; stopping the last announces it as unobserved.
// Announcements reach the sender in the order the transitions happened,
// however Observe and stop calls interleave.
func (p *Proxy[T]) Observe(fn func(T)) (stop func()) {
	sub := &subscription[T]{fn: fn}

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	first := len(p.subscribers) == 0
	if first {
		p.value = p.pending
	}
	p.subscribers[id] = sub
	current := p.value
	p.mu.Unlock()

	fn(current)

	// While sub is registered no other transition can be decided, so
	// queueing the announcement here keeps the order.
	p.mu.Lock()
	sub.primed = true
	if first {
		p.outbox = append(p.outbox, StatusBecameObserved)
	}
	p.mu.Unlock()
	p.flush()

	var once sync.Once
	return func() {
		once.Do(func() { p.unobserve(id) })
	}
}

func (p *Proxy[T]) unobserve(id uint64) {
	p.mu.Lock()
	delete(p.subscribers, id)
	if len(p.subscribers) == 0 {
		p.value = p.pending
		p.outbox = append(p.outbox, StatusBecameUnobserved)
	}
	p.mu.Unlock()
	p.flush()
}

// flush sends queued announcements in order. A call made while another
// goroutine, or an outer call on this one, is already flushing returns
// at once; the flushing call picks the new entries up.
func (p *Proxy[T]) flush() {
	p.mu.Lock()
	if p.flushing {
		p.mu.Unlock()
		return
	}
	p.flushing = true
	for len(p.outbox) > 0 {
		status := p.outbox[0]
		p.outbox = p.outbox[1:]
		p.mu.Unlock()
		p.announce(status)
		p.mu.Lock()
	}
	p.flushing = false
	p.mu.Unlock()
}

// Get returns the current value, or ErrUnobservedRead if nothing
// observes the proxy.
func (p *Proxy[T]) Get() (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.subscribers) == 0 {
		var zero T
		return zero, fmt.Errorf("channel %q: %w", p.ch.ID(), ErrUnobservedRead)
	}
	return p.value, nil
}

// Observed reports whether anything observes the proxy.
func (p *Proxy[T]) Observed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subscribers) > 0
}

func (p *Proxy[T]) receive(value T, _ channel.Origin) {
	p.mu.Lock()
	if len(p.subscribers) == 0 {
		p.mu.Unlock()
		p.logger.Debug("ignoring push for unobserved computed channel")
		return
	}
	p.value = value
	subscribers := make([]func(T), 0, len(p.subscribers))
	for _, sub := range p.subscribers {
		if sub.primed {
			subscribers = append(subscribers, sub.fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range subscribers {
		fn(value)
	}
}

func (p *Proxy[T]) announce(status Status) {
	message := AdministrationMessage{ChannelID: p.ch.ID(), Status: status}
	if err := channel.Send(p.sender, AdministrationChannel, message); err != nil {
		p.logger.Error("announcing computed channel observation", "status", status, "error", err)
	}
}

// Close withdraws the push listener. Observers still attached keep the
// last value they saw.
func (p *Proxy[T]) Close() error {
	return p.token.Remove()
}
