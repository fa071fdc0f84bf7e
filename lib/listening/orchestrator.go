// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package listening

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/bureau-foundation/ipcbridge/lib/channel"
	"github.com/bureau-foundation/ipcbridge/transport"
)

// Enlister is the part of transport.Adapter the Orchestrator drives.
type Enlister interface {
	EnlistMessage(listener channel.MessageListener) (transport.Disposer, error)
	EnlistRequest(listener channel.RequestListener) (transport.Disposer, error)
}

// State is the lifecycle state of an Orchestrator.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateStarted
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// enlistment is a live registration retained by the Orchestrator.
type enlistment struct {
	sequence uint64
	dispose  transport.Disposer
}

// Orchestrator reconciles two Supplies with an Enlister. Reconciliation
// runs on the goroutine that changed a Supply, serialized by the
// Orchestrator's lock. An Enlister must not change the Supplies from
// within an enlist call or a disposer.
type Orchestrator struct {
	enlister Enlister
	messages *Supply[channel.MessageListener]
	requests *Supply[channel.RequestListener]
	logger   *slog.Logger

	mu                sync.Mutex
	state             State
	liveMessages      map[string]enlistment
	liveRequests      map[string]enlistment
	cancelSubscribers []func()
}

// NewOrchestrator creates a stopped Orchestrator.
func NewOrchestrator(enlister Enlister, messages *Supply[channel.MessageListener], requests *Supply[channel.RequestListener], logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		enlister: enlister,
		messages: messages,
		requests: requests,
		logger:   logger,
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Start enlists every listener currently declared and begins following
// changes. If the declared listeners contain a duplicate key or an
// enlistment fails, everything enlisted so far is disposed and the
// Orchestrator stays stopped.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateStopped {
		return fmt.Errorf("starting orchestrator: already %s", o.state)
	}
	o.state = StateStarting
	o.liveMessages = make(map[string]enlistment)
	o.liveRequests = make(map[string]enlistment)

	// Subscribing before the baseline reconcile means no change can fall
	// between the two; a notification that arrives meanwhile blocks on
	// o.mu and then reconciles against the newest snapshot.
	o.cancelSubscribers = []func(){
		o.messages.Subscribe(o.onMessagesChanged),
		o.requests.Subscribe(o.onRequestsChanged),
	}

	if err := o.reconcileMessagesLocked(); err != nil {
		o.teardownLocked()
		return err
	}
	if err := o.reconcileRequestsLocked(); err != nil {
		o.teardownLocked()
		return err
	}

	o.state = StateStarted
	o.logger.Debug("listening started",
		"message_listeners", len(o.liveMessages),
		"request_listeners", len(o.liveRequests),
	)
	return nil
}

// Stop disposes every live enlistment and stops following the
// Supplies. Stopping a stopped Orchestrator does nothing.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateStarted {
		return
	}
	o.state = StateStopping
	disposed := len(o.liveMessages) + len(o.liveRequests)
	o.teardownLocked()
	o.logger.Debug("listening stopped", "disposed", disposed)
}

// teardownLocked cancels the subscriptions, disposes every live
// enlistment, and returns to stopped.
func (o *Orchestrator) teardownLocked() {
	for _, cancel := range o.cancelSubscribers {
		cancel()
	}
	o.cancelSubscribers = nil

	disposeAll(o.liveMessages)
	disposeAll(o.liveRequests)
	o.liveMessages = nil
	o.liveRequests = nil
	o.state = StateStopped
}

func disposeAll(live map[string]enlistment) {
	keys := make([]string, 0, len(live))
	for key := range live {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		live[key].dispose()
	}
}

func (o *Orchestrator) onMessagesChanged() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateStarted {
		return nil
	}
	return o.reconcileMessagesLocked()
}

func (o *Orchestrator) onRequestsChanged() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateStarted {
		return nil
	}
	return o.reconcileRequestsLocked()
}

func (o *Orchestrator) reconcileMessagesLocked() error {
	return reconcile(o.messages.snapshotEntries(), o.liveMessages, reconcileKind[channel.MessageListener]{
		name: "message",
		duplicate: func(listener channel.MessageListener) error {
			return &channel.DuplicateListenerError{ChannelID: listener.Channel.ID(), ListenerID: listener.ID}
		},
		enlist: o.enlister.EnlistMessage,
	}, o.logger)
}

func (o *Orchestrator) reconcileRequestsLocked() error {
	return reconcile(o.requests.snapshotEntries(), o.liveRequests, reconcileKind[channel.RequestListener]{
		name: "request",
		duplicate: func(listener channel.RequestListener) error {
			return &channel.DuplicateResponderError{ChannelID: listener.Channel.ID()}
		},
		enlist: o.enlister.EnlistRequest,
	}, o.logger)
}

// reconcileKind carries what differs between message and request
// reconciliation.
type reconcileKind[L Keyed] struct {
	name      string
	duplicate func(L) error
	enlist    func(L) (transport.Disposer, error)
}

// reconcile brings live in line with snapshot: it disposes enlistments
// whose declaration is gone and enlists declarations not yet live. A
// duplicate key in snapshot is reported before anything changes.
func reconcile[L Keyed](snapshot []entry[L], live map[string]enlistment, kind reconcileKind[L], logger *slog.Logger) error {
	desired := make(map[string]uint64, len(snapshot))
	for _, declared := range snapshot {
		key := declared.listener.Key()
		if _, exists := desired[key]; exists {
			return kind.duplicate(declared.listener)
		}
		desired[key] = declared.sequence
	}

	for key, current := range live {
		if sequence, ok := desired[key]; ok && sequence == current.sequence {
			continue
		}
		current.dispose()
		delete(live, key)
		logger.Debug("listener disposed", "kind", kind.name, "key", key)
	}

	for _, declared := range snapshot {
		key := declared.listener.Key()
		if _, ok := live[key]; ok {
			continue
		}
		dispose, err := kind.enlist(declared.listener)
		if err != nil {
			return fmt.Errorf("enlisting %s listener %q: %w", kind.name, key, err)
		}
		live[key] = enlistment{sequence: declared.sequence, dispose: dispose}
		logger.Debug("listener enlisted", "kind", kind.name, "key", key)
	}
	return nil
}
