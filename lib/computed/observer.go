// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package computed

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bureau-foundation/ipcbridge/lib/channel"
	"github.com/bureau-foundation/ipcbridge/lib/codec"
	"github.com/bureau-foundation/ipcbridge/lib/listening"
)

// Observer pairs a computed channel with the value published on it.
type Observer interface {
	// Key is the channel id.
	Key() string

	// Watch calls push with the encoded current value immediately and
	// after every change, until the returned function is called. err is
	// a *codec.PayloadError when a value cannot cross the boundary.
	Watch(push func(payload []byte, err error)) (cancel func())
}

type channelObserver[T any] struct {
	ch     channel.MessageChannel[T]
	source Source[T]
}

// NewChannelObserver returns the Observer publishing source on ch.
func NewChannelObserver[T any](ch channel.MessageChannel[T], source Source[T]) Observer {
	return &channelObserver[T]{ch: ch, source: source}
}

func (o *channelObserver[T]) Key() string { return o.ch.ID() }

func (o *channelObserver[T]) Watch(push func(payload []byte, err error)) (cancel func()) {
	channelID := o.ch.ID()
	return o.source.Subscribe(true, func(value T) {
		push(codec.EncodePayload(channelID, value))
	})
}

// DuplicateObserverError lists every channel id with more than one
// registered Observer.
type DuplicateObserverError struct {
	ChannelIDs []string
}

func (e *DuplicateObserverError) Error() string {
	return fmt.Sprintf("computed channels with more than one observer: %s", strings.Join(e.ChannelIDs, ", "))
}

// ObserverSet holds the Observers registered on the owning side.
type ObserverSet struct {
	supply *listening.Supply[Observer]
}

// NewObserverSet returns an empty set.
func NewObserverSet() *ObserverSet {
	return &ObserverSet{supply: listening.NewSupply[Observer]()}
}

// Register adds observer. While a Guard runs, registering a second
// Observer for a channel id fails with *DuplicateObserverError.
func (s *ObserverSet) Register(observer Observer) (*listening.Token, error) {
	return s.supply.Add(observer)
}

// Lookup returns the Observer for channelID. If several are registered
// the first is returned; Check reports that situation.
func (s *ObserverSet) Lookup(channelID string) (Observer, bool) {
	for _, observer := range s.supply.Snapshot() {
		if observer.Key() == channelID {
			return observer, true
		}
	}
	return nil, false
}

// Check returns a *DuplicateObserverError naming every channel id with
// more than one Observer, or nil.
func (s *ObserverSet) Check() error {
	counts := make(map[string]int)
	for _, observer := range s.supply.Snapshot() {
		counts[observer.Key()]++
	}
	var duplicated []string
	for channelID, count := range counts {
		if count > 1 {
			duplicated = append(duplicated, channelID)
		}
	}
	if len(duplicated) == 0 {
		return nil
	}
	sort.Strings(duplicated)
	return &DuplicateObserverError{ChannelIDs: duplicated}
}

// Guard checks the set now and after every registration until cancel is
// called. A registration that would create a duplicate is rejected. If
// the set already holds duplicates, Guard returns the error and does
// not start.
func (s *ObserverSet) Guard() (cancel func(), err error) {
	cancel = s.supply.Subscribe(s.Check)
	if err := s.Check(); err != nil {
		cancel()
		return nil, err
	}
	return cancel, nil
}
