// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package listening

import (
	"errors"
	"sync"
)

// Keyed is implemented by channel.MessageListener and
// channel.RequestListener.
type Keyed interface {
	Key() string
}

// entry is one declaration in a Supply. sequence distinguishes two
// declarations that share a key.
type entry[L Keyed] struct {
	sequence uint64
	listener L
}

// Supply is the registry of declared listeners of one kind. It is safe
// for concurrent use. Subscribers are notified synchronously after each
// change, outside the Supply's lock.
type Supply[L Keyed] struct {
	mu          sync.Mutex
	sequence    uint64
	entries     []entry[L]
	subscribers []subscriber
}

type subscriber struct {
	id     uint64
	notify func() error
}

// NewSupply returns an empty Supply.
func NewSupply[L Keyed]() *Supply[L] {
	return &Supply[L]{}
}

// Token is the capability to withdraw one declaration.
type Token struct {
	once   sync.Once
	remove func() error
	err    error
}

// Remove withdraws the declaration. Only the first call has an effect;
// later calls return the first call's result.
func (t *Token) Remove() error {
	t.once.Do(func() { t.err = t.remove() })
	return t.err
}

// Add declares listener. If a subscriber rejects the resulting
// snapshot, for example because the listener's key is already live, the
// declaration is withdrawn again and the subscriber's error returned.
func (s *Supply[L]) Add(listener L) (*Token, error) {
	s.mu.Lock()
	s.sequence++
	sequence := s.sequence
	s.entries = append(s.entries, entry[L]{sequence: sequence, listener: listener})
	s.mu.Unlock()

	if err := s.notify(); err != nil {
		s.withdraw(sequence)
		// Subscribers that accepted the addition must now drop it.
		if rollbackErr := s.notify(); rollbackErr != nil {
			err = errors.Join(err, rollbackErr)
		}
		return nil, err
	}
	return &Token{remove: func() error {
		if !s.withdraw(sequence) {
			return nil
		}
		return s.notify()
	}}, nil
}

// withdraw removes the entry with the given sequence. Returns false if
// it was already gone.
func (s *Supply[L]) withdraw(sequence uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.entries {
		if existing.sequence == sequence {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns the declared listeners in declaration order.
func (s *Supply[L]) Snapshot() []L {
	s.mu.Lock()
	defer s.mu.Unlock()
	listeners := make([]L, len(s.entries))
	for i, existing := range s.entries {
		listeners[i] = existing.listener
	}
	return listeners
}

func (s *Supply[L]) snapshotEntries() []entry[L] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entry[L](nil), s.entries...)
}

// Len returns the number of declared listeners.
func (s *Supply[L]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Subscribe registers notify to run after every change. The returned
// function cancels the subscription.
func (s *Supply[L]) Subscribe(notify func() error) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	id := s.sequence
	s.subscribers = append(s.subscribers, subscriber{id: id, notify: notify})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, existing := range s.subscribers {
			if existing.id == id {
				s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (s *Supply[L]) notify() error {
	s.mu.Lock()
	subscribers := append([]subscriber(nil), s.subscribers...)
	s.mu.Unlock()

	var errs []error
	for _, subscriber := range subscribers {
		if err := subscriber.notify(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
