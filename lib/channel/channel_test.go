// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/bureau-foundation/ipcbridge/lib/codec"
)

// loopback routes sends and requests straight to in-package listeners,
// standing in for a transport.
type loopback struct {
	messages  map[string][]MessageListener
	responder map[string]RequestListener
}

func newLoopback() *loopback {
	return &loopback{
		messages:  make(map[string][]MessageListener),
		responder: make(map[string]RequestListener),
	}
}

func (l *loopback) SendMessage(channelID string, payload []byte) {
	for _, listener := range l.messages[channelID] {
		listener.Handler(payload, Origin{Peer: "loopback"})
	}
}

func (l *loopback) Request(ctx context.Context, channelID string, payload []byte) ([]byte, error) {
	listener, ok := l.responder[channelID]
	if !ok {
		return nil, &NoResponderError{ChannelID: channelID}
	}
	return listener.Handler(ctx, payload)
}

type proxySettings struct {
	URL     string   `json:"url"`
	Bypass  []string `json:"bypass,omitempty"`
	Enabled bool     `json:"enabled"`
}

func TestDescriptorsAreValues(t *testing.T) {
	first := Message[string]("some-channel-id")
	second := Message[string]("some-channel-id")

	if first != second {
		t.Error("two descriptors with the same id should be equal")
	}
	if !Same(first, second) {
		t.Error("Same should report equal ids as the same channel")
	}
	if Same(first, Request[Empty, string]("some-channel-id")) {
		t.Error("a message and a request channel are different channels even with one id")
	}
	if first.Kind() != KindMessage || first.Kind().String() != "message" {
		t.Errorf("Kind() = %s, want message", first.Kind())
	}
}

func TestMessageListenerID(t *testing.T) {
	ch := Message[string]("some-channel-id")
	listener := NewMessageListener(ch, "some-listener", func(string, Origin) {})

	if listener.ID != "some-channel-id-message-listener-some-listener" {
		t.Errorf("ID = %q", listener.ID)
	}
	if listener.Key() != listener.ID {
		t.Errorf("Key() = %q, want listener id", listener.Key())
	}
	if listener.Channel.ID() != "some-channel-id" {
		t.Errorf("Channel.ID() = %q", listener.Channel.ID())
	}
}

func TestRequestListenerKeyIsChannel(t *testing.T) {
	ch := Request[string, string]("some-channel-id")
	listener := NewRequestListener(ch, func(context.Context, string) (string, error) { return "", nil })
	if listener.Key() != "some-channel-id" {
		t.Errorf("Key() = %q, want channel id", listener.Key())
	}
}

func TestSendMulticast(t *testing.T) {
	transport := newLoopback()
	ch := Message[proxySettings]("proxy-settings")

	var first, second []proxySettings
	transport.messages[ch.ID()] = []MessageListener{
		NewMessageListener(ch, "first", func(message proxySettings, _ Origin) { first = append(first, message) }),
		NewMessageListener(ch, "second", func(message proxySettings, _ Origin) { second = append(second, message) }),
	}

	sent := proxySettings{URL: "http://proxy:3128", Bypass: []string{"localhost"}, Enabled: true}
	if err := Send(transport, ch, sent); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("deliveries: first=%d second=%d, want 1 each", len(first), len(second))
	}
	if first[0].URL != sent.URL || !first[0].Enabled || len(first[0].Bypass) != 1 {
		t.Errorf("first received %+v, want %+v", first[0], sent)
	}
}

func TestSendWithoutListenersIsSilent(t *testing.T) {
	if err := Send(newLoopback(), Message[int]("nobody-listens"), 42); err != nil {
		t.Errorf("Send with no listeners returned %v", err)
	}
}

func TestSendRejectsLiveValues(t *testing.T) {
	ch := Message[func()]("callbacks")
	err := Send(newLoopback(), ch, func() {})

	var payloadErr *codec.PayloadError
	if !errors.As(err, &payloadErr) {
		t.Fatalf("expected *codec.PayloadError, got %T: %v", err, err)
	}
	if payloadErr.ChannelID != "callbacks" {
		t.Errorf("ChannelID = %q", payloadErr.ChannelID)
	}
}

func TestCallRoundtrip(t *testing.T) {
	transport := newLoopback()
	ch := Request[string, proxySettings]("resolve-system-proxy-channel")
	transport.responder[ch.ID()] = NewRequestListener(ch, func(_ context.Context, url string) (proxySettings, error) {
		return proxySettings{URL: "http://proxy-for-" + url, Enabled: true}, nil
	})

	response, err := Call(context.Background(), transport, ch, "example.com")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if response.URL != "http://proxy-for-example.com" || !response.Enabled {
		t.Errorf("response = %+v", response)
	}
}

func TestFetch(t *testing.T) {
	transport := newLoopback()
	ch := Request[Empty, string]("build-version")
	transport.responder[ch.ID()] = NewRequestListener(ch, func(context.Context, Empty) (string, error) {
		return "6.4.0", nil
	})

	version, err := Fetch(context.Background(), transport, ch)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if version != "6.4.0" {
		t.Errorf("version = %q", version)
	}
}

func TestCallWithoutResponder(t *testing.T) {
	ch := Request[string, string]("some-channel-id")
	_, err := Call(context.Background(), newLoopback(), ch, "x")

	if !errors.Is(err, ErrNoResponder) {
		t.Fatalf("expected ErrNoResponder, got %v", err)
	}
	if !strings.Contains(err.Error(), "some-channel-id") {
		t.Errorf("error %q does not name the channel", err)
	}
}

func TestCallHandlerError(t *testing.T) {
	transport := newLoopback()
	ch := Request[string, string]("failing")
	transport.responder[ch.ID()] = NewRequestListener(ch, func(context.Context, string) (string, error) {
		return "", fmt.Errorf("cluster unreachable")
	})

	if _, err := Call(context.Background(), transport, ch, "x"); err == nil || !strings.Contains(err.Error(), "cluster unreachable") {
		t.Errorf("expected handler error to propagate, got %v", err)
	}
}
