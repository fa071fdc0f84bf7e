// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bureau-foundation/ipcbridge/lib/channel"
)

var (
	themeChannel = channel.Message[string]("theme-changed")
	pingChannel  = channel.Message[int]("ping")
	pongChannel  = channel.Message[int]("pong")
	proxyChannel = channel.Request[string, string]("resolve-system-proxy-channel")
)

// recordTheme enlists a listener on endpoint that appends every theme
// it receives, tagged with the sender, to received.
func recordTheme(t *testing.T, endpoint Adapter, id string, received *[]string) {
	t.Helper()
	listener := channel.NewMessageListener(themeChannel, id, func(theme string, origin channel.Origin) {
		*received = append(*received, origin.Peer+":"+theme)
	})
	if _, err := endpoint.EnlistMessage(listener); err != nil {
		t.Fatalf("EnlistMessage(%s): %v", id, err)
	}
}

func TestMemoryBridgeSyncDeliversToOthersOnly(t *testing.T) {
	bridge := NewMemoryBridge(DeliverSync, nil)
	host := NewMemoryEndpoint("host")
	first := NewMemoryEndpoint("client-1")
	second := NewMemoryEndpoint("client-2")
	bridge.Involve(host, first, second)

	var atHost, atFirst, atSecond []string
	recordTheme(t, host, "host", &atHost)
	recordTheme(t, first, "first", &atFirst)
	recordTheme(t, second, "second", &atSecond)

	if err := channel.Send(host, themeChannel, "dark"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(atHost) != 0 {
		t.Errorf("sender received its own message: %v", atHost)
	}
	for name, received := range map[string][]string{"client-1": atFirst, "client-2": atSecond} {
		if len(received) != 1 || received[0] != "host:dark" {
			t.Errorf("%s received %v, want [host:dark]", name, received)
		}
	}
}

func TestMemoryBridgeAsyncQueuesUntilPropagation(t *testing.T) {
	bridge := NewMemoryBridge(DeliverAsync, nil)
	host := NewMemoryEndpoint("host")
	client := NewMemoryEndpoint("client")
	bridge.Involve(host, client)

	var received []string
	recordTheme(t, client, "client", &received)

	if err := channel.Send(host, themeChannel, "light"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(received) != 0 {
		t.Fatalf("async delivery ran before propagation: %v", received)
	}
	if pending := bridge.PendingDeliveries(); pending != 1 {
		t.Fatalf("PendingDeliveries = %d, want 1", pending)
	}

	if err := bridge.MessagePropagation(); err != nil {
		t.Fatalf("MessagePropagation: %v", err)
	}
	if len(received) != 1 || received[0] != "host:light" {
		t.Errorf("received %v, want [host:light]", received)
	}
	if pending := bridge.PendingDeliveries(); pending != 0 {
		t.Errorf("PendingDeliveries after propagation = %d, want 0", pending)
	}
}

func TestMemoryBridgeRecursivePropagation(t *testing.T) {
	bridge := NewMemoryBridge(DeliverAsync, nil)
	host := NewMemoryEndpoint("host")
	client := NewMemoryEndpoint("client")
	bridge.Involve(host, client)

	// The client answers every ping with a pong carrying the same
	// number, and the host records the pongs.
	if _, err := client.EnlistMessage(channel.NewMessageListener(pingChannel, "echo", func(n int, _ channel.Origin) {
		if err := channel.Send(client, pongChannel, n); err != nil {
			t.Errorf("Send pong: %v", err)
		}
	})); err != nil {
		t.Fatalf("EnlistMessage: %v", err)
	}
	var pongs []int
	if _, err := host.EnlistMessage(channel.NewMessageListener(pongChannel, "record", func(n int, _ channel.Origin) {
		pongs = append(pongs, n)
	})); err != nil {
		t.Fatalf("EnlistMessage: %v", err)
	}

	if err := channel.Send(host, pingChannel, 7); err != nil {
		t.Fatalf("Send ping: %v", err)
	}

	// One round delivers the ping, which queues the pong.
	if err := bridge.MessagePropagation(); err != nil {
		t.Fatalf("MessagePropagation: %v", err)
	}
	if len(pongs) != 0 || bridge.PendingDeliveries() != 1 {
		t.Fatalf("after one round: pongs %v, pending %d", pongs, bridge.PendingDeliveries())
	}

	if err := channel.Send(host, pingChannel, 8); err != nil {
		t.Fatalf("Send ping: %v", err)
	}
	if err := bridge.MessagePropagationRecursive(); err != nil {
		t.Fatalf("MessagePropagationRecursive: %v", err)
	}
	if len(pongs) != 2 || pongs[0] != 7 || pongs[1] != 8 {
		t.Errorf("pongs = %v, want [7 8]", pongs)
	}
}

func TestMemoryBridgePropagationReportsDecodeFailures(t *testing.T) {
	bridge := NewMemoryBridge(DeliverAsync, nil)
	host := NewMemoryEndpoint("host")
	client := NewMemoryEndpoint("client")
	bridge.Involve(host, client)

	var received []string
	recordTheme(t, client, "client", &received)

	// A number where the listener expects a string.
	if err := channel.Send(host, channel.Message[int]("theme-changed"), 42); err != nil {
		t.Fatalf("Send: %v", err)
	}
	err := bridge.MessagePropagation()
	if err == nil {
		t.Fatal("MessagePropagation succeeded, want a decode failure")
	}
	if !strings.Contains(err.Error(), "theme-changed") {
		t.Errorf("error %q does not name the channel", err)
	}
	if len(received) != 0 {
		t.Errorf("handler ran with undecodable payload: %v", received)
	}
}

func TestMemoryBridgeRequestSingleResponder(t *testing.T) {
	bridge := NewMemoryBridge(DeliverAsync, nil)
	host := NewMemoryEndpoint("host")
	client := NewMemoryEndpoint("client")
	bridge.Involve(host, client)

	if _, err := host.EnlistRequest(channel.NewRequestListener(proxyChannel, func(_ context.Context, url string) (string, error) {
		return "PROXY proxy.example.com:3128 for " + url, nil
	})); err != nil {
		t.Fatalf("EnlistRequest: %v", err)
	}

	response, err := channel.Call(context.Background(), client, proxyChannel, "https://kube.example.com")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if want := "PROXY proxy.example.com:3128 for https://kube.example.com"; response != want {
		t.Errorf("response = %q, want %q", response, want)
	}

	// Requests are not subject to async message queueing.
	if pending := bridge.PendingDeliveries(); pending != 0 {
		t.Errorf("PendingDeliveries = %d, want 0", pending)
	}
}

func TestMemoryBridgeRequestWithoutResponder(t *testing.T) {
	bridge := NewMemoryBridge(DeliverSync, nil)
	host := NewMemoryEndpoint("host")
	client := NewMemoryEndpoint("client")
	bridge.Involve(host, client)

	// A responder on the requesting side itself does not count.
	if _, err := client.EnlistRequest(channel.NewRequestListener(proxyChannel, func(context.Context, string) (string, error) {
		return "DIRECT", nil
	})); err != nil {
		t.Fatalf("EnlistRequest: %v", err)
	}

	_, err := channel.Call(context.Background(), client, proxyChannel, "https://kube.example.com")
	if !errors.Is(err, channel.ErrNoResponder) {
		t.Fatalf("Call error = %v, want ErrNoResponder", err)
	}
	if !strings.Contains(err.Error(), "resolve-system-proxy-channel") {
		t.Errorf("error %q does not name the channel", err)
	}
}

func TestMemoryBridgeRequestMultipleResponders(t *testing.T) {
	bridge := NewMemoryBridge(DeliverSync, nil)
	host := NewMemoryEndpoint("host")
	first := NewMemoryEndpoint("client-1")
	second := NewMemoryEndpoint("client-2")
	bridge.Involve(host, first, second)

	for _, endpoint := range []*MemoryEndpoint{first, second} {
		if _, err := endpoint.EnlistRequest(channel.NewRequestListener(proxyChannel, func(context.Context, string) (string, error) {
			return "DIRECT", nil
		})); err != nil {
			t.Fatalf("EnlistRequest(%s): %v", endpoint.Name(), err)
		}
	}

	_, err := channel.Call(context.Background(), host, proxyChannel, "https://kube.example.com")
	var multiple *channel.MultipleRespondersError
	if !errors.As(err, &multiple) {
		t.Fatalf("Call error = %v, want *MultipleRespondersError", err)
	}
	if multiple.Count != 2 {
		t.Errorf("Count = %d, want 2", multiple.Count)
	}
}

func TestMemoryBridgeRequestHandlerError(t *testing.T) {
	bridge := NewMemoryBridge(DeliverSync, nil)
	host := NewMemoryEndpoint("host")
	client := NewMemoryEndpoint("client")
	bridge.Involve(host, client)

	if _, err := host.EnlistRequest(channel.NewRequestListener(proxyChannel, func(context.Context, string) (string, error) {
		return "", errors.New("no proxy configuration")
	})); err != nil {
		t.Fatalf("EnlistRequest: %v", err)
	}

	_, err := channel.Call(context.Background(), client, proxyChannel, "https://kube.example.com")
	var remote *channel.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("Call error = %v, want *RemoteError", err)
	}
	if remote.Message != "no proxy configuration" {
		t.Errorf("Message = %q", remote.Message)
	}
}

func TestEnlistRejectsDuplicates(t *testing.T) {
	endpoint := NewMemoryEndpoint("host")
	listener := channel.NewMessageListener(themeChannel, "sync", func(string, channel.Origin) {})

	if _, err := endpoint.EnlistMessage(listener); err != nil {
		t.Fatalf("first EnlistMessage: %v", err)
	}
	_, err := endpoint.EnlistMessage(listener)
	var duplicateListener *channel.DuplicateListenerError
	if !errors.As(err, &duplicateListener) {
		t.Fatalf("second EnlistMessage error = %v, want *DuplicateListenerError", err)
	}
	if duplicateListener.ListenerID != "theme-changed-message-listener-sync" {
		t.Errorf("ListenerID = %q", duplicateListener.ListenerID)
	}

	responder := channel.NewRequestListener(proxyChannel, func(context.Context, string) (string, error) { return "", nil })
	if _, err := endpoint.EnlistRequest(responder); err != nil {
		t.Fatalf("first EnlistRequest: %v", err)
	}
	_, err = endpoint.EnlistRequest(responder)
	var duplicateResponder *channel.DuplicateResponderError
	if !errors.As(err, &duplicateResponder) {
		t.Fatalf("second EnlistRequest error = %v, want *DuplicateResponderError", err)
	}
}

func TestDisposerRemovesOnlyItsOwnRegistration(t *testing.T) {
	bridge := NewMemoryBridge(DeliverSync, nil)
	host := NewMemoryEndpoint("host")
	client := NewMemoryEndpoint("client")
	bridge.Involve(host, client)

	var received []string
	listener := channel.NewMessageListener(themeChannel, "sync", func(theme string, _ channel.Origin) {
		received = append(received, theme)
	})

	dispose, err := client.EnlistMessage(listener)
	if err != nil {
		t.Fatalf("EnlistMessage: %v", err)
	}
	dispose()

	if _, err := client.EnlistMessage(listener); err != nil {
		t.Fatalf("re-enlisting after dispose: %v", err)
	}
	// A second call of the stale disposer must not remove the new
	// registration.
	dispose()

	if err := channel.Send(host, themeChannel, "dark"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(received) != 1 {
		t.Errorf("received %v, want one delivery", received)
	}
}

func TestInvolveInSecondBridgePanics(t *testing.T) {
	endpoint := NewMemoryEndpoint("host")
	NewMemoryBridge(DeliverSync, nil).Involve(endpoint)

	defer func() {
		if recover() == nil {
			t.Error("Involve in a second bridge did not panic")
		}
	}()
	NewMemoryBridge(DeliverSync, nil).Involve(endpoint)
}
