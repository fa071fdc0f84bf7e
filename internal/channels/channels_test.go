// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channels

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"testing"

	"github.com/bureau-foundation/ipcbridge/lib/channel"
	"github.com/bureau-foundation/ipcbridge/lib/codec"
	"github.com/bureau-foundation/ipcbridge/lib/version"
)

// call encodes request, runs the listener's handler, and decodes the
// response the way a transport would.
func call[Req, Res any](t *testing.T, listener channel.RequestListener, request Req) (Res, error) {
	t.Helper()
	var response Res
	payload, err := codec.EncodePayload(listener.Channel.ID(), request)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	data, err := listener.Handler(context.Background(), payload)
	if err != nil {
		return response, err
	}
	if err := codec.DecodePayload(listener.Channel.ID(), data, &response); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	return response, nil
}

func TestChannelIDs(t *testing.T) {
	if BuildVersion.ID() != "build-version" {
		t.Errorf("BuildVersion id = %q", BuildVersion.ID())
	}
	if ResolveSystemProxy.ID() != "resolve-system-proxy-channel" {
		t.Errorf("ResolveSystemProxy id = %q", ResolveSystemProxy.ID())
	}
	if ConnectedClients.ID() != "connected-clients" {
		t.Errorf("ConnectedClients id = %q", ConnectedClients.ID())
	}
}

func TestBuildVersionResponder(t *testing.T) {
	got, err := call[channel.Empty, string](t, NewBuildVersionResponder(), channel.Empty{})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got != version.Short() {
		t.Errorf("got %q, want %q", got, version.Short())
	}
}

func TestSystemProxyResponder(t *testing.T) {
	resolve := func(request *http.Request) (*url.URL, error) {
		switch request.URL.Host {
		case "internal.example":
			return nil, nil
		case "broken.example":
			return nil, errors.New("no proxy configuration")
		default:
			return &url.URL{Scheme: "http", Host: "proxy.example:3128"}, nil
		}
	}
	listener := NewSystemProxyResponder(resolve)

	tests := []struct {
		target  string
		want    string
		wantErr string
	}{
		{target: "https://public.example/path", want: "PROXY proxy.example:3128"},
		{target: "https://internal.example/", want: "DIRECT"},
		{target: "https://broken.example/", wantErr: "no proxy configuration"},
		{target: "relative/path", wantErr: "not an absolute URL"},
	}
	for _, test := range tests {
		t.Run(test.target, func(t *testing.T) {
			got, err := call[string, string](t, listener, test.target)
			if test.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), test.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("handler: %v", err)
			}
			if got != test.want {
				t.Errorf("got %q, want %q", got, test.want)
			}
		})
	}
}

func TestClientList(t *testing.T) {
	var names []string
	names = AddClient(names, "editor")
	names = AddClient(names, "console")
	names = AddClient(names, "editor")
	if want := []string{"console", "editor", "editor"}; !slices.Equal(names, want) {
		t.Fatalf("after adds: %v, want %v", names, want)
	}

	before := names
	names = RemoveClient(names, "editor")
	if want := []string{"console", "editor"}; !slices.Equal(names, want) {
		t.Fatalf("after remove: %v, want %v", names, want)
	}
	if len(before) != 3 {
		t.Errorf("RemoveClient modified its input: %v", before)
	}

	names = RemoveClient(names, "absent")
	if want := []string{"console", "editor"}; !slices.Equal(names, want) {
		t.Errorf("removing an absent name changed the list: %v", names)
	}
}
