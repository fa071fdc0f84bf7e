// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package channels declares the channels the ipcbridge host serves.
// Both sides import these values; the ids are the wire contract.
package channels

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"

	"github.com/bureau-foundation/ipcbridge/lib/channel"
	"github.com/bureau-foundation/ipcbridge/lib/version"
)

// BuildVersion answers with the host's release string.
var BuildVersion = channel.Request[channel.Empty, string]("build-version")

// ResolveSystemProxy answers with the proxy the host would use for a
// URL, in PAC notation: "DIRECT" or "PROXY host:port".
var ResolveSystemProxy = channel.Request[string, string]("resolve-system-proxy-channel")

// ConnectedClients is a computed channel carrying the sorted names of
// the clients connected to the host.
var ConnectedClients = channel.Message[[]string]("connected-clients")

// NewBuildVersionResponder serves BuildVersion.
func NewBuildVersionResponder() channel.RequestListener {
	return channel.NewRequestListener(BuildVersion, func(context.Context, channel.Empty) (string, error) {
		return version.Short(), nil
	})
}

// ProxyFunc resolves the proxy for an outgoing request, with the
// signature of http.Transport.Proxy.
type ProxyFunc func(*http.Request) (*url.URL, error)

// NewSystemProxyResponder serves ResolveSystemProxy using resolve. Nil
// means http.ProxyFromEnvironment.
func NewSystemProxyResponder(resolve ProxyFunc) channel.RequestListener {
	if resolve == nil {
		resolve = http.ProxyFromEnvironment
	}
	return channel.NewRequestListener(ResolveSystemProxy, func(ctx context.Context, target string) (string, error) {
		parsed, err := url.Parse(target)
		if err != nil {
			return "", fmt.Errorf("parsing %q: %w", target, err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return "", fmt.Errorf("%q is not an absolute URL", target)
		}
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
		if err != nil {
			return "", err
		}
		proxy, err := resolve(request)
		if err != nil {
			return "", err
		}
		if proxy == nil {
			return "DIRECT", nil
		}
		return "PROXY " + proxy.Host, nil
	})
}

// AddClient returns names with name inserted in sorted position.
// Names may repeat when two clients announce the same name.
func AddClient(names []string, name string) []string {
	result := slices.Clone(names)
	index, _ := slices.BinarySearch(result, name)
	return slices.Insert(result, index, name)
}

// RemoveClient returns names with one occurrence of name removed.
func RemoveClient(names []string, name string) []string {
	index, found := slices.BinarySearch(names, name)
	if !found {
		return names
	}
	return slices.Delete(slices.Clone(names), index, index+1)
}
