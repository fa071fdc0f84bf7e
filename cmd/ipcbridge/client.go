// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bureau-foundation/ipcbridge/internal/channels"
	"github.com/bureau-foundation/ipcbridge/internal/wiring"
	"github.com/bureau-foundation/ipcbridge/lib/channel"
	"github.com/bureau-foundation/ipcbridge/lib/computed"
	"github.com/bureau-foundation/ipcbridge/lib/listening"
	"github.com/bureau-foundation/ipcbridge/transport"
)

type clientOptions struct {
	// resolve, if set, is a URL whose proxy the host is asked for.
	resolve string

	// watch keeps the client connected, printing the connected
	// clients each time the host reports a change.
	watch bool
}

func runClient(ctx context.Context, container *wiring.Container, options clientOptions, out io.Writer) error {
	cfg := container.Config()
	peer, err := transport.Dial(ctx, cfg.Transport.Network, cfg.Transport.Address, container.PeerConfig())
	if err != nil {
		return err
	}
	defer peer.Close()
	return serveClient(ctx, container, peer, options, out)
}

// serveClient talks to the host over peer, writing results to out.
func serveClient(ctx context.Context, container *wiring.Container, peer *transport.Peer, options clientOptions, out io.Writer) error {
	logger := container.Logger().With("host", peer.RemoteName())

	clients, err := computed.NewProxy(channels.ConnectedClients, nil, peer, container.Messages(), logger)
	if err != nil {
		return err
	}
	defer clients.Close()

	orchestrator := listening.NewOrchestrator(peer, container.Messages(), container.Requests(), logger)
	if err := orchestrator.Start(); err != nil {
		return err
	}
	defer orchestrator.Stop()

	hostVersion, err := channel.Fetch(ctx, peer, channels.BuildVersion)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "host %s: version %s\n", peer.RemoteName(), hostVersion)

	if options.resolve != "" {
		proxy, err := channel.Call(ctx, peer, channels.ResolveSystemProxy, options.resolve)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "proxy for %s: %s\n", options.resolve, proxy)
	}

	if !options.watch {
		return nil
	}

	stop := clients.Observe(func(names []string) {
		// nil is the pending value before the host's first push.
		if names != nil {
			fmt.Fprintf(out, "connected clients: %s\n", strings.Join(names, ", "))
		}
	})
	defer stop()

	select {
	case <-ctx.Done():
		return nil
	case <-peer.Done():
		cause := peer.Err()
		if cause == nil {
			cause = transport.ErrPeerClosed
		}
		return fmt.Errorf("connection to host lost: %w", cause)
	}
}
