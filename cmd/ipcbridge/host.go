// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/ipcbridge/internal/channels"
	"github.com/bureau-foundation/ipcbridge/internal/wiring"
	"github.com/bureau-foundation/ipcbridge/lib/channel"
	"github.com/bureau-foundation/ipcbridge/lib/computed"
	"github.com/bureau-foundation/ipcbridge/lib/listening"
	"github.com/bureau-foundation/ipcbridge/transport"
)

type host struct {
	container *wiring.Container
	logger    *slog.Logger
}

func runHost(ctx context.Context, container *wiring.Container) error {
	cfg := container.Config()
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	listener, err := transport.Listen(transport.ListenConfig{
		Network:         cfg.Transport.Network,
		Address:         cfg.Transport.Address,
		RequireSameUser: cfg.Transport.RequireSameUser,
		Peer:            container.PeerConfig(),
	})
	if err != nil {
		return err
	}
	defer listener.Close()

	container.Logger().Info("listening", "address", listener.Address())
	return serveHost(ctx, container, listener)
}

// serveHost accepts clients on listener until ctx is cancelled.
func serveHost(ctx context.Context, container *wiring.Container, listener *transport.Listener) error {
	h := &host{container: container, logger: container.Logger()}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := listener.Serve(groupCtx, h.servePeer); err != nil {
			return fmt.Errorf("serving clients: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		h.reportClients(groupCtx)
		return nil
	})
	return group.Wait()
}

// servePeer runs one client connection until it closes or ctx is
// cancelled. The shared supplies and this client's publisher are
// enlisted through separate orchestrators so the publisher's
// administration listener never appears in another client's snapshot.
func (h *host) servePeer(ctx context.Context, peer *transport.Peer) {
	logger := h.logger.With("peer", peer.RemoteName())
	if credentials, ok := peer.Credentials(); ok {
		logger = logger.With("pid", credentials.PID, "uid", credentials.UID)
	}

	publisher := computed.NewPublisher(h.container.Observers(), peer, logger)
	defer publisher.Close()

	administration := listening.NewSupply[channel.MessageListener]()
	if _, err := administration.Add(publisher.Listener()); err != nil {
		logger.Error("declaring publisher listener", "error", err)
		return
	}

	private := listening.NewOrchestrator(peer, administration, listening.NewSupply[channel.RequestListener](), logger)
	if err := private.Start(); err != nil {
		logger.Error("starting publisher", "error", err)
		return
	}
	defer private.Stop()

	name := peer.RemoteName()
	clients := h.container.ConnectedClients()
	clients.Update(func(names []string) []string { return channels.AddClient(names, name) })
	defer clients.Update(func(names []string) []string { return channels.RemoveClient(names, name) })

	// Responders go live last: once a client sees its first response,
	// its administration messages have a handler here.
	shared := listening.NewOrchestrator(peer, h.container.Messages(), h.container.Requests(), logger)
	if err := shared.Start(); err != nil {
		logger.Error("starting listeners", "error", err)
		return
	}
	defer shared.Stop()

	logger.Info("client connected", "version", peer.RemoteVersion())
	select {
	case <-ctx.Done():
		logger.Info("closing client connection")
	case <-peer.Done():
		logger.Info("client disconnected", "error", peer.Err(), "observed", publisher.Observed())
	}
}

// reportClients logs every change to the connected client list until
// ctx is cancelled.
func (h *host) reportClients(ctx context.Context) {
	cancel := h.container.ConnectedClients().Subscribe(false, func(names []string) {
		h.logger.Debug("connected clients changed", "clients", names)
	})
	defer cancel()
	<-ctx.Done()
}
