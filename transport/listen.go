// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
)

// Credentials identifies the process on the other end of a unix socket.
type Credentials struct {
	PID int
	UID int
	GID int
}

// ListenConfig configures a Listener.
type ListenConfig struct {
	// Network is "unix" or "tcp".
	Network string

	// Address is a socket path for unix or host:port for tcp. A stale
	// socket file at a unix address is removed.
	Address string

	// RequireSameUser refuses unix connections from processes running
	// as another uid. Not valid with tcp.
	RequireSameUser bool

	// Peer configures every accepted peer.
	Peer PeerConfig
}

// Listener accepts peer connections for the host context.
type Listener struct {
	listener net.Listener
	config   ListenConfig
	logger   *slog.Logger
}

// Listen opens a listening socket.
func Listen(config ListenConfig) (*Listener, error) {
	switch config.Network {
	case "unix":
		if err := os.Remove(config.Address); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing stale socket %s: %w", config.Address, err)
		}
	case "tcp":
		if config.RequireSameUser {
			return nil, errors.New("same-user restriction requires a unix socket")
		}
	default:
		return nil, fmt.Errorf("unsupported network %q (want unix or tcp)", config.Network)
	}

	listener, err := net.Listen(config.Network, config.Address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s %s: %w", config.Network, config.Address, err)
	}

	logger := config.Peer.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Listener{listener: listener, config: config, logger: logger}, nil
}

// Address returns the address the listener is bound to.
func (l *Listener) Address() string {
	return l.listener.Addr().String()
}

// Close stops accepting connections. Peers already handed to Serve's
// callback are unaffected.
func (l *Listener) Close() error {
	return l.listener.Close()
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed, completing each handshake on its own goroutine and passing
// the resulting Peer to handle. Connections that fail the credential
// check or the handshake are logged and dropped. Serve returns after
// every handle call has returned; it returns nil on shutdown.
func (l *Listener) Serve(ctx context.Context, handle func(context.Context, *Peer)) error {
	stop := context.AfterFunc(ctx, func() { l.listener.Close() })
	defer stop()

	var handlers sync.WaitGroup
	defer handlers.Wait()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}

		handlers.Add(1)
		go func() {
			defer handlers.Done()
			peer, err := l.admit(ctx, conn)
			if err != nil {
				l.logger.Warn("rejecting connection", "error", err)
				return
			}
			defer peer.Close()
			handle(ctx, peer)
		}()
	}
}

// admit checks the connecting process and completes the handshake.
func (l *Listener) admit(ctx context.Context, conn net.Conn) (*Peer, error) {
	credentials, err := peerCredentials(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if l.config.RequireSameUser {
		if credentials == nil {
			conn.Close()
			return nil, errors.New("peer credentials unavailable on this platform")
		}
		if credentials.UID != os.Getuid() {
			conn.Close()
			return nil, fmt.Errorf("process %d runs as uid %d, want %d", credentials.PID, credentials.UID, os.Getuid())
		}
	}

	peer, err := NewPeer(ctx, conn, l.config.Peer)
	if err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}
	peer.credentials = credentials
	return peer, nil
}

// Dial connects to a Listener and completes the handshake.
func Dial(ctx context.Context, network, address string, config PeerConfig) (*Peer, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dialing %s %s: %w", network, address, err)
	}
	peer, err := NewPeer(ctx, conn, config)
	if err != nil {
		return nil, fmt.Errorf("handshake with %s: %w", address, err)
	}
	return peer, nil
}
