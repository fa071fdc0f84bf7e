// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wiring builds the object graph for one ipcbridge process with
// go.uber.org/dig. Request responders and computed-channel observers
// are contributed through dig value groups and registered into the
// shared supplies; cmd/ipcbridge then attaches orchestrators to each
// connection.
package wiring

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.uber.org/dig"
	"golang.org/x/term"

	"github.com/bureau-foundation/ipcbridge/internal/channels"
	"github.com/bureau-foundation/ipcbridge/lib/channel"
	"github.com/bureau-foundation/ipcbridge/lib/clock"
	"github.com/bureau-foundation/ipcbridge/lib/computed"
	"github.com/bureau-foundation/ipcbridge/lib/config"
	"github.com/bureau-foundation/ipcbridge/lib/listening"
	"github.com/bureau-foundation/ipcbridge/transport"
)

// Mode selects which side of the bridge a process runs.
type Mode string

const (
	// ModeHost listens for clients and serves the host channels.
	ModeHost Mode = "host"
	// ModeClient dials a host.
	ModeClient Mode = "client"
)

// ParseMode validates a --mode value.
func ParseMode(value string) (Mode, error) {
	switch Mode(value) {
	case ModeHost, ModeClient:
		return Mode(value), nil
	}
	return "", fmt.Errorf("unknown mode %q (want host or client)", value)
}

// Options carries the inputs New cannot derive from the config.
type Options struct {
	Mode Mode

	// LogOutput receives log records. Nil means os.Stderr.
	LogOutput io.Writer

	// Clock drives transport timeouts. Nil means the real clock.
	Clock clock.Clock

	// ResolveProxy backs the resolve-system-proxy channel. Nil means
	// the process environment.
	ResolveProxy channels.ProxyFunc
}

// Container holds the resolved graph. Callers use the typed getters;
// they never need to import dig directly.
type Container struct {
	mode      Mode
	config    *config.Config
	logger    *slog.Logger
	peer      transport.PeerConfig
	messages  *listening.Supply[channel.MessageListener]
	requests  *listening.Supply[channel.RequestListener]
	observers *computed.ObserverSet
	clients   *computed.Value[[]string]

	tokens      []*listening.Token
	cancelGuard func()
}

func (c *Container) Mode() Mode                                           { return c.mode }
func (c *Container) Config() *config.Config                               { return c.config }
func (c *Container) Logger() *slog.Logger                                 { return c.logger }
func (c *Container) PeerConfig() transport.PeerConfig                     { return c.peer }
func (c *Container) Messages() *listening.Supply[channel.MessageListener] { return c.messages }
func (c *Container) Requests() *listening.Supply[channel.RequestListener] { return c.requests }
func (c *Container) Observers() *computed.ObserverSet                     { return c.observers }

// ConnectedClients is the host's list of connected client names. It is
// nil in client mode.
func (c *Container) ConnectedClients() *computed.Value[[]string] { return c.clients }

type contributions struct {
	dig.In

	Messages  *listening.Supply[channel.MessageListener]
	Requests  *listening.Supply[channel.RequestListener]
	Observers *computed.ObserverSet

	MessageListeners []channel.MessageListener `group:"messages"`
	RequestListeners []channel.RequestListener `group:"requests"`
	ObserverList     []computed.Observer       `group:"observers"`
}

// New builds the graph for cfg, which must already be validated. In
// host mode the duplicate-observer guard runs until Close.
func New(cfg *config.Config, options Options) (*Container, error) {
	if _, err := ParseMode(string(options.Mode)); err != nil {
		return nil, err
	}
	d := dig.New()

	providers := []any{
		func() *config.Config { return cfg },
		func() Options { return options },
		newLogger,
		newPeerConfig,
		listening.NewSupply[channel.MessageListener],
		listening.NewSupply[channel.RequestListener],
		computed.NewObserverSet,
	}
	for _, provider := range providers {
		if err := d.Provide(provider); err != nil {
			return nil, err
		}
	}
	if options.Mode == ModeHost {
		if err := provideHost(d); err != nil {
			return nil, err
		}
	}

	result := &Container{mode: options.Mode, config: cfg}
	err := d.Invoke(func(
		logger *slog.Logger,
		peer transport.PeerConfig,
		in contributions,
	) error {
		result.logger = logger
		result.peer = peer
		result.messages = in.Messages
		result.requests = in.Requests
		result.observers = in.Observers
		return result.register(in)
	})
	if err != nil {
		result.Close()
		return nil, err
	}

	if options.Mode == ModeHost {
		if err := d.Invoke(func(clients *computed.Value[[]string]) { result.clients = clients }); err != nil {
			result.Close()
			return nil, err
		}
		cancel, err := result.observers.Guard()
		if err != nil {
			result.Close()
			return nil, err
		}
		result.cancelGuard = cancel
	}
	return result, nil
}

func provideHost(d *dig.Container) error {
	if err := d.Provide(channels.NewBuildVersionResponder, dig.Group("requests")); err != nil {
		return err
	}
	if err := d.Provide(newSystemProxyResponder, dig.Group("requests")); err != nil {
		return err
	}
	if err := d.Provide(newConnectedClients); err != nil {
		return err
	}
	return d.Provide(newConnectedClientsObserver, dig.Group("observers"))
}

func (c *Container) register(in contributions) error {
	for _, listener := range in.MessageListeners {
		token, err := in.Messages.Add(listener)
		if err != nil {
			return fmt.Errorf("registering message listener %s: %w", listener.ID, err)
		}
		c.tokens = append(c.tokens, token)
	}
	for _, listener := range in.RequestListeners {
		token, err := in.Requests.Add(listener)
		if err != nil {
			return fmt.Errorf("registering responder for %s: %w", listener.Channel.ID(), err)
		}
		c.tokens = append(c.tokens, token)
	}
	for _, observer := range in.ObserverList {
		token, err := in.Observers.Register(observer)
		if err != nil {
			return fmt.Errorf("registering observer for %s: %w", observer.Key(), err)
		}
		c.tokens = append(c.tokens, token)
	}
	return nil
}

// Close stops the guard and withdraws everything New registered.
func (c *Container) Close() error {
	if c.cancelGuard != nil {
		c.cancelGuard()
		c.cancelGuard = nil
	}
	var errs []error
	for _, token := range c.tokens {
		errs = append(errs, token.Remove())
	}
	c.tokens = nil
	return errors.Join(errs...)
}

func newLogger(cfg *config.Config, options Options) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	output := options.LogOutput
	if output == nil {
		output = os.Stderr
	}
	handlerOptions := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch resolveFormat(cfg.Logging.Format, output) {
	case "json":
		handler = slog.NewJSONHandler(output, handlerOptions)
	default:
		handler = slog.NewTextHandler(output, handlerOptions)
	}
	return slog.New(handler).With("mode", string(options.Mode)), nil
}

// resolveFormat turns the "auto" log format into text for terminals
// and json for everything else.
func resolveFormat(format string, output io.Writer) string {
	if format != "auto" {
		return format
	}
	if file, ok := output.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return "text"
	}
	return "json"
}

func newPeerConfig(cfg *config.Config, options Options, logger *slog.Logger) (transport.PeerConfig, error) {
	requestTimeout, err := cfg.RequestTimeout()
	if err != nil {
		return transport.PeerConfig{}, err
	}
	handshakeTimeout, err := cfg.HandshakeTimeout()
	if err != nil {
		return transport.PeerConfig{}, err
	}
	compression, err := cfg.Compression()
	if err != nil {
		return transport.PeerConfig{}, err
	}
	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("ipcbridge-%s-%d", options.Mode, os.Getpid())
	}
	return transport.PeerConfig{
		Name:                 name,
		Compression:          compression,
		CompressionThreshold: cfg.Transport.CompressionThreshold,
		RequestTimeout:       requestTimeout,
		HandshakeTimeout:     handshakeTimeout,
		Clock:                options.Clock,
		Logger:               logger,
	}, nil
}

func newSystemProxyResponder(options Options) channel.RequestListener {
	return channels.NewSystemProxyResponder(options.ResolveProxy)
}

func newConnectedClients() *computed.Value[[]string] {
	return computed.NewValue[[]string](nil)
}

func newConnectedClientsObserver(clients *computed.Value[[]string]) computed.Observer {
	return computed.NewChannelObserver(channels.ConnectedClients, clients)
}
