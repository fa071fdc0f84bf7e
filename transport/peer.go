// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/ipcbridge/lib/channel"
	"github.com/bureau-foundation/ipcbridge/lib/clock"
	"github.com/bureau-foundation/ipcbridge/lib/codec"
	"github.com/bureau-foundation/ipcbridge/lib/netutil"
	"github.com/bureau-foundation/ipcbridge/lib/version"
)

// Compile-time interface check.
var _ Adapter = (*Peer)(nil)

const (
	defaultHandshakeTimeout     = 10 * time.Second
	defaultCompressionThreshold = 4096

	// messageQueueDepth is how many inbound messages may wait for the
	// delivery goroutine before the read loop stops reading.
	messageQueueDepth = 256

	// outboundQueueDepth is how many frames may wait for the write
	// goroutine. A message that finds the queue full is dropped.
	outboundQueueDepth = 256
)

// PeerConfig configures one end of a peer connection.
type PeerConfig struct {
	// Name is announced to the other side in the hello frame and shows
	// up there as channel.Origin.Peer.
	Name string

	// Compression is applied to payloads of at least
	// CompressionThreshold bytes. Zero threshold means the default.
	Compression          codec.Compression
	CompressionThreshold int

	// RequestTimeout bounds how long Request waits for a response.
	// Zero means only the caller's context applies.
	RequestTimeout time.Duration

	// HandshakeTimeout bounds the hello exchange. Zero means the
	// default of ten seconds.
	HandshakeTimeout time.Duration

	// Clock drives request and handshake timeouts. Nil means the real
	// clock.
	Clock clock.Clock

	// Logger receives connection lifecycle and dropped-delivery
	// events. Nil discards them.
	Logger *slog.Logger
}

func (c PeerConfig) withDefaults() PeerConfig {
	if c.CompressionThreshold <= 0 {
		c.CompressionThreshold = defaultCompressionThreshold
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Peer runs the channel protocol over one connection. Inbound messages
// are delivered in order on a dedicated goroutine, so a message handler
// may itself send or request. Each inbound request runs on its own
// goroutine.
type Peer struct {
	conn     net.Conn
	config   PeerConfig
	logger   *slog.Logger
	registry *registry

	remoteName    string
	remoteVersion string
	credentials   *Credentials

	// encoder is used by the handshake and afterwards only by
	// writeLoop.
	encoder  *codec.Encoder
	outbound chan frame

	pendingMu sync.Mutex
	pending   map[string]chan frame
	closed    bool

	messages chan frame

	// handlerContext is handed to request handlers and cancelled when
	// the peer closes.
	handlerContext context.Context
	cancelHandlers context.CancelFunc

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewPeer exchanges hello frames over conn and starts serving it. On
// failure conn is closed. ctx bounds only the handshake.
func NewPeer(ctx context.Context, conn net.Conn, config PeerConfig) (*Peer, error) {
	config = config.withDefaults()
	handlerContext, cancelHandlers := context.WithCancel(context.Background())

	p := &Peer{
		conn:           conn,
		config:         config,
		registry:       newRegistry(),
		encoder:        codec.NewEncoder(conn),
		pending:        make(map[string]chan frame),
		messages:       make(chan frame, messageQueueDepth),
		outbound:       make(chan frame, outboundQueueDepth),
		handlerContext: handlerContext,
		cancelHandlers: cancelHandlers,
		done:           make(chan struct{}),
	}

	decoder := codec.NewDecoder(conn)
	hello, err := p.handshake(ctx, decoder)
	if err != nil {
		cancelHandlers()
		conn.Close()
		return nil, err
	}
	p.remoteName = hello.Peer
	p.remoteVersion = hello.Version
	p.logger = config.Logger.With("peer", hello.Peer)

	if !version.SameRelease(hello.Version, version.Short()) {
		p.logger.Warn("peer runs a different release",
			"local_version", version.Short(),
			"peer_version", hello.Version,
		)
	}
	p.logger.Debug("peer connected", "peer_version", hello.Version)

	go p.readLoop(decoder)
	go p.deliverLoop()
	go p.writeLoop()
	return p, nil
}

// handshake writes the local hello and reads the remote one. The write
// runs concurrently with the read so that synchronous connections such
// as net.Pipe do not deadlock.
func (p *Peer) handshake(ctx context.Context, decoder *codec.Decoder) (frame, error) {
	written := make(chan error, 1)
	go func() {
		written <- p.encoder.Encode(frame{Type: frameHello, Peer: p.config.Name, Version: version.Short()})
	}()

	received := make(chan error, 1)
	var hello frame
	go func() {
		received <- decoder.Decode(&hello)
	}()

	select {
	case err := <-received:
		if err != nil {
			return frame{}, fmt.Errorf("reading hello: %w", err)
		}
	case <-p.config.Clock.After(p.config.HandshakeTimeout):
		return frame{}, fmt.Errorf("no hello within %v", p.config.HandshakeTimeout)
	case <-ctx.Done():
		return frame{}, ctx.Err()
	}

	if hello.Type != frameHello {
		return frame{}, fmt.Errorf("expected hello frame, got frame type %d", hello.Type)
	}
	if err := <-written; err != nil {
		return frame{}, fmt.Errorf("writing hello: %w", err)
	}
	return hello, nil
}

// RemoteName returns the name the other side announced.
func (p *Peer) RemoteName() string { return p.remoteName }

// RemoteVersion returns the build version the other side announced.
func (p *Peer) RemoteVersion() string { return p.remoteVersion }

// Credentials returns the kernel credentials of the process on the
// other end of a unix socket accepted by a Listener, if known.
func (p *Peer) Credentials() (Credentials, bool) {
	if p.credentials == nil {
		return Credentials{}, false
	}
	return *p.credentials, true
}

// Done is closed once the peer has shut down.
func (p *Peer) Done() <-chan struct{} { return p.done }

// Err returns why the peer shut down: nil for Close or an orderly
// disconnect, the read error otherwise. Only meaningful after Done.
func (p *Peer) Err() error {
	select {
	case <-p.done:
		return p.closeErr
	default:
		return nil
	}
}

// Close shuts the connection down. Pending and future requests fail
// with ErrPeerClosed; request handlers still running see their context
// cancelled.
func (p *Peer) Close() error {
	p.shutdown(nil)
	return nil
}

func (p *Peer) shutdown(reason error) {
	p.closeOnce.Do(func() {
		p.pendingMu.Lock()
		p.closed = true
		p.pendingMu.Unlock()

		p.closeErr = reason
		close(p.done)
		p.cancelHandlers()
		p.conn.Close()
	})
}

func (p *Peer) isClosed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *Peer) EnlistMessage(listener channel.MessageListener) (Disposer, error) {
	return p.registry.enlistMessage(listener)
}

func (p *Peer) EnlistRequest(listener channel.RequestListener) (Disposer, error) {
	return p.registry.enlistRequest(listener)
}

// SendMessage queues a message frame and returns without waiting for
// the write. A message that cannot be queued, because the peer is
// closed or the other side has stopped reading long enough to fill the
// outbound queue, is logged and dropped. Messages still queued when the
// peer closes are dropped too.
func (p *Peer) SendMessage(channelID string, payload []byte) {
	if p.isClosed() {
		p.logger.Debug("dropping message on closed peer", "channel", channelID)
		return
	}
	f, err := p.pack(frame{Type: frameMessage, Channel: channelID}, payload)
	if err != nil {
		p.logger.Warn("dropping message", "channel", channelID, "error", err)
		return
	}
	select {
	case p.outbound <- f:
	default:
		p.logger.Warn("dropping message, outbound queue full", "channel", channelID)
	}
}

// Request sends payload to the responder of channelID on the other side
// and waits for its response.
func (p *Peer) Request(ctx context.Context, channelID string, payload []byte) ([]byte, error) {
	id := uuid.NewString()
	reply := make(chan frame, 1)

	p.pendingMu.Lock()
	if p.closed {
		p.pendingMu.Unlock()
		return nil, fmt.Errorf("request on channel %q: %w", channelID, ErrPeerClosed)
	}
	p.pending[id] = reply
	p.pendingMu.Unlock()
	defer p.forget(id)

	f, err := p.pack(frame{Type: frameRequest, Channel: channelID, ID: id}, payload)
	if err != nil {
		return nil, fmt.Errorf("sending request on channel %q: %w", channelID, err)
	}

	var timeout <-chan time.Time
	if p.config.RequestTimeout > 0 {
		timeout = p.config.Clock.After(p.config.RequestTimeout)
	}

	// Unlike a message, a request waits for room in the outbound queue.
	select {
	case p.outbound <- f:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, fmt.Errorf("request on channel %q: not sent within %v: %w", channelID, p.config.RequestTimeout, ErrRequestTimeout)
	case <-p.done:
		return nil, fmt.Errorf("request on channel %q: %w", channelID, ErrPeerClosed)
	}

	select {
	case response := <-reply:
		return p.result(channelID, response)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, fmt.Errorf("request on channel %q: no response within %v: %w", channelID, p.config.RequestTimeout, ErrRequestTimeout)
	case <-p.done:
		// A response that raced the shutdown still wins.
		select {
		case response := <-reply:
			return p.result(channelID, response)
		default:
			return nil, fmt.Errorf("request on channel %q: %w", channelID, ErrPeerClosed)
		}
	}
}

func (p *Peer) forget(id string) {
	p.pendingMu.Lock()
	delete(p.pending, id)
	p.pendingMu.Unlock()
}

func (p *Peer) result(channelID string, response frame) ([]byte, error) {
	if response.Error != nil {
		return nil, responseError(channelID, response.Error)
	}
	payload, err := unpack(response)
	if err != nil {
		return nil, fmt.Errorf("response on channel %q: %w", channelID, err)
	}
	return payload, nil
}

// pack attaches payload to f, compressing it when configured.
func (p *Peer) pack(f frame, payload []byte) (frame, error) {
	f.Payload = payload
	if p.config.Compression != codec.CompressionNone && len(payload) >= p.config.CompressionThreshold {
		compressed, err := codec.Compress(payload, p.config.Compression)
		switch {
		case err == nil:
			f.Payload = compressed
			f.Compression = p.config.Compression
			f.Size = len(payload)
		case !errors.Is(err, codec.ErrIncompressible):
			return frame{}, err
		}
	}
	return f, nil
}

// writeLoop is the only writer to the connection after the handshake,
// so frames go out in the order they were queued.
func (p *Peer) writeLoop() {
	for {
		select {
		case f := <-p.outbound:
			if err := p.encoder.Encode(f); err != nil {
				if p.isClosed() || netutil.IsExpectedCloseError(err) {
					p.shutdown(nil)
				} else {
					p.logger.Error("writing frame", "error", err)
					p.shutdown(fmt.Errorf("writing frame: %w", err))
				}
				return
			}
		case <-p.done:
			return
		}
	}
}

func unpack(f frame) ([]byte, error) {
	if f.Compression == codec.CompressionNone {
		return f.Payload, nil
	}
	if f.Size < 0 || f.Size > maxPayloadSize {
		return nil, fmt.Errorf("frame claims %d uncompressed bytes (limit %d)", f.Size, maxPayloadSize)
	}
	return codec.Decompress(f.Payload, f.Compression, f.Size)
}

func (p *Peer) readLoop(decoder *codec.Decoder) {
	for {
		var f frame
		if err := decoder.Decode(&f); err != nil {
			if p.isClosed() || netutil.IsExpectedCloseError(err) {
				p.logger.Debug("peer disconnected")
				p.shutdown(nil)
			} else {
				p.logger.Error("reading frame", "error", err)
				p.shutdown(fmt.Errorf("reading frame: %w", err))
			}
			return
		}

		switch f.Type {
		case frameMessage:
			select {
			case p.messages <- f:
			case <-p.done:
				return
			}
		case frameRequest:
			p.serveRequest(f)
		case frameResponse:
			p.completeRequest(f)
		default:
			p.logger.Warn("ignoring unexpected frame", "type", f.Type)
		}
	}
}

func (p *Peer) deliverLoop() {
	origin := channel.Origin{Peer: p.remoteName}
	for {
		select {
		case f := <-p.messages:
			payload, err := unpack(f)
			if err != nil {
				p.logger.Warn("dropping undecodable message", "channel", f.Channel, "error", err)
				continue
			}
			for _, handler := range p.registry.messageHandlers(f.Channel) {
				if err := handler(payload, origin); err != nil {
					p.logger.Warn("message handler failed", "channel", f.Channel, "error", err)
				}
			}
		case <-p.done:
			return
		}
	}
}

func (p *Peer) serveRequest(f frame) {
	handler, ok := p.registry.responder(f.Channel)
	if !ok {
		p.logger.Debug("request for channel without responder", "channel", f.Channel)
		// Off the read goroutine, which must keep reading while the
		// outbound queue is full.
		go p.respond(frame{Type: frameResponse, ID: f.ID, Error: &frameError{
			Code:    codeNoResponder,
			Message: (&channel.NoResponderError{ChannelID: f.Channel}).Error(),
		}}, nil)
		return
	}

	go func() {
		payload, err := unpack(f)
		var response []byte
		if err == nil {
			response, err = handler(p.handlerContext, payload)
		}
		if err != nil {
			p.logger.Debug("request handler failed", "channel", f.Channel, "error", err)
			p.respond(frame{Type: frameResponse, ID: f.ID, Error: &frameError{
				Code:    codeHandler,
				Message: err.Error(),
			}}, nil)
			return
		}
		p.respond(frame{Type: frameResponse, ID: f.ID}, response)
	}()
}

func (p *Peer) respond(f frame, payload []byte) {
	packed, err := p.pack(f, payload)
	if err != nil {
		p.logger.Warn("packing response", "request_id", f.ID, "error", err)
		packed = frame{Type: frameResponse, ID: f.ID, Error: &frameError{Code: codeHandler, Message: err.Error()}}
	}
	select {
	case p.outbound <- packed:
	case <-p.done:
	}
}

func (p *Peer) completeRequest(f frame) {
	p.pendingMu.Lock()
	reply, ok := p.pending[f.ID]
	delete(p.pending, f.ID)
	p.pendingMu.Unlock()

	if !ok {
		p.logger.Debug("discarding response to abandoned request", "request_id", f.ID)
		return
	}
	reply <- f
}
