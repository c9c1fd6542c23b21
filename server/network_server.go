//go:build linux

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"slices"
	"sync/atomic"

	"github.com/touka-aoi/low-level-relay/core/endpoint"
	"github.com/touka-aoi/low-level-relay/core/engine"
	"github.com/touka-aoi/low-level-relay/middleware"
	"go.uber.org/multierr"
)

var (
	ErrNotListening     = errors.New("server is not listening")
	ErrAlreadyListening = errors.New("server is already listening")
)

type Option func(*NetworkServer)

func WithMetrics(m *Metrics) Option {
	return func(ns *NetworkServer) {
		ns.metrics = m
	}
}

// WithPipeline replaces the server's default pipeline.
func WithPipeline(p *middleware.Pipeline) Option {
	return func(ns *NetworkServer) {
		ns.pipeline = p
	}
}

// eventHandler is what a concrete server does with one classified event.
// A returned error ends Serve.
type eventHandler interface {
	handleEvent(ctx context.Context, netEvent *engine.NetEvent) error
	// closeMember releases a non-listener member during drain.
	closeMember(ep endpoint.Endpoint) error
}

// NetworkServer owns the lifecycle shared by the relay and echo servers:
// listen, the single-threaded readiness loop and the drain on shutdown.
type NetworkServer struct {
	mux      *engine.Multiplexer
	listener engine.Listener
	config   Config
	watch    *endpoint.Set
	pipeline *middleware.Pipeline
	metrics  *Metrics
	status   atomic.Int32
	buf      []byte

	handler eventHandler
}

func newNetworkServer(config Config, handler eventHandler, opts ...Option) *NetworkServer {
	config = config.withDefaults()
	ns := &NetworkServer{
		config:  config,
		watch:   endpoint.NewSet(),
		buf:     make([]byte, config.ReadBufferSize),
		handler: handler,
	}
	for _, opt := range opts {
		opt(ns)
	}
	if ns.metrics == nil {
		ns.metrics = NewMetrics(nil, config.Protocol)
	}
	return ns
}

func (ns *NetworkServer) Listen(ctx context.Context) error {
	if ns.listener != nil {
		return ErrAlreadyListening
	}
	addr := ns.config.ListenAddress()
	listener, err := engine.Listen(ns.config.Protocol, addr, ns.config.Backlog)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to listen", "address", addr, "error", err)
		return err
	}

	mux, err := engine.NewMultiplexer()
	if err != nil {
		listener.Close()
		return err
	}

	ns.listener = listener
	ns.mux = mux
	ns.watch.Add(listener.Endpoint())

	slog.InfoContext(ctx, "Listening on", "protocol", ns.config.Protocol, "address", listener.Addr())
	return nil
}

// Addr is the bound address, with the kernel-chosen port when Port was 0.
func (ns *NetworkServer) Addr() netip.AddrPort {
	if ns.listener == nil {
		return netip.AddrPort{}
	}
	return ns.listener.Addr()
}

func (ns *NetworkServer) Status() SrvStatus {
	return SrvStatus(ns.status.Load())
}

func (ns *NetworkServer) setStatus(s SrvStatus) {
	ns.status.Store(int32(s))
}

// Serve runs the loop until ctx is cancelled or a fatal error occurs. Either
// way every member of the endpoint set is closed before it returns. An
// orderly shutdown returns nil.
func (ns *NetworkServer) Serve(ctx context.Context) error {
	if ns.listener == nil {
		return ErrNotListening
	}
	ns.setStatus(Running)

	stop := context.AfterFunc(ctx, func() {
		if err := ns.mux.Wake(); err != nil && !errors.Is(err, engine.ErrMultiplexerClosed) {
			slog.WarnContext(ctx, "Failed to wake multiplexer", "error", err)
		}
	})
	defer stop()

	for {
		ready, err := ns.mux.Wait(ns.watch, engine.Infinite)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to wait event", "error", err)
			return ns.shutdown(ctx, err)
		}

		if ns.Status() == Running && ctx.Err() != nil {
			return ns.shutdown(ctx, nil)
		}

		for netEvent := range slices.Values(engine.Classify(ready)) {
			// an earlier event in this batch may have removed it
			if !ns.watch.Contains(netEvent.Endpoint) {
				continue
			}
			if err := ns.handler.handleEvent(ctx, netEvent); err != nil {
				return ns.shutdown(ctx, err)
			}
		}
	}
}

func (ns *NetworkServer) shutdown(ctx context.Context, cause error) error {
	ns.setStatus(Stopping)
	slog.InfoContext(ctx, "Server draining", "members", ns.watch.Len())

	if err := ns.drain(); err != nil {
		slog.WarnContext(ctx, "Failed to close endpoints", "error", err)
	}

	ns.setStatus(Stopped)
	slog.InfoContext(ctx, "Server stopped")
	return cause
}

func (ns *NetworkServer) drain() error {
	var err error
	for _, ep := range ns.watch.Members() {
		ns.watch.Remove(ep)
		if ep.IsListener() {
			err = multierr.Append(err, ns.listener.Close())
			continue
		}
		err = multierr.Append(err, ns.handler.closeMember(ep))
	}
	return multierr.Append(err, ns.mux.Close())
}

// runPipeline passes data through the configured middlewares and returns
// what should be sent.
func (ns *NetworkServer) runPipeline(data []byte, ep endpoint.Endpoint, remote netip.AddrPort) ([]byte, error) {
	if ns.pipeline == nil || ns.pipeline.Len() == 0 {
		return data, nil
	}
	mctx := middleware.NewContext(data, ep, remote)
	if err := ns.pipeline.Execute(mctx); err != nil {
		return nil, err
	}
	return mctx.Data, nil
}
