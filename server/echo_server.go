//go:build linux

package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/touka-aoi/low-level-relay/core/endpoint"
	"github.com/touka-aoi/low-level-relay/core/engine"
	rerr "github.com/touka-aoi/low-level-relay/core/errors"
	"github.com/touka-aoi/low-level-relay/core/event"
	"github.com/touka-aoi/low-level-relay/middleware"
	"github.com/touka-aoi/low-level-relay/transport"
)

// EchoServer answers every datagram to its sender after running it through
// the pipeline, ASCII uppercase by default. It keeps no per-client state.
type EchoServer struct {
	*NetworkServer
}

func NewEchoServer(config Config, opts ...Option) *EchoServer {
	if config.Protocol == "" {
		config.Protocol = "udp"
	}
	es := &EchoServer{}
	defaults := []Option{WithPipeline(middleware.NewPipeline().Use(middleware.Logging).Use(middleware.Uppercase))}
	es.NetworkServer = newNetworkServer(config, es, append(defaults, opts...)...)
	return es
}

func (es *EchoServer) handleEvent(ctx context.Context, netEvent *engine.NetEvent) error {
	if netEvent.EventType != event.EVENT_TYPE_RECVMSG {
		slog.DebugContext(ctx, "Ignoring event", "event", netEvent.EventType, "fd", netEvent.Endpoint.Fd())
		return nil
	}
	return es.handleRecvMsg(ctx, netEvent.Endpoint)
}

func (es *EchoServer) handleRecvMsg(ctx context.Context, ep endpoint.Endpoint) error {
	n, from, err := transport.ReceiveFrom(ep, es.buf)
	if errors.Is(err, rerr.ErrWouldBlock) {
		return nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to receive datagram", "error", err)
		return &rerr.DatagramReceiveError{Err: err}
	}
	if n <= 0 {
		slog.ErrorContext(ctx, "Received empty datagram", "from", from)
		return &rerr.DatagramReceiveError{Err: rerr.ErrPeerClosed}
	}

	es.metrics.Messages.Inc()
	es.metrics.BytesReceived.Add(float64(n))

	data, err := es.runPipeline(es.buf[:n], ep, from)
	if err != nil {
		slog.ErrorContext(ctx, "Pipeline execution failed", "from", from, "error", err)
		return nil
	}

	sent, err := transport.SendTo(ep, data, from)
	es.metrics.BytesSent.Add(float64(sent))
	if err != nil || sent < len(data) {
		es.metrics.ShortSends.Inc()
		slog.DebugContext(ctx, "Short send", "to", from, "sent", sent, "want", len(data), "error", err)
	}
	return nil
}

// The listener is the only member.
func (es *EchoServer) closeMember(ep endpoint.Endpoint) error {
	return ep.Close()
}
