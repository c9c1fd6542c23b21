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
	"github.com/touka-aoi/low-level-relay/core/socket"
	"github.com/touka-aoi/low-level-relay/server/peer"
	"github.com/touka-aoi/low-level-relay/transport"
)

// RelayServer accepts stream peers and copies every chunk one peer sends to
// all the others.
type RelayServer struct {
	*NetworkServer
	connections map[int]*peer.Peer
}

func NewRelayServer(config Config, opts ...Option) *RelayServer {
	if config.Protocol == "" {
		config.Protocol = "tcp"
	}
	rs := &RelayServer{
		connections: make(map[int]*peer.Peer),
	}
	rs.NetworkServer = newNetworkServer(config, rs, opts...)
	return rs
}

// Peers returns a snapshot of the connected peers. Only safe once Serve has
// returned or from the serving goroutine.
func (rs *RelayServer) Peers() []*peer.Peer {
	peers := make([]*peer.Peer, 0, len(rs.connections))
	for _, ep := range rs.watch.Members() {
		if p, ok := rs.connections[ep.Fd()]; ok {
			peers = append(peers, p)
		}
	}
	return peers
}

func (rs *RelayServer) handleEvent(ctx context.Context, netEvent *engine.NetEvent) error {
	switch netEvent.EventType {
	case event.EVENT_TYPE_ACCEPT:
		return rs.handleAccept(ctx)
	case event.EVENT_TYPE_READ:
		rs.handleRead(ctx, netEvent.Endpoint)
	default:
		slog.DebugContext(ctx, "Ignoring event", "event", netEvent.EventType, "fd", netEvent.Endpoint.Fd())
	}
	return nil
}

func (rs *RelayServer) handleAccept(ctx context.Context) error {
	tcpListener, ok := rs.listener.(*engine.TCPListener)
	if !ok {
		return &rerr.AcceptError{Err: rerr.ErrUnsupportedProtocol}
	}

	s, remoteAddr, err := tcpListener.Accept()
	if err != nil {
		if errors.Is(err, rerr.ErrWouldBlock) {
			slog.DebugContext(ctx, "Spurious accept readiness")
			return nil
		}
		slog.ErrorContext(ctx, "Failed to accept", "error", err)
		return &rerr.AcceptError{Err: err}
	}

	ep := s.Endpoint(endpoint.RolePeer)
	connPeer := peer.NewPeer(ep, s.LocalAddr, remoteAddr)
	rs.connections[ep.Fd()] = connPeer
	rs.watch.Add(ep)

	rs.metrics.PeersAccepted.Inc()
	rs.metrics.PeersConnected.Inc()

	slog.InfoContext(ctx, "New connection from", "address", socket.FormatNumeric(remoteAddr), "fd", ep.Fd(), "sessionID", connPeer.SessionID)
	return nil
}

func (rs *RelayServer) handleRead(ctx context.Context, ep endpoint.Endpoint) {
	connPeer, ok := rs.connections[ep.Fd()]
	if !ok {
		slog.WarnContext(ctx, "Peer not found for read event", "fd", ep.Fd())
		return
	}

	n, err := transport.Receive(ep, rs.buf)
	if errors.Is(err, rerr.ErrWouldBlock) {
		return
	}
	if err != nil || n <= 0 {
		rs.removePeer(ctx, connPeer, err)
		return
	}

	connPeer.BytesIn.Add(int64(n))
	rs.metrics.Messages.Inc()
	rs.metrics.BytesReceived.Add(float64(n))
	slog.DebugContext(ctx, "Received data from peer", "fd", ep.Fd(), "dataLength", n)

	data, err := rs.runPipeline(rs.buf[:n], ep, connPeer.RemoteAddr())
	if err != nil {
		slog.ErrorContext(ctx, "Pipeline execution failed", "fd", ep.Fd(), "error", err)
		return
	}

	rs.broadcast(ctx, ep, data)
}

// broadcast sends data once to every peer except the sender. Failures and
// short sends are counted and dropped.
func (rs *RelayServer) broadcast(ctx context.Context, sender endpoint.Endpoint, data []byte) {
	for _, member := range rs.watch.Members() {
		if member.IsListener() || member == sender {
			continue
		}
		n, err := transport.Send(member, data)
		rs.metrics.BytesSent.Add(float64(n))
		if err != nil || n < len(data) {
			rs.metrics.ShortSends.Inc()
			slog.DebugContext(ctx, "Short send", "fd", member.Fd(), "sent", n, "want", len(data), "error", err)
		}
	}
}

func (rs *RelayServer) removePeer(ctx context.Context, connPeer *peer.Peer, cause error) {
	ep := connPeer.Endpoint()
	rs.watch.Remove(ep)
	delete(rs.connections, ep.Fd())

	if err := connPeer.Close(); err != nil {
		slog.WarnContext(ctx, "Failed to close peer", "fd", ep.Fd(), "error", err)
	}
	rs.metrics.PeersClosed.Inc()
	rs.metrics.PeersConnected.Dec()

	if cause == nil {
		cause = rerr.ErrPeerClosed
	}
	slog.InfoContext(ctx, "Connection closed", "fd", ep.Fd(), "sessionID", connPeer.SessionID, "remoteAddr", connPeer.RemoteAddr(), "bytesIn", connPeer.BytesIn.Load(), "reason", cause)
}

func (rs *RelayServer) closeMember(ep endpoint.Endpoint) error {
	connPeer, ok := rs.connections[ep.Fd()]
	if !ok {
		return ep.Close()
	}
	delete(rs.connections, ep.Fd())
	rs.metrics.PeersConnected.Dec()
	return connPeer.Close()
}
