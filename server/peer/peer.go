//go:build linux

package peer

import (
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/touka-aoi/low-level-relay/core/endpoint"
)

// Peer is one accepted stream connection, from accept to close.
type Peer struct {
	SessionID   string
	ep          endpoint.Endpoint
	localAddr   netip.AddrPort
	remoteAddr  netip.AddrPort
	status      atomic.Int32
	ConnectedAt time.Time
	BytesIn     atomic.Int64
}

func NewPeer(ep endpoint.Endpoint, localAddr netip.AddrPort, remoteAddr netip.AddrPort) *Peer {
	sessionID := uuid.NewString()
	return &Peer{
		SessionID:   sessionID,
		ep:          ep,
		localAddr:   localAddr,
		remoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
	}
}

func (p *Peer) Fd() int {
	return p.ep.Fd()
}

func (p *Peer) Endpoint() endpoint.Endpoint {
	return p.ep
}

func (p *Peer) LocalAddr() netip.AddrPort {
	return p.localAddr
}

func (p *Peer) RemoteAddr() netip.AddrPort {
	return p.remoteAddr
}

func (p *Peer) Status() string {
	s := p.status.Load()
	return ConnState(s).String()
}

// Close closes the socket once. Later calls are no-ops.
func (p *Peer) Close() error {
	if !p.status.CompareAndSwap(int32(StateConnected), int32(StateClosed)) {
		return nil
	}
	return p.ep.Close()
}

var _ Endpoint = (*Peer)(nil)
