//go:build linux

package transport

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/touka-aoi/low-level-relay/core/endpoint"
	"github.com/touka-aoi/low-level-relay/core/engine"
	rerr "github.com/touka-aoi/low-level-relay/core/errors"
	"github.com/touka-aoi/low-level-relay/core/socket"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// Conn is a connected client endpoint, stream or datagram, with its own
// multiplexer for bounded waits.
type Conn struct {
	ep     endpoint.Endpoint
	remote netip.AddrPort
	mux    *engine.Multiplexer
	watch  *endpoint.Set
}

// Resolve looks host and port up with the platform resolver and returns the
// first address.
func Resolve(network, host, port string) (netip.AddrPort, error) {
	address := net.JoinHostPort(host, port)
	switch network {
	case "tcp":
		addr, err := net.ResolveTCPAddr(network, address)
		if err != nil {
			return netip.AddrPort{}, rerr.NewSetupError("resolve", err)
		}
		return addr.AddrPort(), nil
	case "udp":
		addr, err := net.ResolveUDPAddr(network, address)
		if err != nil {
			return netip.AddrPort{}, rerr.NewSetupError("resolve", err)
		}
		return addr.AddrPort(), nil
	}
	return netip.AddrPort{}, rerr.NewSetupError("resolve", fmt.Errorf("%w: %q", rerr.ErrUnsupportedProtocol, network))
}

// Dial resolves host and port, creates a socket and connects it. For "udp"
// connect only fixes the destination.
func Dial(network, host, port string) (*Conn, error) {
	remote, err := Resolve(network, host, port)
	if err != nil {
		return nil, err
	}
	return DialAddr(network, remote)
}

func DialAddr(network string, remote netip.AddrPort) (*Conn, error) {
	family := socket.FamilyOf(remote.Addr())

	var s *socket.Socket
	var err error
	switch network {
	case "tcp":
		s, err = socket.CreateTCPSocket(family)
	case "udp":
		s, err = socket.CreateUDPSocket(family)
	default:
		err = rerr.NewSetupError("socket", fmt.Errorf("%w: %q", rerr.ErrUnsupportedProtocol, network))
	}
	if err != nil {
		return nil, err
	}

	if err := s.Connect(remote); err != nil {
		s.Close()
		return nil, err
	}
	slog.Debug("Connected", "network", network, "localAddr", s.LocalAddr, "remoteAddr", remote)

	mux, err := engine.NewMultiplexer()
	if err != nil {
		s.Close()
		return nil, err
	}

	ep := s.Endpoint(endpoint.RoleClient)
	watch := endpoint.NewSet()
	watch.Add(ep)

	return &Conn{ep: ep, remote: remote, mux: mux, watch: watch}, nil
}

func (c *Conn) Endpoint() endpoint.Endpoint {
	return c.ep
}

func (c *Conn) RemoteAddr() netip.AddrPort {
	return c.remote
}

// Send writes b in one blocking call. A short count is returned as is.
func (c *Conn) Send(b []byte) (int, error) {
	n, err := unix.SendmsgN(c.ep.Fd(), b, nil, nil, unix.MSG_NOSIGNAL)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Receive reads up to len(b) bytes. Call it after WaitReadable reported the
// connection ready, otherwise it blocks.
func (c *Conn) Receive(b []byte) (int, error) {
	n, err := unix.Read(c.ep.Fd(), b)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// WaitReadable waits up to timeout for the connection to become readable.
// extra endpoints are watched too, which only shortens the wait; the result
// reports the connection alone.
func (c *Conn) WaitReadable(timeout time.Duration, extra ...endpoint.Endpoint) (bool, error) {
	for _, ep := range extra {
		c.watch.Add(ep)
	}
	defer func() {
		for _, ep := range extra {
			c.watch.Remove(ep)
		}
	}()

	ready, err := c.mux.Wait(c.watch, timeout)
	if err != nil {
		return false, err
	}
	for _, ep := range ready {
		if ep == c.ep {
			return true, nil
		}
	}
	return false, nil
}

func (c *Conn) Close() error {
	return multierr.Combine(c.ep.Close(), c.mux.Close())
}
