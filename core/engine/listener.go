//go:build linux

package engine

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/touka-aoi/low-level-relay/core/endpoint"
	rerr "github.com/touka-aoi/low-level-relay/core/errors"
	"github.com/touka-aoi/low-level-relay/core/socket"
	"golang.org/x/sys/unix"
)

type Listener interface {
	Endpoint() endpoint.Endpoint
	Addr() netip.AddrPort
	Close() error
}

type TCPListener struct {
	socket *socket.Socket
}

type UDPListener struct {
	socket *socket.Socket
}

// Listen creates and binds a listening endpoint. Every failure is a
// SetupError and the half-built socket is closed.
func Listen(protocol, externalAddress string, listenMaxConnection int) (Listener, error) {
	addr, err := netip.ParseAddrPort(externalAddress)
	if err != nil {
		return nil, rerr.NewSetupError("resolve", err)
	}
	family := socket.FamilyOf(addr.Addr())

	switch protocol {
	case "tcp":
		s, err := socket.CreateTCPSocket(family)
		if err != nil {
			return nil, err
		}
		if err := setup(s, addr, func() error { return s.Listen(listenMaxConnection) }); err != nil {
			return nil, err
		}
		return &TCPListener{socket: s}, nil
	case "udp":
		s, err := socket.CreateUDPSocket(family)
		if err != nil {
			return nil, err
		}
		if err := setup(s, addr, nil); err != nil {
			return nil, err
		}
		return &UDPListener{socket: s}, nil
	}

	return nil, rerr.NewSetupError("socket", fmt.Errorf("%w: %q", rerr.ErrUnsupportedProtocol, protocol))
}

func setup(s *socket.Socket, addr netip.AddrPort, listen func() error) error {
	steps := []func() error{
		s.ReuseAddr,
		s.SetNonblock,
		func() error { return s.Bind(addr) },
	}
	if listen != nil {
		steps = append(steps, listen)
	}
	for _, step := range steps {
		if err := step(); err != nil {
			s.Close()
			return err
		}
	}
	return nil
}

func (l *TCPListener) Close() error {
	err := l.socket.Close()
	if err != nil {
		return err
	}
	return nil
}

func (l *TCPListener) Endpoint() endpoint.Endpoint {
	return l.socket.Endpoint(endpoint.RoleListening)
}

func (l *TCPListener) Addr() netip.AddrPort {
	return l.socket.LocalAddr
}

// Accept takes one pending connection off the listener. Spurious readiness
// is reported as ErrWouldBlock.
func (l *TCPListener) Accept() (*socket.Socket, netip.AddrPort, error) {
	s, remote, err := l.socket.Accept()
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
		return nil, netip.AddrPort{}, rerr.ErrWouldBlock
	}
	return s, remote, err
}

func (l *UDPListener) Close() error {
	err := l.socket.Close()
	if err != nil {
		return err
	}
	return nil
}

func (l *UDPListener) Endpoint() endpoint.Endpoint {
	return l.socket.Endpoint(endpoint.RoleListening)
}

func (l *UDPListener) Addr() netip.AddrPort {
	return l.socket.LocalAddr
}
