//go:build linux

package socket

import (
	"log/slog"
	"net/netip"

	"github.com/touka-aoi/low-level-relay/core/endpoint"
	rerr "github.com/touka-aoi/low-level-relay/core/errors"
	"golang.org/x/sys/unix"
)

type Socket struct {
	Fd        int
	Family    endpoint.Family
	Kind      endpoint.Kind
	LocalAddr netip.AddrPort
}

// FamilyOf picks the socket family for addr. 4in6 addresses are treated as IPv4.
func FamilyOf(addr netip.Addr) endpoint.Family {
	if addr.Unmap().Is4() {
		return endpoint.FamilyIPv4
	}
	return endpoint.FamilyIPv6
}

func CreateTCPSocket(family endpoint.Family) (*Socket, error) {
	fd, err := unix.Socket(family.Domain(), unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		slog.Error("Failed to create socket", "errno", err, "err", err.Error())
		return nil, rerr.NewSetupError("socket", err)
	}

	return &Socket{Fd: fd, Family: family, Kind: endpoint.KindStream}, nil
}

func CreateUDPSocket(family endpoint.Family) (*Socket, error) {
	fd, err := unix.Socket(family.Domain(), unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, rerr.NewSetupError("socket", err)
	}

	return &Socket{Fd: fd, Family: family, Kind: endpoint.KindDatagram}, nil
}

// ReuseAddr sets SO_REUSEADDR so a restarted server can rebind the fixed port.
func (s *Socket) ReuseAddr() error {
	if err := unix.SetsockoptInt(s.Fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		slog.Error("Failed to set socket option", "errno", err, "err", err.Error())
		return rerr.NewSetupError("setsockopt", err)
	}
	return nil
}

func (s *Socket) SetNonblock() error {
	if err := unix.SetNonblock(s.Fd, true); err != nil {
		return rerr.NewSetupError("setsockopt", err)
	}
	return nil
}

// Bind attaches the socket to address and records the address the kernel
// actually assigned, so port 0 resolves to a real port.
func (s *Socket) Bind(address netip.AddrPort) error {
	// https://man7.org/linux/man-pages/man2/bind.2.html
	if err := unix.Bind(s.Fd, ToSockaddr(address, s.Family)); err != nil {
		return rerr.NewSetupError("bind", err)
	}

	local, err := LocalAddr(s.Fd)
	if err != nil {
		return rerr.NewSetupError("bind", err)
	}
	s.LocalAddr = local
	return nil
}

func (s *Socket) Listen(maxConn int) error {
	if err := unix.Listen(s.Fd, maxConn); err != nil {
		slog.Error("Failed to listen", "errno", err, "err", err.Error())
		return rerr.NewSetupError("listen", err)
	}
	return nil
}

func (s *Socket) Connect(address netip.AddrPort) error {
	if err := unix.Connect(s.Fd, ToSockaddr(address, s.Family)); err != nil {
		return rerr.NewSetupError("connect", err)
	}
	local, err := LocalAddr(s.Fd)
	if err == nil {
		s.LocalAddr = local
	}
	return nil
}

// Accept takes one pending connection. The peer socket stays in blocking
// mode; callers only read it after readiness.
func (s *Socket) Accept() (*Socket, netip.AddrPort, error) {
	fd, sa, err := unix.Accept4(s.Fd, unix.SOCK_CLOEXEC)
	if err != nil {
		return nil, netip.AddrPort{}, err
	}

	remote, err := FromSockaddr(sa)
	if err != nil {
		unix.Close(fd)
		return nil, netip.AddrPort{}, err
	}
	local, _ := LocalAddr(fd)

	return &Socket{Fd: fd, Family: FamilyOf(remote.Addr()), Kind: endpoint.KindStream, LocalAddr: local}, remote, nil
}

func (s *Socket) Endpoint(role endpoint.Role) endpoint.Endpoint {
	return endpoint.New(s.Fd, s.Family, s.Kind, role)
}

func (s *Socket) Close() error {
	return unix.Close(s.Fd)
}
