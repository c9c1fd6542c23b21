//go:build linux

// Package transport holds the send and receive primitives shared by the
// relay server, the echo server and the burst client.
//
// Server-side sends are best-effort: one non-blocking attempt, never retried.
// A short count is returned as is and is not an error.
package transport

import (
	"errors"
	"net/netip"

	"github.com/touka-aoi/low-level-relay/core/endpoint"
	rerr "github.com/touka-aoi/low-level-relay/core/errors"
	"github.com/touka-aoi/low-level-relay/core/socket"
	"golang.org/x/sys/unix"
)

// Receive reads one chunk from a stream endpoint. Zero bytes with a nil
// error means the peer shut the connection down.
func Receive(ep endpoint.Endpoint, b []byte) (int, error) {
	n, err := unix.Read(ep.Fd(), b)
	if err != nil {
		return 0, mapErrno(err)
	}
	return n, nil
}

// Send writes b to a connected endpoint without blocking.
func Send(ep endpoint.Endpoint, b []byte) (int, error) {
	n, err := unix.SendmsgN(ep.Fd(), b, nil, nil, unix.MSG_NOSIGNAL|unix.MSG_DONTWAIT)
	if err != nil {
		return 0, mapErrno(err)
	}
	return n, nil
}

// ReceiveFrom reads one datagram and the address it came from. A datagram
// longer than b is truncated.
func ReceiveFrom(ep endpoint.Endpoint, b []byte) (int, netip.AddrPort, error) {
	n, sa, err := unix.Recvfrom(ep.Fd(), b, 0)
	if err != nil {
		return 0, netip.AddrPort{}, mapErrno(err)
	}
	if sa == nil {
		return n, netip.AddrPort{}, nil
	}
	from, err := socket.FromSockaddr(sa)
	if err != nil {
		return n, netip.AddrPort{}, err
	}
	return n, from, nil
}

// SendTo sends one datagram to addr without blocking.
func SendTo(ep endpoint.Endpoint, b []byte, addr netip.AddrPort) (int, error) {
	n, err := unix.SendmsgN(ep.Fd(), b, nil, socket.ToSockaddr(addr, ep.Family()), unix.MSG_NOSIGNAL|unix.MSG_DONTWAIT)
	if err != nil {
		return 0, mapErrno(err)
	}
	return n, nil
}

func mapErrno(err error) error {
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
		return rerr.ErrWouldBlock
	}
	return err
}
