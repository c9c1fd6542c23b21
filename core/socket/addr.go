//go:build linux

package socket

import (
	"net/netip"

	"github.com/touka-aoi/low-level-relay/core/endpoint"
	"golang.org/x/sys/unix"
)

// ToSockaddr converts address for a socket of the given family. An IPv4
// address on an IPv6 socket is sent as its 4in6 form.
func ToSockaddr(address netip.AddrPort, family endpoint.Family) unix.Sockaddr {
	addr := address.Addr().Unmap()
	if family == endpoint.FamilyIPv6 || !addr.Is4() {
		return &unix.SockaddrInet6{Port: int(address.Port()), Addr: addr.As16()}
	}
	return &unix.SockaddrInet4{Port: int(address.Port()), Addr: addr.As4()}
}

func FromSockaddr(sa unix.Sockaddr) (netip.AddrPort, error) {
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		ip := netip.AddrFrom4(addr.Addr)
		return netip.AddrPortFrom(ip, uint16(addr.Port)), nil
	case *unix.SockaddrInet6:
		ip := netip.AddrFrom16(addr.Addr)
		return netip.AddrPortFrom(ip, uint16(addr.Port)), nil
	default:
		return netip.AddrPort{}, unix.EAFNOSUPPORT
	}
}

func LocalAddr(fd int) (netip.AddrPort, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return FromSockaddr(sa)
}

func RemoteAddr(fd int) (netip.AddrPort, error) {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return FromSockaddr(sa)
}

// FormatNumeric renders the host part without any name lookup.
func FormatNumeric(address netip.AddrPort) string {
	return address.Addr().Unmap().String()
}
