//go:build linux

package peer

import (
	"net/netip"

	"github.com/touka-aoi/low-level-relay/core/endpoint"
)

type Endpoint interface {
	Fd() int
	Endpoint() endpoint.Endpoint
	LocalAddr() netip.AddrPort
	RemoteAddr() netip.AddrPort
	Status() string
}
