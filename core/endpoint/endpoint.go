//go:build linux

package endpoint

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type Family int

const (
	FamilyUnspec Family = iota
	FamilyIPv4
	FamilyIPv6
)

var familyName = map[Family]string{
	FamilyUnspec: "unspec",
	FamilyIPv4:   "ipv4",
	FamilyIPv6:   "ipv6",
}

func (f Family) String() string {
	return familyName[f]
}

// Domain returns the AF_* constant for socket(2).
func (f Family) Domain() int {
	switch f {
	case FamilyIPv6:
		return unix.AF_INET6
	case FamilyIPv4:
		return unix.AF_INET
	default:
		return unix.AF_UNSPEC
	}
}

type Kind int

const (
	KindStream Kind = iota
	KindDatagram
)

func (k Kind) String() string {
	if k == KindDatagram {
		return "datagram"
	}
	return "stream"
}

type Role int

const (
	RoleListening Role = iota
	RolePeer
	RoleClient
	// RoleInput is standard input watched by the burst client. It is never read.
	RoleInput
)

var roleName = map[Role]string{
	RoleListening: "listening",
	RolePeer:      "peer",
	RoleClient:    "client",
	RoleInput:     "input",
}

func (r Role) String() string {
	return roleName[r]
}

// Endpoint is a handle to one socket under watch. It is a comparable value;
// two Endpoints are the same member when their descriptors match.
type Endpoint struct {
	fd     int
	family Family
	kind   Kind
	role   Role
}

func New(fd int, family Family, kind Kind, role Role) Endpoint {
	return Endpoint{fd: fd, family: family, kind: kind, role: role}
}

// Stdin is the endpoint for descriptor 0.
func Stdin() Endpoint {
	return Endpoint{fd: 0, family: FamilyUnspec, kind: KindStream, role: RoleInput}
}

func (e Endpoint) Fd() int {
	return e.fd
}

func (e Endpoint) Family() Family {
	return e.family
}

func (e Endpoint) Kind() Kind {
	return e.kind
}

func (e Endpoint) Role() Role {
	return e.role
}

func (e Endpoint) IsListener() bool {
	return e.role == RoleListening
}

func (e Endpoint) Close() error {
	if e.role == RoleInput {
		return nil
	}
	return unix.Close(e.fd)
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s/%s fd=%d (%s)", e.kind, e.family, e.fd, e.role)
}
