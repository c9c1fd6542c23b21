//go:build linux

package endpoint

import (
	"maps"
	"slices"
)

// Set is the collection of endpoints under multiplexed watch. It is owned by
// a single goroutine and is not safe for concurrent use.
type Set struct {
	members   map[int]Endpoint
	watermark int
	listener  int
}

func NewSet() *Set {
	return &Set{
		members:   make(map[int]Endpoint),
		watermark: -1,
		listener:  -1,
	}
}

// Add inserts ep. A member with the same descriptor is replaced.
func (s *Set) Add(ep Endpoint) {
	s.members[ep.fd] = ep
	if ep.fd > s.watermark {
		s.watermark = ep.fd
	}
	if ep.IsListener() {
		s.listener = ep.fd
	}
}

// Remove drops ep and reports whether it was a member.
func (s *Set) Remove(ep Endpoint) bool {
	if _, ok := s.members[ep.fd]; !ok {
		return false
	}
	delete(s.members, ep.fd)
	if ep.fd == s.listener {
		s.listener = -1
	}
	if ep.fd == s.watermark {
		s.watermark = -1
		for fd := range s.members {
			s.watermark = max(s.watermark, fd)
		}
	}
	return true
}

func (s *Set) Contains(ep Endpoint) bool {
	member, ok := s.members[ep.fd]
	return ok && member == ep
}

// Members returns every member exactly once in ascending descriptor order.
func (s *Set) Members() []Endpoint {
	members := make([]Endpoint, 0, len(s.members))
	for fd := range slices.Values(slices.Sorted(maps.Keys(s.members))) {
		members = append(members, s.members[fd])
	}
	return members
}

// Watermark returns the member with the highest descriptor.
func (s *Set) Watermark() (Endpoint, bool) {
	if s.watermark < 0 {
		return Endpoint{}, false
	}
	return s.members[s.watermark], true
}

func (s *Set) Listener() (Endpoint, bool) {
	if s.listener < 0 {
		return Endpoint{}, false
	}
	return s.members[s.listener], true
}

func (s *Set) Len() int {
	return len(s.members)
}
