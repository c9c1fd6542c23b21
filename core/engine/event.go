//go:build linux

package engine

import (
	"github.com/touka-aoi/low-level-relay/core/endpoint"
	"github.com/touka-aoi/low-level-relay/core/event"
)

type NetEvent struct {
	EventType event.EventType
	Endpoint  endpoint.Endpoint
}

// Classify turns ready endpoints into the work each one needs: a stream
// listener accepts, a datagram listener receives a message, a peer or client
// reads, standard input is only reported.
func Classify(ready []endpoint.Endpoint) []*NetEvent {
	netEvents := make([]*NetEvent, 0, len(ready))
	for _, ep := range ready {
		var et event.EventType
		switch {
		case ep.Role() == endpoint.RoleInput:
			et = event.EVENT_TYPE_INPUT
		case ep.IsListener() && ep.Kind() == endpoint.KindStream:
			et = event.EVENT_TYPE_ACCEPT
		case ep.Kind() == endpoint.KindDatagram:
			et = event.EVENT_TYPE_RECVMSG
		default:
			et = event.EVENT_TYPE_READ
		}
		netEvents = append(netEvents, &NetEvent{EventType: et, Endpoint: ep})
	}
	return netEvents
}
