//go:build linux

package event

import "fmt"

type EventType int

const (
	EVENT_TYPE_ACCEPT EventType = iota
	EVENT_TYPE_READ
	EVENT_TYPE_RECVMSG
	EVENT_TYPE_INPUT
	EVENT_TYPE_LAST
)

func (et EventType) String() string {
	switch et {
	case EVENT_TYPE_ACCEPT:
		return "EVENT_TYPE_ACCEPT"
	case EVENT_TYPE_READ:
		return "EVENT_TYPE_READ"
	case EVENT_TYPE_RECVMSG:
		return "EVENT_TYPE_RECVMSG"
	case EVENT_TYPE_INPUT:
		return "EVENT_TYPE_INPUT"
	default:
		return fmt.Sprintf("UNKNOWN: %d", et)
	}
}
