package rerr

import (
	"errors"
	"fmt"
)

// ErrWouldBlock は、非ブロッキング操作がすぐに完了できない場合に返されるエラー
var ErrWouldBlock = errors.New("operation would block")

// ErrPeerClosed is reported when a stream read returns zero bytes or fails.
// The relay recovers from it by dropping only that peer.
var ErrPeerClosed = errors.New("peer closed")

var ErrUnsupportedProtocol = errors.New("unsupported protocol")

// SetupError covers every failure before a server or client reaches its loop:
// resolve, socket, setsockopt, bind, listen, connect.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

func NewSetupError(op string, err error) error {
	return &SetupError{Op: op, Err: err}
}

// MultiplexError means the readiness wait itself failed. There is no
// supervisor, so callers terminate.
type MultiplexError struct {
	Err error
}

func (e *MultiplexError) Error() string {
	return fmt.Sprintf("readiness wait failed: %v", e.Err)
}

func (e *MultiplexError) Unwrap() error {
	return e.Err
}

// DatagramReceiveError is fatal for the echo server: a connectionless
// listener has no peer to isolate.
type DatagramReceiveError struct {
	Err error
}

func (e *DatagramReceiveError) Error() string {
	return fmt.Sprintf("datagram receive failed: %v", e.Err)
}

func (e *DatagramReceiveError) Unwrap() error {
	return e.Err
}

// AcceptError is fatal for the relay server.
type AcceptError struct {
	Err error
}

func (e *AcceptError) Error() string {
	return fmt.Sprintf("accept failed: %v", e.Err)
}

func (e *AcceptError) Unwrap() error {
	return e.Err
}

// IsSetup reports whether err originated during setup.
func IsSetup(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}
