//go:build linux

package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/touka-aoi/low-level-relay/core/endpoint"
	rerr "github.com/touka-aoi/low-level-relay/core/errors"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// Infinite makes Wait block until a member is ready or Wake is called.
const Infinite time.Duration = -1

const readyEvents = unix.POLLIN | unix.POLLHUP | unix.POLLERR | unix.POLLNVAL

var ErrMultiplexerClosed = errors.New("multiplexer closed")

// Multiplexer waits on a set of endpoints with poll(2). The watch set is
// passed on every call, so nothing depends on descriptor numbering.
//
// Wait must be called from one goroutine. Wake may be called from any.
type Multiplexer struct {
	mu     sync.Mutex
	wakeR  int
	wakeW  int
	closed bool

	fds []unix.PollFd
}

func NewMultiplexer() (*Multiplexer, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, rerr.NewSetupError("multiplexer", err)
	}
	return &Multiplexer{wakeR: p[0], wakeW: p[1]}, nil
}

// Wait blocks until at least one member of set is readable, timeout elapses
// or Wake is called, and returns the ready members. A hang-up or error
// condition counts as readable so the following read observes it.
func (m *Multiplexer) Wait(set *endpoint.Set, timeout time.Duration) ([]endpoint.Endpoint, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, &rerr.MultiplexError{Err: ErrMultiplexerClosed}
	}

	members := set.Members()
	m.fds = m.fds[:0]
	m.fds = append(m.fds, unix.PollFd{Fd: int32(m.wakeR), Events: unix.POLLIN})
	for _, ep := range members {
		m.fds = append(m.fds, unix.PollFd{Fd: int32(ep.Fd()), Events: unix.POLLIN})
	}

	n, err := unix.Poll(m.fds, timeoutMillis(timeout))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, &rerr.MultiplexError{Err: err}
	}
	if n == 0 {
		return nil, nil
	}

	if m.fds[0].Revents != 0 {
		m.drainWake()
	}

	ready := make([]endpoint.Endpoint, 0, n)
	for i, ep := range members {
		if m.fds[i+1].Revents&readyEvents != 0 {
			ready = append(ready, ep)
		}
	}
	return ready, nil
}

// Wake interrupts the current Wait, or the next one if none is pending.
func (m *Multiplexer) Wake() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrMultiplexerClosed
	}
	_, err := unix.Write(m.wakeW, []byte{1})
	if errors.Is(err, unix.EAGAIN) {
		// pipe is already full, a wake is pending anyway
		return nil
	}
	return err
}

func (m *Multiplexer) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(m.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (m *Multiplexer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return multierr.Combine(unix.Close(m.wakeR), unix.Close(m.wakeW))
}

func timeoutMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	ms := timeout.Milliseconds()
	if timeout > 0 && timeout%time.Millisecond != 0 {
		ms++
	}
	return int(ms)
}
