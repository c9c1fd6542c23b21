//go:build linux

package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/touka-aoi/low-level-relay/core/endpoint"
	"golang.org/x/time/rate"
)

const (
	DefaultCount             = 512
	DefaultStreamSize        = 512
	DefaultDatagramSize      = 10000
	DefaultFiller       byte = 'a'
	DefaultTimeout           = 100 * time.Millisecond
)

// Conn is the connected endpoint a burst is sent over.
type Conn interface {
	Send(b []byte) (int, error)
	Receive(b []byte) (int, error)
	WaitReadable(timeout time.Duration, extra ...endpoint.Endpoint) (bool, error)
}

type Config struct {
	Count   int
	Size    int
	Filler  byte
	Timeout time.Duration
	// WatchStdin adds standard input to each reply wait. Input only ends the
	// wait early, it is never read.
	WatchStdin bool
	// Rate caps sends per second. 0 sends back to back.
	Rate float64
	// Progress receives one line per send and per receive. nil disables it.
	Progress io.Writer
}

// DefaultConfig returns the defaults for "tcp" or "udp".
func DefaultConfig(network string) Config {
	size := DefaultStreamSize
	if network == "udp" {
		size = DefaultDatagramSize
	}
	return Config{
		Count:   DefaultCount,
		Size:    size,
		Filler:  DefaultFiller,
		Timeout: DefaultTimeout,
	}
}

type Option func(*Harness)

func WithClock(c clock.Clock) Option {
	return func(h *Harness) {
		h.clock = c
	}
}

// Harness sends Count fixed-size messages one after another, waiting a
// bounded time for a reply after each.
type Harness struct {
	conn   Conn
	config Config
	clock  clock.Clock
	stdin  endpoint.Endpoint
}

func NewHarness(conn Conn, config Config, opts ...Option) *Harness {
	h := &Harness{
		conn:   conn,
		config: config,
		clock:  clock.New(),
		stdin:  endpoint.Stdin(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run sends the burst. A non-nil error means the wait itself failed; the
// partial result is returned with it.
func (h *Harness) Run(ctx context.Context) (*Result, error) {
	size := h.config.Size
	if size <= 0 {
		return nil, fmt.Errorf("invalid message size %d", size)
	}

	sendBuf := bytes.Repeat([]byte{h.config.Filler}, size)
	recvBuf := make([]byte, size)

	var extra []endpoint.Endpoint
	if h.config.WatchStdin {
		extra = append(extra, h.stdin)
	}

	var limiter *rate.Limiter
	if h.config.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.config.Rate), 1)
	}

	result := &Result{Size: size}
	start := h.clock.Now()
	defer func() {
		result.Elapsed = h.clock.Since(start)
		result.Loss = Loss(result.Attempted, result.BytesReceived, size)
	}()

	for i := 0; i < h.config.Count; i++ {
		if ctx.Err() != nil {
			slog.DebugContext(ctx, "Burst cancelled", "attempted", result.Attempted)
			break
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				slog.DebugContext(ctx, "Burst stopped while pacing", "attempted", result.Attempted, "error", err)
				break
			}
		}

		n, err := h.conn.Send(sendBuf)
		if err != nil {
			slog.DebugContext(ctx, "Send failed", "index", i, "error", err)
		} else {
			result.BytesSent += int64(n)
			h.progress("Sent %d bytes.\n", n)
		}

		ready, err := h.conn.WaitReadable(h.config.Timeout, extra...)
		if err != nil {
			return result, err
		}
		if ready {
			m, err := h.conn.Receive(recvBuf)
			if err != nil || m <= 0 {
				slog.DebugContext(ctx, "Connection closed by server", "index", i, "error", err)
				result.ClosedEarly = true
				break
			}
			result.BytesReceived += int64(m)
			h.progress("Received (%d bytes)\n", m)
		}

		result.Attempted++
	}

	return result, nil
}

func (h *Harness) progress(format string, args ...any) {
	if h.config.Progress == nil {
		return
	}
	fmt.Fprintf(h.config.Progress, format, args...)
}
