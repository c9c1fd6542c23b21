//go:build linux

package client

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/touka-aoi/low-level-relay/core/endpoint"
	"github.com/touka-aoi/low-level-relay/server"
	"github.com/touka-aoi/low-level-relay/transport"
)

const (
	replyFull = iota
	replyNone
	replyClose
)

// fakeConn answers each send according to script; sends past the end of the
// script get a full reply.
type fakeConn struct {
	clock   *clock.Mock
	rtt     time.Duration
	script  []int
	sends   int
	pending []byte
	closed  bool
	extra   int
	waitErr error
}

func (f *fakeConn) Send(b []byte) (int, error) {
	f.clock.Add(f.rtt)
	reply := replyFull
	if f.sends < len(f.script) {
		reply = f.script[f.sends]
	}
	f.sends++
	switch reply {
	case replyFull:
		f.pending = append([]byte(nil), b...)
	case replyClose:
		f.closed = true
	}
	return len(b), nil
}

func (f *fakeConn) WaitReadable(timeout time.Duration, extra ...endpoint.Endpoint) (bool, error) {
	f.extra = len(extra)
	if f.waitErr != nil {
		return false, f.waitErr
	}
	return f.pending != nil || f.closed, nil
}

func (f *fakeConn) Receive(b []byte) (int, error) {
	if f.closed {
		return 0, nil
	}
	n := copy(b, f.pending)
	f.pending = nil
	return n, nil
}

func testConfig(count, size int) Config {
	config := DefaultConfig("tcp")
	config.Count = count
	config.Size = size
	return config
}

func TestHarness_AllReturned(t *testing.T) {
	mock := clock.NewMock()
	conn := &fakeConn{clock: mock, rtt: time.Millisecond}

	result, err := NewHarness(conn, testConfig(512, 512), WithClock(mock)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 512, result.Attempted)
	assert.Equal(t, int64(512*512), result.BytesSent)
	assert.Equal(t, int64(512*512), result.BytesReceived)
	assert.Equal(t, 512*time.Millisecond, result.Elapsed)
	assert.Zero(t, result.Loss)
	assert.False(t, result.ClosedEarly)
}

func TestHarness_NothingReturned(t *testing.T) {
	mock := clock.NewMock()
	script := make([]int, 8)
	for i := range script {
		script[i] = replyNone
	}
	conn := &fakeConn{clock: mock, script: script}

	result, err := NewHarness(conn, testConfig(8, 100), WithClock(mock)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, result.Attempted)
	assert.Zero(t, result.BytesReceived)
	assert.Equal(t, float64(100), result.Loss)
}

func TestHarness_ClosedEarly(t *testing.T) {
	mock := clock.NewMock()
	conn := &fakeConn{clock: mock, script: []int{replyFull, replyNone, replyFull, replyNone, replyClose}}

	result, err := NewHarness(conn, testConfig(10, 100), WithClock(mock)).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.ClosedEarly)
	// the send that saw the close is not counted
	assert.Equal(t, 4, result.Attempted)
	assert.Equal(t, 5, conn.sends)
	assert.Equal(t, int64(200), result.BytesReceived)
	// 2 of 4, not 2 of 10
	assert.InDelta(t, 50, result.Loss, 1e-9)
}

func TestHarness_Cancelled(t *testing.T) {
	mock := clock.NewMock()
	conn := &fakeConn{clock: mock}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewHarness(conn, testConfig(10, 100), WithClock(mock)).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Attempted)
	assert.Zero(t, conn.sends)
	assert.Equal(t, float64(100), result.Loss)
}

func TestHarness_WaitError(t *testing.T) {
	mock := clock.NewMock()
	boom := errors.New("poll failed")
	conn := &fakeConn{clock: mock, waitErr: boom}

	result, err := NewHarness(conn, testConfig(10, 100), WithClock(mock)).Run(context.Background())
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, result)
	assert.Zero(t, result.Attempted)
}

func TestHarness_ProgressAndStdin(t *testing.T) {
	mock := clock.NewMock()
	conn := &fakeConn{clock: mock, script: []int{replyFull, replyNone}}

	var progress bytes.Buffer
	config := testConfig(2, 16)
	config.Progress = &progress
	config.WatchStdin = true

	_, err := NewHarness(conn, config, WithClock(mock)).Run(context.Background())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(progress.String()), "\n")
	assert.Equal(t, []string{"Sent 16 bytes.", "Received (16 bytes)", "Sent 16 bytes."}, lines)
	assert.Equal(t, 1, conn.extra)
}

func TestHarness_RateStopsAtDeadline(t *testing.T) {
	mock := clock.NewMock()
	conn := &fakeConn{clock: mock}
	config := testConfig(3, 10)
	config.Rate = 1

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// the second token is a second away, past the deadline
	result, err := NewHarness(conn, config, WithClock(mock)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Attempted)
	assert.Equal(t, 1, conn.sends)
}

func TestHarness_InvalidSize(t *testing.T) {
	_, err := NewHarness(&fakeConn{clock: clock.NewMock()}, testConfig(1, 0)).Run(context.Background())
	assert.Error(t, err)
}

func TestHarness_AgainstEchoServer(t *testing.T) {
	config := server.DefaultConfig("udp")
	config.Address = "127.0.0.1"
	config.Port = 0
	es := server.NewEchoServer(config)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, es.Listen(ctx))
	done := make(chan error, 1)
	go func() { done <- es.Serve(ctx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	addr := es.Addr()
	conn, err := transport.Dial("udp", addr.Addr().String(), strconv.Itoa(int(addr.Port())))
	require.NoError(t, err)
	defer conn.Close()

	burst := DefaultConfig("udp")
	burst.Count = 16
	burst.Size = 64
	burst.Timeout = time.Second

	result, err := NewHarness(conn, burst).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 16, result.Attempted)
	assert.Equal(t, int64(16*64), result.BytesReceived)
	assert.Zero(t, result.Loss)
}
