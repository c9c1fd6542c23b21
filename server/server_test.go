//go:build linux

package server

import (
	"context"
	"net/netip"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/touka-aoi/low-level-relay/transport"
)

type serveHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func startServing(t *testing.T, ns *NetworkServer) *serveHandle {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, ns.Listen(ctx))

	h := &serveHandle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.err = ns.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

// stop cancels the server and waits for Serve to return.
func (h *serveHandle) stop(t *testing.T) error {
	t.Helper()
	h.cancel()
	return h.wait(t)
}

func (h *serveHandle) wait(t *testing.T) error {
	t.Helper()
	select {
	case <-h.done:
		return h.err
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func dial(t *testing.T, network string, addr netip.AddrPort) *transport.Conn {
	t.Helper()
	conn, err := transport.Dial(network, addr.Addr().String(), strconv.Itoa(int(addr.Port())))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// receive waits up to timeout and returns what arrived, nil when nothing did.
func receive(t *testing.T, conn *transport.Conn, timeout time.Duration) []byte {
	t.Helper()
	ready, err := conn.WaitReadable(timeout)
	require.NoError(t, err)
	if !ready {
		return nil
	}
	buf := make([]byte, 2048)
	n, err := conn.Receive(buf)
	require.NoError(t, err)
	return buf[:n]
}

func localConfig(protocol string) Config {
	config := DefaultConfig(protocol)
	config.Address = "127.0.0.1"
	config.Port = 0
	return config
}
