//go:build linux

package server

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/touka-aoi/low-level-relay/transport"
)

func startRelay(t *testing.T, peers int) (*RelayServer, *Metrics, *serveHandle, []*transport.Conn) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry(), "tcp")
	rs := NewRelayServer(localConfig("tcp"), WithMetrics(metrics))
	h := startServing(t, rs.NetworkServer)

	conns := make([]*transport.Conn, 0, peers)
	for i := 0; i < peers; i++ {
		conns = append(conns, dial(t, "tcp", rs.Addr()))
	}
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.PeersConnected) == float64(peers)
	}, 2*time.Second, 5*time.Millisecond)

	return rs, metrics, h, conns
}

func TestRelayServer_BroadcastToOthers(t *testing.T) {
	_, metrics, _, conns := startRelay(t, 3)
	a, b, c := conns[0], conns[1], conns[2]

	_, err := a.Send([]byte("ping"))
	require.NoError(t, err)

	assert.Equal(t, "ping", string(receive(t, b, time.Second)))
	assert.Equal(t, "ping", string(receive(t, c, time.Second)))
	// never echoed to the sender
	assert.Nil(t, receive(t, a, 100*time.Millisecond))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Messages))
	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.BytesReceived))
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.BytesSent) == 8
	}, time.Second, 5*time.Millisecond)
}

func TestRelayServer_SinglePeerGetsNothing(t *testing.T) {
	_, metrics, _, conns := startRelay(t, 1)

	_, err := conns[0].Send([]byte("alone"))
	require.NoError(t, err)
	assert.Nil(t, receive(t, conns[0], 100*time.Millisecond))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.Messages) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, testutil.ToFloat64(metrics.BytesSent))
}

func TestRelayServer_ClosedPeerIsRemoved(t *testing.T) {
	_, metrics, _, conns := startRelay(t, 3)
	a, b, c := conns[0], conns[1], conns[2]

	require.NoError(t, b.Close())
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.PeersConnected) == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PeersClosed))

	_, err := a.Send([]byte("still here"))
	require.NoError(t, err)
	assert.Equal(t, "still here", string(receive(t, c, time.Second)))

	_, err = c.Send([]byte("pong"))
	require.NoError(t, err)
	assert.Equal(t, "pong", string(receive(t, a, time.Second)))
}

func TestRelayServer_OrderPerSender(t *testing.T) {
	_, _, _, conns := startRelay(t, 2)
	a, b := conns[0], conns[1]

	want := ""
	for _, msg := range []string{"one,", "two,", "three"} {
		_, err := a.Send([]byte(msg))
		require.NoError(t, err)
		want += msg
	}

	got := ""
	for len(got) < len(want) {
		chunk := receive(t, b, time.Second)
		require.NotNil(t, chunk)
		got += string(chunk)
	}
	assert.Equal(t, want, got)
}

func TestRelayServer_Shutdown(t *testing.T) {
	rs, _, h, conns := startRelay(t, 2)
	assert.Equal(t, Running, rs.Status())

	require.NoError(t, h.stop(t))
	assert.Equal(t, Stopped, rs.Status())
	assert.Empty(t, rs.Peers())

	// peers see end of stream
	for _, conn := range conns {
		ready, err := conn.WaitReadable(time.Second)
		require.NoError(t, err)
		require.True(t, ready)
		n, _ := conn.Receive(make([]byte, 8))
		assert.Zero(t, n)
	}
}

func TestRelayServer_ServeBeforeListen(t *testing.T) {
	rs := NewRelayServer(localConfig("tcp"))
	assert.ErrorIs(t, rs.Serve(context.Background()), ErrNotListening)
	assert.Equal(t, Idle, rs.Status())
}

func TestRelayServer_ListenTwice(t *testing.T) {
	rs := NewRelayServer(localConfig("tcp"))
	startServing(t, rs.NetworkServer)
	assert.ErrorIs(t, rs.Listen(context.Background()), ErrAlreadyListening)
}
