//go:build linux

package server

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	rerr "github.com/touka-aoi/low-level-relay/core/errors"
	"github.com/touka-aoi/low-level-relay/middleware"
)

func startEcho(t *testing.T) (*EchoServer, *Metrics, *serveHandle) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry(), "udp")
	es := NewEchoServer(localConfig("udp"), WithMetrics(metrics))
	h := startServing(t, es.NetworkServer)
	return es, metrics, h
}

func TestEchoServer_Uppercase(t *testing.T) {
	es, metrics, _ := startEcho(t)
	conn := dial(t, "udp", es.Addr())

	_, err := conn.Send([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "HELLO", string(receive(t, conn, time.Second)))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Messages))
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.BytesSent) == 5
	}, time.Second, 5*time.Millisecond)
}

func TestEchoServer_IndependentSources(t *testing.T) {
	es, _, _ := startEcho(t)
	first := dial(t, "udp", es.Addr())
	second := dial(t, "udp", es.Addr())

	_, err := first.Send([]byte("abc"))
	require.NoError(t, err)
	_, err = second.Send([]byte("xyz"))
	require.NoError(t, err)

	assert.Equal(t, "ABC", string(receive(t, first, time.Second)))
	assert.Equal(t, "XYZ", string(receive(t, second, time.Second)))
}

func TestEchoServer_LengthPreserved(t *testing.T) {
	es, _, _ := startEcho(t)
	conn := dial(t, "udp", es.Addr())

	for i := 0; i < 20; i++ {
		payload := make([]byte, 1+rand.IntN(DefaultReadBufferSize))
		for j := range payload {
			payload[j] = byte(rand.IntN(256))
		}
		want := append([]byte(nil), payload...)
		middleware.ToUpperASCII(want)

		_, err := conn.Send(payload)
		require.NoError(t, err)
		got := receive(t, conn, time.Second)
		require.Equal(t, want, got)
	}
}

func TestEchoServer_CustomPipeline(t *testing.T) {
	reverse := func(ctx *middleware.Context, next middleware.NextFunc) error {
		for i, j := 0, len(ctx.Data)-1; i < j; i, j = i+1, j-1 {
			ctx.Data[i], ctx.Data[j] = ctx.Data[j], ctx.Data[i]
		}
		return next(ctx)
	}
	es := NewEchoServer(localConfig("udp"), WithPipeline(middleware.NewPipeline().Use(reverse)))
	startServing(t, es.NetworkServer)
	conn := dial(t, "udp", es.Addr())

	_, err := conn.Send([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, "cba", string(receive(t, conn, time.Second)))
}

func TestEchoServer_EmptyDatagramIsFatal(t *testing.T) {
	es, _, h := startEcho(t)
	conn := dial(t, "udp", es.Addr())

	_, err := conn.Send([]byte{})
	require.NoError(t, err)

	err = h.wait(t)
	var recvErr *rerr.DatagramReceiveError
	assert.ErrorAs(t, err, &recvErr)
	assert.Equal(t, Stopped, es.Status())
}

func TestEchoServer_Shutdown(t *testing.T) {
	es, _, h := startEcho(t)
	require.NoError(t, h.stop(t))
	assert.Equal(t, Stopped, es.Status())
}
