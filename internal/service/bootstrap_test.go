package service

import (
	"context"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/kjh948/plen3/log2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockBridge struct {
	calls int32
	err   error
}

func (self *mockBridge) Listen(addr string) error {
	atomic.AddInt32(&self.calls, 1)
	return self.err
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func newCounting(t testing.TB, bridge Listener) (*Bootstrap, *int32, *int32) {
	var routes, adverts int32
	b := New(Options{
		Log:        log2.NewTest(t, log2.LDebug),
		HTTPAddr:   "127.0.0.1:0",
		BridgeAddr: "127.0.0.1:0",
		Bridge:     bridge,
		Routes: func() http.Handler {
			atomic.AddInt32(&routes, 1)
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, "pong")
			})
		},
		Advertise: func(port int) (io.Closer, error) {
			atomic.AddInt32(&adverts, 1)
			if port == 0 {
				return nil, errors.NotValidf("port")
			}
			return closerFunc(func() error { return nil }), nil
		},
	})
	return b, &routes, &adverts
}

func TestExactlyOnce(t *testing.T) {
	t.Parallel()

	bridge := &mockBridge{}
	b, routes, adverts := newCounting(t, bridge)
	defer b.Stop(context.Background())
	assert.False(t, b.Started())
	assert.Nil(t, b.HTTPAddr())

	for i := 0; i < 50; i++ {
		require.NoError(t, b.EnsureStarted())
	}
	assert.True(t, b.Started())
	assert.Equal(t, int32(1), atomic.LoadInt32(routes))
	assert.Equal(t, int32(1), atomic.LoadInt32(adverts))
	assert.Equal(t, int32(1), atomic.LoadInt32(&bridge.calls))

	resp, err := http.Get("http://" + b.HTTPAddr().String() + "/")
	require.NoError(t, err)
	body, _ := ioutil.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))
}

func TestBridgeFailureRollsBack(t *testing.T) {
	t.Parallel()

	bridge := &mockBridge{err: errors.New("address in use")}
	b, _, adverts := newCounting(t, bridge)
	defer b.Stop(context.Background())

	require.Error(t, b.EnsureStarted())
	assert.False(t, b.Started())
	assert.Equal(t, int32(0), atomic.LoadInt32(adverts))

	bridge.err = nil
	require.NoError(t, b.EnsureStarted())
	assert.True(t, b.Started())
	assert.Equal(t, int32(2), atomic.LoadInt32(&bridge.calls))
}

func TestHTTPBindFailure(t *testing.T) {
	t.Parallel()

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	bridge := &mockBridge{}
	b := New(Options{
		Log:      log2.NewTest(t, log2.LDebug),
		HTTPAddr: busy.Addr().String(),
		Bridge:   bridge,
		Routes:   func() http.Handler { return http.NotFoundHandler() },
	})
	require.Error(t, b.EnsureStarted())
	assert.False(t, b.Started())
	assert.Equal(t, int32(0), atomic.LoadInt32(&bridge.calls))
}

func TestStop(t *testing.T) {
	t.Parallel()

	b, _, _ := newCounting(t, nil)
	require.NoError(t, b.EnsureStarted())
	addr := b.HTTPAddr().String()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, b.Stop(ctx))
	_, err := net.DialTimeout("tcp", addr, time.Second)
	assert.Error(t, err)

	idle, _, _ := newCounting(t, nil)
	require.NoError(t, idle.Stop(ctx))
	assert.Error(t, idle.EnsureStarted())
	assert.False(t, idle.Started())
}

func TestSlowBodyTimeout(t *testing.T) {
	t.Parallel()

	readErr := make(chan error, 1)
	b := New(Options{
		Log:         log2.NewTest(t, log2.LDebug),
		HTTPAddr:    "127.0.0.1:0",
		BridgeAddr:  "127.0.0.1:0",
		Bridge:      &mockBridge{},
		ReadTimeout: 200 * time.Millisecond,
		Routes: func() http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, err := ioutil.ReadAll(r.Body)
				readErr <- err
			})
		},
	})
	defer b.Stop(context.Background())
	require.NoError(t, b.EnsureStarted())

	conn, err := net.Dial("tcp", b.HTTPAddr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = io.WriteString(conn, "POST /api/move_joint HTTP/1.1\r\nHost: plen\r\n"+
		"Content-Type: application/x-www-form-urlencoded\r\nContent-Length: 100\r\n\r\nid=1")
	require.NoError(t, err)

	select {
	case err := <-readErr:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("body read not limited by ReadTimeout")
	}
}
