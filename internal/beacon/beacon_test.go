package beacon

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/kjh948/plen3/internal/link"
	"github.com/kjh948/plen3/log2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	mu   sync.Mutex
	sent [][]byte
	err  error
}

func (self *mockSender) Send(b []byte) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.err != nil {
		return self.err
	}
	self.sent = append(self.sent, append([]byte(nil), b...))
	return nil
}
func (self *mockSender) Close() error { return nil }

type stateLink struct{ state link.State }

func (self *stateLink) LinkActive() bool { return self.state.Active() }

func TestTickOnlyWhenActive(t *testing.T) {
	t.Parallel()

	for s := link.StateIdle; s <= link.StateProvisioningDone; s++ {
		s := s
		t.Run(s.String(), func(t *testing.T) {
			sender := &mockSender{}
			b := New(log2.NewTest(t, log2.LDebug), &stateLink{state: s}, sender, "ViVi-c0ffee")
			assert.Equal(t, time.Duration(0), b.SinceLast())
			for i := 0; i < 3; i++ {
				b.Tick()
			}
			if s == link.StateStationConnected || s == link.StateAccessPointFallback {
				require.Len(t, sender.sent, 3)
				assert.Equal(t, "ViVi-c0ffee", string(sender.sent[0]))
				assert.Equal(t, uint64(3), b.Sent())
			} else {
				assert.Empty(t, sender.sent)
				assert.Equal(t, uint64(0), b.Sent())
			}
		})
	}
}

func TestTickSendError(t *testing.T) {
	t.Parallel()

	sender := &mockSender{err: fmt.Errorf("network unreachable")}
	b := New(log2.NewTest(t, log2.LDebug), &stateLink{state: link.StateStationConnected}, sender, "ViVi-c0ffee")
	assert.False(t, b.Tick())
	assert.False(t, b.Tick())
	sender.err = nil
	assert.True(t, b.Tick())
	assert.Equal(t, uint64(1), b.Sent())
}

func TestUDPLoopback(t *testing.T) {
	t.Parallel()

	probe, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr := probe.LocalAddr().String()
	require.NoError(t, probe.Close())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	names := make(chan string, 16)
	done := make(chan error, 1)
	go func() {
		done <- Listen(ctx, addr, func(name string, from net.Addr) { names <- name })
	}()

	sender, err := NewUDPSender(addr)
	require.NoError(t, err)
	defer sender.Close()
	b := New(log2.NewTest(t, log2.LDebug), &stateLink{state: link.StateAccessPointFallback}, sender, "ViVi-c0ffee")

	// listener may not be bound yet, keep beaconing like the tick does
	var got string
	require.Eventually(t, func() bool {
		b.Tick()
		select {
		case got = <-names:
			return true
		default:
			return false
		}
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "ViVi-c0ffee", got)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("listener did not stop")
	}
}
