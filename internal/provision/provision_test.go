package provision

import (
	"bytes"
	"io/ioutil"
	"net"
	"testing"
	"time"
	"unsafe"

	"github.com/kjh948/plen3/internal/link"
	"github.com/kjh948/plen3/log2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/inputevent-go"
)

func sendTo(t testing.TB, addr net.Addr, payload string) {
	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(payload))
	require.NoError(t, err)
}

func pollUntil(t testing.TB, c *UDPCapture, want link.CaptureStatus) link.Credentials {
	var creds link.Credentials
	require.Eventually(t, func() bool {
		var status link.CaptureStatus
		creds, status = c.Poll()
		return status == want
	}, 3*time.Second, 5*time.Millisecond)
	return creds
}

func TestUDPCapture(t *testing.T) {
	t.Parallel()

	c := NewUDPCapture(log2.NewTest(t, log2.LDebug), "127.0.0.1:0")
	require.NoError(t, c.Begin())
	defer c.Stop()
	assert.Error(t, c.Begin())

	_, status := c.Poll()
	assert.Equal(t, link.CapturePending, status)

	sendTo(t, c.Addr(), "\n\nnot\ncredentials\nat all")
	sendTo(t, c.Addr(), "PLEN lab\nrobots rule\n")
	creds := pollUntil(t, c, link.CaptureDone)
	assert.Equal(t, link.Credentials{SSID: "PLEN lab", Passphrase: "robots rule"}, creds)

	// result is sticky until next Begin
	creds, status = c.Poll()
	assert.Equal(t, link.CaptureDone, status)
	assert.Equal(t, "PLEN lab", creds.SSID)
	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())
}

func TestUDPCaptureKeepsSpaces(t *testing.T) {
	t.Parallel()

	c := NewUDPCapture(log2.NewTest(t, log2.LDebug), "127.0.0.1:0")
	require.NoError(t, c.Begin())
	defer c.Stop()

	sendTo(t, c.Addr(), "PLEN lab\n  spaced pass  \r\n")
	creds := pollUntil(t, c, link.CaptureDone)
	assert.Equal(t, link.Credentials{SSID: "PLEN lab", Passphrase: "  spaced pass  "}, creds)
}

func TestUDPCaptureAbort(t *testing.T) {
	t.Parallel()

	c := NewUDPCapture(log2.NewTest(t, log2.LDebug), "127.0.0.1:0")
	require.NoError(t, c.Begin())
	sendTo(t, c.Addr(), "\n")
	pollUntil(t, c, link.CaptureAborted)
	require.NoError(t, c.Stop())

	// next round starts clean
	require.NoError(t, c.Begin())
	_, status := c.Poll()
	assert.Equal(t, link.CapturePending, status)
	require.NoError(t, c.Stop())
}

func encodeEvent(ev inputevent.InputEvent) []byte {
	b := (*[inputevent.EventSizeof]byte)(unsafe.Pointer(&ev))
	return append([]byte(nil), b[:]...)
}

func TestButton(t *testing.T) {
	t.Parallel()

	const code = 148
	var buf bytes.Buffer
	buf.Write(encodeEvent(inputevent.InputEvent{Type: evKey, Code: 30, Value: int32(inputevent.KeyStateDown)}))
	buf.Write(encodeEvent(inputevent.InputEvent{Type: evKey, Code: code, Value: int32(inputevent.KeyStateUp)}))
	buf.Write(encodeEvent(inputevent.InputEvent{Type: 0, Code: code, Value: 1}))
	buf.Write(encodeEvent(inputevent.InputEvent{Type: evKey, Code: code, Value: int32(inputevent.KeyStateDown)}))

	b := NewButton(log2.NewTest(t, log2.LDebug), ioutil.NopCloser(&buf), code)
	defer b.Close()
	require.Eventually(t, b.Pressed, 3*time.Second, 5*time.Millisecond)
	assert.False(t, b.Pressed())
}
