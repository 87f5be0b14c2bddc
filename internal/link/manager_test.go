package link_test

import (
	"fmt"
	"testing"

	"github.com/juju/errors"
	"github.com/kjh948/plen3/internal/link"
	"github.com/kjh948/plen3/internal/radio"
	"github.com/kjh948/plen3/log2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCapture struct {
	begun   int
	stopped int
	status  link.CaptureStatus
	creds   link.Credentials
}

func (self *mockCapture) Begin() error {
	self.begun++
	self.status = link.CapturePending
	return nil
}

func (self *mockCapture) Stop() error {
	self.stopped++
	return nil
}

func (self *mockCapture) Poll() (link.Credentials, link.CaptureStatus) {
	return self.creds, self.status
}

type mockStore struct {
	saved   []link.Credentials
	data    []byte
	loadErr error
	saveErr error
}

func (self *mockStore) Load() (link.Credentials, error) {
	var c link.Credentials
	if self.loadErr != nil {
		return c, self.loadErr
	}
	if self.data == nil {
		return c, errors.NotFoundf("credentials")
	}
	err := c.UnmarshalBinary(self.data)
	return c, err
}

func (self *mockStore) Save(c link.Credentials) error {
	self.saved = append(self.saved, c)
	if self.saveErr != nil {
		return self.saveErr
	}
	b, err := c.MarshalBinary()
	self.data = b
	return err
}

var apCreds = link.Credentials{SSID: "ViVi-M-c0ffee", Passphrase: "12345678xyz"}

func newManager(t testing.TB, r link.Radio, store link.CredentialStore, capture link.Capturer) (*link.Manager, *[]link.State) {
	var history []link.State
	opt := link.Options{
		Log:          log2.NewTest(t, log2.LDebug),
		Radio:        r,
		AccessPoint:  apCreds,
		ConnectTicks: 3,
		OnState:      func(s link.State) { history = append(history, s) },
	}
	if store != nil {
		opt.Store = store
	}
	if capture != nil {
		opt.Capture = capture
	}
	return link.NewManager(opt), &history
}

func TestStationSuccess(t *testing.T) {
	t.Parallel()

	r := radio.NewMock(map[string]string{"home": "secret"})
	r.ConnectPolls = 1
	m, history := newManager(t, r, nil, nil)
	require.NoError(t, m.AttemptStationConnect(link.Credentials{SSID: "home", Passphrase: "secret"}, 5))
	assert.Equal(t, link.StateAttemptingStation, m.State())
	assert.False(t, m.LinkActive())

	m.OnTick()
	assert.Equal(t, link.StateAttemptingStation, m.State())
	m.OnTick()
	assert.Equal(t, link.StateStationConnected, m.State())
	assert.True(t, m.LinkActive())
	assert.Empty(t, r.AccessPoints())

	for i := 0; i < 10; i++ {
		m.OnTick()
	}
	assert.Equal(t, []link.State{link.StateAttemptingStation, link.StateStationConnected}, *history)
}

func TestStationNeverSucceeds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		radio func() *radio.Mock
		ticks int
	}{
		{"unknown-network", func() *radio.Mock { return radio.NewMock(nil) }, 4},
		{"wrong-passphrase", func() *radio.Mock { return radio.NewMock(map[string]string{"home": "other"}) }, 1},
		{"join-error", func() *radio.Mock {
			r := radio.NewMock(nil)
			r.JoinErr = fmt.Errorf("device busy")
			return r
		}, 0},
		{"ap-error", func() *radio.Mock {
			r := radio.NewMock(nil)
			r.APErr = fmt.Errorf("no ap support")
			return r
		}, 4},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			r := c.radio()
			m, _ := newManager(t, r, nil, nil)
			require.NoError(t, m.AttemptStationConnect(link.Credentials{SSID: "home", Passphrase: "secret"}, 4))
			for i := 0; i < c.ticks; i++ {
				m.OnTick()
			}
			assert.Equal(t, link.StateAccessPointFallback, m.State())
			assert.Equal(t, []link.Credentials{apCreds}, r.AccessPoints())
			// steady afterwards
			for i := 0; i < 20; i++ {
				m.OnTick()
			}
			assert.Equal(t, link.StateAccessPointFallback, m.State())
			assert.Len(t, r.Joined(), 1)
			assert.Equal(t, 1, r.Leaves())
		})
	}
}

func TestAttemptInvalid(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t, radio.NewMock(nil), nil, nil)
	err := m.AttemptStationConnect(link.Credentials{}, 3)
	assert.True(t, errors.IsNotValid(err), errors.ErrorStack(err))
	assert.Equal(t, link.StateIdle, m.State())

	require.NoError(t, m.AttemptStationConnect(link.Credentials{SSID: "x"}, 3))
	err = m.AttemptStationConnect(link.Credentials{SSID: "x"}, 3)
	assert.True(t, errors.IsNotValid(err))
}

func TestProvisioning(t *testing.T) {
	t.Parallel()

	r := radio.NewMock(map[string]string{"home": "secret"})
	store := &mockStore{}
	capture := &mockCapture{}
	m, history := newManager(t, r, store, capture)

	m.Start()
	assert.Equal(t, link.StateProvisioningWait, m.State())
	assert.Equal(t, 1, capture.begun)
	for i := 0; i < 5; i++ {
		m.OnTick()
	}
	assert.Equal(t, link.StateProvisioningWait, m.State())
	assert.Empty(t, store.saved)

	want := link.Credentials{SSID: "home", Passphrase: "secret"}
	capture.creds, capture.status = want, link.CaptureDone
	m.OnTick()
	assert.Equal(t, link.StateIdle, m.State())
	assert.Equal(t, 1, capture.stopped)
	assert.Equal(t, []link.Credentials{want}, store.saved)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, loaded)

	m.OnTick()
	assert.Equal(t, link.StateAttemptingStation, m.State())
	m.OnTick()
	assert.Equal(t, link.StateStationConnected, m.State())
	assert.Equal(t, []link.State{
		link.StateProvisioningWait,
		link.StateProvisioningDone,
		link.StateIdle,
		link.StateAttemptingStation,
		link.StateStationConnected,
	}, *history)
	assert.Len(t, store.saved, 1)
}

func TestProvisioningStoreFailure(t *testing.T) {
	t.Parallel()

	r := radio.NewMock(map[string]string{"home": "secret"})
	store := &mockStore{saveErr: fmt.Errorf("read-only filesystem")}
	capture := &mockCapture{}
	m, _ := newManager(t, r, store, capture)
	m.Start()
	capture.creds, capture.status = link.Credentials{SSID: "home", Passphrase: "secret"}, link.CaptureDone
	m.OnTick()
	m.OnTick()
	m.OnTick()
	assert.Equal(t, link.StateStationConnected, m.State())
	assert.Equal(t, "home", m.Credentials().SSID)
}

func TestProvisioningAbort(t *testing.T) {
	t.Parallel()

	t.Run("capture", func(t *testing.T) {
		r := radio.NewMock(nil)
		store := &mockStore{}
		capture := &mockCapture{}
		m, _ := newManager(t, r, store, capture)
		require.NoError(t, m.BeginProvisioning())
		capture.status = link.CaptureAborted
		m.OnTick()
		assert.Equal(t, link.StateAccessPointFallback, m.State())
		assert.Equal(t, 1, capture.stopped)
		assert.Empty(t, store.saved)
	})
	t.Run("explicit", func(t *testing.T) {
		r := radio.NewMock(nil)
		capture := &mockCapture{}
		m, _ := newManager(t, r, nil, capture)
		assert.False(t, m.AbortProvisioning())
		require.NoError(t, m.BeginProvisioning())
		assert.True(t, m.AbortProvisioning())
		assert.Equal(t, link.StateAccessPointFallback, m.State())
		assert.Equal(t, []link.Credentials{apCreds}, r.AccessPoints())
	})
	t.Run("timeout", func(t *testing.T) {
		r := radio.NewMock(nil)
		capture := &mockCapture{}
		m := link.NewManager(link.Options{
			Log:            log2.NewTest(t, log2.LDebug),
			Radio:          r,
			Capture:        capture,
			AccessPoint:    apCreds,
			ProvisionTicks: 3,
		})
		require.NoError(t, m.BeginProvisioning())
		m.OnTick()
		m.OnTick()
		assert.Equal(t, link.StateProvisioningWait, m.State())
		m.OnTick()
		assert.Equal(t, link.StateAccessPointFallback, m.State())
		assert.Equal(t, 1, capture.stopped)
	})
}

func TestBeginProvisioningStates(t *testing.T) {
	t.Parallel()

	r := radio.NewMock(nil)
	m, _ := newManager(t, r, nil, nil)
	err := m.BeginProvisioning()
	assert.True(t, errors.IsNotSupported(err), errors.ErrorStack(err))

	capture := &mockCapture{}
	m, _ = newManager(t, r, nil, capture)
	require.NoError(t, m.AttemptStationConnect(link.Credentials{SSID: "nowhere"}, 2))
	err = m.BeginProvisioning()
	assert.True(t, errors.IsNotValid(err))
	m.OnTick()
	m.OnTick()
	require.Equal(t, link.StateAccessPointFallback, m.State())
	require.NoError(t, m.BeginProvisioning())
	assert.Equal(t, link.StateProvisioningWait, m.State())
}

func TestStartDecision(t *testing.T) {
	t.Parallel()

	home := link.Credentials{SSID: "home", Passphrase: "secret"}
	conf := link.Credentials{SSID: "lab", Passphrase: "robots"}
	cases := []struct {
		name       string
		store      *mockStore
		capture    bool
		configured link.Credentials
		expect     link.State
		joined     string
	}{
		{"stored", &mockStore{data: []byte("home\nsecret\n")}, true, conf, link.StateAttemptingStation, "home"},
		{"configured", &mockStore{}, true, conf, link.StateAttemptingStation, "lab"},
		{"store-error-configured", &mockStore{loadErr: fmt.Errorf("io")}, false, conf, link.StateAttemptingStation, "lab"},
		{"provision", &mockStore{}, true, link.Credentials{}, link.StateProvisioningWait, ""},
		{"access-point", nil, false, link.Credentials{}, link.StateAccessPointFallback, ""},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			r := radio.NewMock(map[string]string{home.SSID: home.Passphrase})
			opt := link.Options{
				Log:         log2.NewTest(t, log2.LDebug),
				Radio:       r,
				AccessPoint: apCreds,
				Configured:  c.configured,
			}
			if c.store != nil {
				opt.Store = c.store
			}
			if c.capture {
				opt.Capture = &mockCapture{}
			}
			m := link.NewManager(opt)
			m.Start()
			assert.Equal(t, c.expect, m.State())
			if c.joined != "" {
				joined := r.Joined()
				require.Len(t, joined, 1)
				assert.Equal(t, c.joined, joined[0].SSID)
			}
		})
	}
}

func TestCredentialsBinary(t *testing.T) {
	t.Parallel()

	c := link.Credentials{SSID: "home net", Passphrase: "p@ss word"}
	b, err := c.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, "home net\np@ss word\n", string(b))

	var back link.Credentials
	require.NoError(t, back.UnmarshalBinary(b))
	assert.Equal(t, c, back)

	require.NoError(t, back.UnmarshalBinary([]byte("crlf\r\npass\r\n")))
	assert.Equal(t, link.Credentials{SSID: "crlf", Passphrase: "pass"}, back)

	for _, bad := range []string{"", "\npass\n", "a\nb\nc\n"} {
		assert.Error(t, back.UnmarshalBinary([]byte(bad)), bad)
	}
	_, err = link.Credentials{SSID: "x\ny"}.MarshalBinary()
	assert.True(t, errors.IsNotValid(err))
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "AccessPointFallback", link.StateAccessPointFallback.String())
	assert.Equal(t, "State(42)", link.State(42).String())
	for s := link.StateIdle; s <= link.StateProvisioningDone; s++ {
		assert.Equal(t, s == link.StateStationConnected || s == link.StateAccessPointFallback, s.Active(), s.String())
	}
}
