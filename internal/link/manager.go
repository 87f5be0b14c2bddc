package link

import (
	"github.com/juju/errors"
	"github.com/kjh948/plen3/log2"
)

const (
	DefaultConnectTicks   = 10
	DefaultProvisionTicks = 0 // wait for companion forever
)

type Options struct {
	Log   *log2.Log
	Radio Radio
	// Store may be nil when persistent storage is unavailable.
	Store CredentialStore
	// Capture may be nil, then provisioning is not supported.
	Capture Capturer

	AccessPoint    Credentials
	Configured     Credentials // used when Store has nothing
	ConnectTicks   int
	ProvisionTicks int // 0 means no limit

	OnState func(State)
}

// Manager is not safe for concurrent use, all methods must be called
// from the control goroutine.
type Manager struct {
	log     *log2.Log
	radio   Radio
	store   CredentialStore
	capture Capturer
	ap      Credentials
	conf    Credentials
	onState func(State)

	connectTicks   int
	provisionTicks int

	state        State
	creds        Credentials
	pending      bool
	attemptLeft  int
	provisionAge int
}

func NewManager(opt Options) *Manager {
	m := &Manager{
		log:            opt.Log,
		radio:          opt.Radio,
		store:          opt.Store,
		capture:        opt.Capture,
		ap:             opt.AccessPoint,
		conf:           opt.Configured,
		onState:        opt.OnState,
		connectTicks:   opt.ConnectTicks,
		provisionTicks: opt.ProvisionTicks,
		state:          StateIdle,
	}
	if m.connectTicks <= 0 {
		m.connectTicks = DefaultConnectTicks
	}
	if m.provisionTicks < 0 {
		m.provisionTicks = DefaultProvisionTicks
	}
	return m
}

func (self *Manager) State() State             { return self.state }
func (self *Manager) LinkActive() bool         { return self.state.Active() }
func (self *Manager) Credentials() Credentials { return self.creds }
func (self *Manager) AccessPoint() Credentials { return self.ap }

// Start makes the boot decision: stored or configured credentials go to
// station attempt, otherwise provisioning if supported, otherwise access point.
func (self *Manager) Start() {
	creds := self.loadCredentials()
	if creds.Valid() {
		if err := self.AttemptStationConnect(creds, self.connectTicks); err != nil {
			self.log.Error(errors.Annotate(err, "link start"))
		}
		return
	}
	if self.capture != nil {
		err := self.BeginProvisioning()
		if err == nil {
			return
		}
		self.log.Error(errors.Annotate(err, "link start"))
	}
	self.fallback("no credentials")
}

func (self *Manager) loadCredentials() Credentials {
	if self.store != nil {
		c, err := self.store.Load()
		switch {
		case err == nil && c.Valid():
			self.log.Debugf("link stored credentials %s", c)
			return c
		case err == nil, errors.IsNotFound(err):
		default:
			self.log.Error(errors.Annotate(err, "credentials load"))
		}
	}
	return self.conf
}

// AttemptStationConnect starts association and returns immediately.
// Outcome is decided by following OnTick calls within timeoutTicks.
func (self *Manager) AttemptStationConnect(c Credentials, timeoutTicks int) error {
	if self.state != StateIdle {
		return errors.NotValidf("station attempt in state=%s", self.state)
	}
	if !c.Valid() {
		return errors.NotValidf("station attempt %s", c)
	}
	if timeoutTicks <= 0 {
		timeoutTicks = self.connectTicks
	}
	self.creds = c
	self.pending = false
	self.attemptLeft = timeoutTicks
	self.setState(StateAttemptingStation)
	self.log.Infof("link station join %s timeout_ticks=%d", c, timeoutTicks)
	if err := self.radio.JoinStation(c); err != nil {
		self.log.Error(errors.Annotate(err, "station join"))
		self.giveUpStation("join error")
	}
	return nil
}

func (self *Manager) BeginProvisioning() error {
	switch self.state {
	case StateIdle, StateStationConnected, StateAccessPointFallback:
	default:
		return errors.NotValidf("provisioning in state=%s", self.state)
	}
	if self.capture == nil {
		return errors.NotSupportedf("provisioning capture")
	}
	if err := self.capture.Begin(); err != nil {
		return errors.Annotate(err, "provisioning begin")
	}
	self.provisionAge = 0
	self.setState(StateProvisioningWait)
	self.log.Infof("link provisioning wait")
	return nil
}

// AbortProvisioning tears down capture and falls back to access point.
// Returns false when provisioning was not in progress.
func (self *Manager) AbortProvisioning() bool {
	if self.state != StateProvisioningWait {
		return false
	}
	self.stopCapture()
	self.fallback("provisioning aborted")
	return true
}

func (self *Manager) OnTick() {
	switch self.state {
	case StateIdle:
		if self.pending {
			if err := self.AttemptStationConnect(self.creds, self.connectTicks); err != nil {
				self.log.Error(err)
			}
		}

	case StateAttemptingStation:
		switch self.radio.StationStatus() {
		case StationConnected:
			self.setState(StateStationConnected)
			self.log.Infof("link station connected ssid=%s", self.creds.SSID)
			return
		case StationFailed:
			self.giveUpStation("radio failure")
			return
		}
		self.attemptLeft--
		if self.attemptLeft <= 0 {
			self.giveUpStation("timeout")
		}

	case StateProvisioningWait:
		creds, status := self.capture.Poll()
		switch status {
		case CaptureDone:
			self.finishProvisioning(creds)
		case CaptureAborted:
			self.stopCapture()
			self.fallback("provisioning aborted")
		default:
			self.provisionAge++
			if self.provisionTicks > 0 && self.provisionAge >= self.provisionTicks {
				self.stopCapture()
				self.fallback("provisioning timeout")
			}
		}

	case StateStationConnected, StateAccessPointFallback, StateProvisioningDone:
	}
}

func (self *Manager) finishProvisioning(c Credentials) {
	self.setState(StateProvisioningDone)
	self.stopCapture()
	self.log.Infof("link provisioned %s", c)
	self.creds = c
	if self.store != nil {
		if err := self.store.Save(c); err != nil {
			self.log.Error(errors.Annotate(err, "credentials save"))
		}
	}
	self.pending = c.Valid()
	self.setState(StateIdle)
}

func (self *Manager) giveUpStation(reason string) {
	if err := self.radio.LeaveStation(); err != nil {
		self.log.Error(errors.Annotate(err, "station leave"))
	}
	self.fallback(reason)
}

func (self *Manager) fallback(reason string) {
	self.log.Infof("link access point ssid=%s reason=%s", self.ap.SSID, reason)
	if err := self.radio.StartAccessPoint(self.ap.SSID, self.ap.Passphrase); err != nil {
		self.log.Error(errors.Annotatef(err, "access point ssid=%s", self.ap.SSID))
	}
	self.setState(StateAccessPointFallback)
}

func (self *Manager) stopCapture() {
	if err := self.capture.Stop(); err != nil {
		self.log.Error(errors.Annotate(err, "provisioning stop"))
	}
}

func (self *Manager) setState(s State) {
	if s == self.state {
		return
	}
	self.log.Debugf("link state %s -> %s", self.state, s)
	self.state = s
	if self.onState != nil {
		self.onState(s)
	}
}
