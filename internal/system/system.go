// Package system assembles the robot: link, services, passthrough and robot
// control, driven from one control goroutine.
package system

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/kjh948/plen3/helpers"
	"github.com/kjh948/plen3/internal/beacon"
	"github.com/kjh948/plen3/internal/config"
	"github.com/kjh948/plen3/internal/console"
	"github.com/kjh948/plen3/internal/credstore"
	"github.com/kjh948/plen3/internal/gateway"
	"github.com/kjh948/plen3/internal/hw"
	"github.com/kjh948/plen3/internal/link"
	"github.com/kjh948/plen3/internal/loop"
	"github.com/kjh948/plen3/internal/passthrough"
	"github.com/kjh948/plen3/internal/provision"
	"github.com/kjh948/plen3/internal/radio"
	"github.com/kjh948/plen3/internal/robot"
	"github.com/kjh948/plen3/internal/service"
	"github.com/kjh948/plen3/internal/store"
	"github.com/kjh948/plen3/internal/tele"
	"github.com/kjh948/plen3/internal/update"
	"github.com/kjh948/plen3/log2"
)

const Codename = "plen3"

// Pressed reports provisioning button presses since the previous call.
type Presser interface {
	Pressed() bool
}

// Options fields other than Log and Config override what config would build.
type Options struct {
	Log     *log2.Log
	Config  *config.Config
	Version string
	Reboot  func()

	Radio   link.Radio
	Files   store.Store
	Sender  beacon.Sender
	Button  Presser
	Capture link.Capturer
}

type System struct {
	log     *log2.Log
	config  *config.Config
	id      string
	name    string
	version string

	files   store.Store
	radio   link.Radio
	link    *link.Manager
	capture link.Capturer
	button  Presser
	beacon  *beacon.Beacon
	bridge  *passthrough.Bridge
	queue   *loop.Queue
	boot    *service.Bootstrap
	joints  *robot.Joints
	player  *robot.Player
	console *console.Interpreter
	hw      *hw.Info
	tele    *tele.Tele
	closers []io.Closer
}

func New(ctx context.Context, opt Options) (*System, error) {
	c := opt.Config
	if c == nil {
		c = &config.Config{}
	}
	log := opt.Log
	self := &System{
		log:     log,
		config:  c,
		version: helpers.StringDefault(opt.Version, "dev"),
		radio:   opt.Radio,
		files:   opt.Files,
		button:  opt.Button,
		queue:   loop.NewQueue(loop.DefaultDepth),
		bridge:  passthrough.NewBridge(log),
	}
	self.id = self.deviceID()
	self.name = c.DeviceName(self.id)

	if err := self.setup(ctx, opt); err != nil {
		_ = self.Close()
		return nil, err
	}
	log.Infof("system name=%s version=%s", self.name, self.version)
	return self, nil
}

func (self *System) deviceID() string {
	if self.config.Device.ID != "" {
		return self.config.Device.ID
	}
	id, err := radio.HardwareID(self.config.Link.Interface)
	if err != nil {
		self.log.Error(errors.Annotate(err, "device id"))
		return "000000"
	}
	return id
}

func (self *System) setup(ctx context.Context, opt Options) error {
	c := self.config
	var err error

	if self.files == nil {
		if self.files, err = store.NewDir(helpers.StringDefault(c.Store.Root, config.DefaultStoreRoot)); err != nil {
			return errors.Annotate(err, "store")
		}
	}
	if self.radio == nil {
		switch c.Link.Radio {
		case "", "nm":
			self.radio = radio.NewNM(self.log, c.Link.Interface, c.Link.Nmcli, helpers.IntSecondDefault(c.Link.ConnectTimeoutSec, config.DefaultConnect))
		case "mock":
			self.radio = radio.NewMock(nil)
		default:
			return errors.NotSupportedf("link.radio=%s", c.Link.Radio)
		}
	}

	creds, err := self.credentialStore()
	if err != nil {
		// persistence is optional, boot continues with configured credentials
		self.log.Error(errors.Annotate(err, "credential store"))
		creds = nil
	}
	self.capture = opt.Capture
	if self.capture == nil && c.Link.Provision.Enable {
		self.capture = provision.NewUDPCapture(self.log, c.Link.Provision.CaptureListen)
	}
	if self.button == nil && c.Link.Provision.ButtonDevice != "" {
		button, err := provision.OpenButton(self.log, c.Link.Provision.ButtonDevice, uint16(c.Link.Provision.ButtonCode))
		if err != nil {
			self.log.Error(errors.Annotate(err, "provision button"))
		} else {
			self.button = button
			self.closers = append(self.closers, button)
		}
	}

	if self.tele, err = tele.New(ctx, self.log, c.Tele, self.name); err != nil {
		return errors.Annotate(err, "tele")
	}
	if self.tele != nil {
		self.log.SetErrorFunc(self.tele.Error)
	}

	lopt := link.Options{
		Log:            self.log,
		Radio:          self.radio,
		Capture:        self.capture,
		AccessPoint:    link.Credentials{SSID: c.AccessPointName(self.id), Passphrase: c.AccessPointPass()},
		Configured:     c.HardcodedCredentials(),
		ConnectTicks:   c.ConnectTicks(),
		ProvisionTicks: c.ProvisionTicks(),
		OnState:        self.onLinkState,
	}
	if creds != nil {
		lopt.Store = creds
	}
	self.link = link.NewManager(lopt)

	sender := opt.Sender
	if sender == nil && !c.Beacon.Disable {
		udp, err := beacon.NewUDPSender(helpers.StringDefault(c.Beacon.Addr, beacon.DefaultAddr))
		if err != nil {
			self.log.Error(errors.Annotate(err, "beacon"))
		} else {
			sender = udp
		}
	}
	if sender != nil {
		self.beacon = beacon.New(self.log, self.link, sender, self.name)
	}

	var driver robot.Driver = robot.NopDriver{}
	if c.Robot.Enable {
		pca, err := robot.OpenPCA9685(c.Robot.I2CBus, uint16(c.Robot.PCA9685Addr), robot.PWMFreq)
		if err != nil {
			self.log.Error(errors.Annotate(err, "servo driver, joints are not driven"))
		} else {
			driver = pca
			self.closers = append(self.closers, pca)
		}
	}
	self.joints = robot.NewJoints(self.log, driver, self.files, helpers.StringDefault(c.Robot.JointsPath, robot.DefaultJointsPath))
	self.player = robot.NewPlayer(self.log, self.joints, self.files, helpers.StringDefault(c.Robot.MotionDir, robot.DefaultMotionDir))
	self.console = console.New(self.log, self.joints, self.player, self.bridge, self.versionLine())

	lines := make([]uint32, len(c.Hardware.GPIOLines))
	for i, l := range c.Hardware.GPIOLines {
		lines[i] = uint32(l)
	}
	self.hw = hw.New(self.log, hw.Config{AnalogPath: c.Hardware.AnalogPath, GPIOChip: c.Hardware.GPIOChip, GPIOLines: lines})
	self.closers = append(self.closers, self.hw)

	sopt := service.Options{
		Log:        self.log,
		HTTPAddr:   c.Service.HTTPListen,
		BridgeAddr: c.Service.PassthroughListen,
		Routes:     self.routes(opt.Reboot),
		Bridge:     self.bridge,
	}
	if c.Service.MDNS {
		sopt.Advertise = self.advertise
	}
	self.boot = service.New(sopt)
	return nil
}

func (self *System) credentialStore() (link.CredentialStore, error) {
	c := self.config
	switch c.Link.CredentialStore {
	case "", "file":
		return credstore.NewFile(self.log, self.files, c.Link.CredentialPath), nil
	case "extremo":
		return credstore.NewExtremo(self.log, helpers.StringDefault(c.Link.CredentialPath, config.DefaultExtremoPath))
	}
	return nil, errors.NotSupportedf("link.credential_store=%s", c.Link.CredentialStore)
}

func (self *System) routes(reboot func()) func() http.Handler {
	return func() http.Handler {
		c := self.config
		var updater http.Handler
		if c.Update.Target != "" {
			updater = update.New(self.log, c.Update.Target, int64(helpers.IntDefault(c.Update.MaxSize, config.DefaultUpdateLimit)), reboot)
		}
		g := gateway.New(gateway.Options{
			Log:         self.log,
			Files:       self.files,
			Joints:      self.joints,
			Motions:     self.player,
			Status:      self.hw,
			Session:     self.bridge,
			Updater:     updater,
			Queue:       self.queue,
			Version:     gateway.Version{Device: self.name, Codename: Codename, Version: self.version},
			AccessPoint: self.link.AccessPoint(),
		})
		return g.Routes()
	}
}

func (self *System) advertise(port int) (io.Closer, error) {
	return beacon.Advertise(self.name, port, []string{"codename=" + Codename, "version=" + self.version})
}

func (self *System) versionLine() string {
	return fmt.Sprintf("%s %s %s", self.name, Codename, self.version)
}

func (self *System) onLinkState(s link.State) {
	var ssid string
	switch s {
	case link.StateStationConnected:
		ssid = self.link.Credentials().SSID
	case link.StateAccessPointFallback:
		ssid = self.link.AccessPoint().SSID
	}
	self.tele.State(s, ssid)
}

func (self *System) Name() string                  { return self.name }
func (self *System) Link() *link.Manager           { return self.link }
func (self *System) Bootstrap() *service.Bootstrap { return self.boot }
func (self *System) Bridge() *passthrough.Bridge   { return self.bridge }
func (self *System) Files() store.Store            { return self.files }

// Start makes the boot link decision and homes the joints.
func (self *System) Start() {
	self.joints.Home()
	self.link.Start()
}

// Tick is the periodic link step: button, state machine, services, beacon.
func (self *System) Tick() {
	if self.button != nil && self.button.Pressed() {
		self.log.Infof("provisioning requested by button")
		if err := self.link.BeginProvisioning(); err != nil {
			self.log.Error(errors.Annotate(err, "provisioning"))
		}
	}
	self.link.OnTick()
	if !self.link.LinkActive() {
		return
	}
	if err := self.boot.EnsureStarted(); err != nil {
		self.log.Error(errors.Annotate(err, "services, retry next tick"))
	}
	if self.beacon != nil {
		self.beacon.Tick()
	}
}

// Step advances motion playback then serves pending clients.
func (self *System) Step() {
	self.player.Update()
	self.HandleClient()
}

// HandleClient runs queued HTTP work and feeds passthrough bytes to the
// console. Nothing to do until services started.
func (self *System) HandleClient() {
	if !self.boot.Started() {
		return
	}
	self.queue.Drain(loop.DefaultDepth)
	for self.bridge.Available() > 0 {
		b, err := self.bridge.ReadByte()
		if err != nil {
			break
		}
		self.console.Feed(b)
	}
}

func (self *System) Close() error {
	errs := make([]error, 0, 8)
	if self.boot != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		errs = append(errs, self.boot.Stop(ctx))
		cancel()
	}
	if self.bridge != nil {
		self.bridge.Drop()
		errs = append(errs, self.bridge.Close())
	}
	if self.beacon != nil {
		errs = append(errs, self.beacon.Close())
	}
	if self.capture != nil {
		errs = append(errs, self.capture.Stop())
	}
	for _, c := range self.closers {
		errs = append(errs, c.Close())
	}
	if self.tele != nil {
		self.log.SetErrorFunc(nil)
		self.tele.Close()
	}
	return helpers.FoldErrors(errs)
}
