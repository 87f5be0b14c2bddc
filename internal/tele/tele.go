// Package tele publishes link state changes and logged errors to MQTT.
//
// Contract:
// - New fails only with invalid config, network issues are retried in background
// - State and Error block at most for disk write
// - messages are delivered at least once, failed ones are retried after newer
package tele

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/kjh948/plen3/internal/link"
	"github.com/kjh948/plen3/log2"
	"github.com/temoto/spq"
)

const DefaultNetworkTimeout = 30 * time.Second

// first byte of queued item
const (
	kindState byte = 's'
	kindError byte = 'e'
)

type Config struct {
	Enable            bool   `hcl:"enable"`
	Broker            string `hcl:"mqtt_broker"`
	Username          string `hcl:"mqtt_username"`
	Password          string `hcl:"mqtt_password"`
	PersistPath       string `hcl:"persist_path"`
	KeepaliveSec      int    `hcl:"keepalive_sec"`
	NetworkTimeoutSec int    `hcl:"network_timeout_sec"`
	LogDebug          bool   `hcl:"log_debug"`
}

type StateMessage struct {
	Device string `json:"device"`
	State  string `json:"state"`
	SSID   string `json:"ssid,omitempty"`
	Time   int64  `json:"time"`
}

type ErrorMessage struct {
	Device string `json:"device"`
	Error  string `json:"error"`
	Time   int64  `json:"time"`
}

// Tele nil pointer is valid no-op.
type Tele struct {
	config    Config
	log       *log2.Log
	device    string
	transport Transporter
	q         *spq.Queue
	retry     retryDelay
	stopCh    chan struct{}
	doneCh    chan struct{}

	errMu   sync.Mutex
	lastErr string
}

// New returns nil Tele when disabled.
func New(ctx context.Context, log *log2.Log, c Config, device string) (*Tele, error) {
	if !c.Enable {
		return nil, nil
	}
	return NewWithTransporter(ctx, log, c, device, &transportMqtt{})
}

func NewWithTransporter(ctx context.Context, log *log2.Log, c Config, device string, trans Transporter) (*Tele, error) {
	if c.PersistPath == "" {
		return nil, errors.NotValidf("tele persist_path empty")
	}
	// own clone so tele errors are not forwarded back into tele
	if c.LogDebug {
		log = log.Clone(log2.LDebug)
	} else {
		log = log.Clone(log2.LInfo)
	}
	self := &Tele{
		config:    c,
		log:       log,
		device:    device,
		transport: trans,
		retry:     newRetryDelay(retryMin, retryMax),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	will, err := json.Marshal(StateMessage{Device: device, State: "Offline"})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := self.transport.Init(ctx, log, c, device, will); err != nil {
		return nil, errors.Annotate(err, "tele transport")
	}
	self.q, err = spq.Open(c.PersistPath)
	if err != nil {
		self.transport.Close()
		return nil, errors.Annotate(err, "tele queue")
	}
	go self.qworker()
	return self, nil
}

func (self *Tele) State(s link.State, ssid string) {
	if self == nil {
		return
	}
	self.push(kindState, StateMessage{
		Device: self.device,
		State:  s.String(),
		SSID:   ssid,
		Time:   time.Now().UnixNano(),
	})
}

// Error is meant for log2.SetErrorFunc. Repeats of the previous error are
// skipped, a failing operation retried every tick would flood the queue.
func (self *Tele) Error(e error) {
	if self == nil || e == nil {
		return
	}
	text := e.Error()
	self.errMu.Lock()
	repeat := text == self.lastErr
	self.lastErr = text
	self.errMu.Unlock()
	if repeat {
		return
	}
	self.push(kindError, ErrorMessage{Device: self.device, Error: text, Time: time.Now().UnixNano()})
}

func (self *Tele) push(kind byte, v interface{}) {
	b, err := json.Marshal(v)
	if err == nil {
		err = self.q.Push(append([]byte{kind}, b...))
	}
	if err != nil {
		self.log.Error(errors.Annotatef(err, "tele push kind=%c", kind))
	}
}

func (self *Tele) Close() {
	if self == nil {
		return
	}
	close(self.stopCh)
	if err := self.q.Close(); err != nil {
		self.log.Error(errors.Annotate(err, "tele queue close"))
	}
	<-self.doneCh
	self.transport.Close()
}

func (self *Tele) qworker() {
	defer close(self.doneCh)
	for {
		box, err := self.q.Peek()
		switch err {
		case nil:
			ok := self.send(box.Bytes())
			if ok {
				err = self.q.Delete(box)
			} else {
				err = self.q.DeletePush(box)
			}
			if err != nil {
				self.log.Errorf("tele queue update ok=%t err=%v", ok, err)
			}
			select {
			case <-time.After(self.retry.after(ok)):
			case <-self.stopCh:
				return
			}

		case spq.ErrClosed:
			select {
			case <-self.stopCh:
			default:
				self.log.Errorf("CRITICAL tele spq closed unexpectedly")
			}
			return

		default:
			self.log.Errorf("CRITICAL tele spq err=%v", err)
			select {
			case <-time.After(time.Second):
			case <-self.stopCh:
				return
			}
		}
	}
}

func (self *Tele) send(b []byte) bool {
	if len(b) == 0 {
		self.log.Errorf("tele drop empty queue item")
		return true
	}
	switch b[0] {
	case kindState:
		return self.transport.SendState(b[1:])
	case kindError:
		return self.transport.SendError(b[1:])
	}
	self.log.Errorf("tele drop queue item kind=%#x", b[0])
	return true
}
