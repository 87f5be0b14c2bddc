package provision

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/kjh948/plen3/log2"
	"github.com/temoto/inputevent-go"
)

// linux/input-event-codes.h
const evKey uint16 = 0x01

// Button reports key presses from a Linux input event device.
type Button struct {
	log     *log2.Log
	code    uint16
	r       io.ReadCloser
	presses chan struct{}
	closed  uint32
}

func OpenButton(log *log2.Log, device string, code uint16) (*Button, error) {
	f, err := os.Open(device)
	if err != nil {
		return nil, errors.Annotatef(err, "button device=%s", device)
	}
	return NewButton(log, f, code), nil
}

func NewButton(log *log2.Log, r io.ReadCloser, code uint16) *Button {
	self := &Button{
		log:     log,
		code:    code,
		r:       r,
		presses: make(chan struct{}, 1),
	}
	go self.readLoop()
	return self
}

// Pressed returns true once per key press seen since previous call.
func (self *Button) Pressed() bool {
	select {
	case <-self.presses:
		return true
	default:
		return false
	}
}

func (self *Button) Close() error {
	if !atomic.CompareAndSwapUint32(&self.closed, 0, 1) {
		return nil
	}
	return self.r.Close()
}

func (self *Button) readLoop() {
	for {
		ev, err := inputevent.ReadOne(self.r)
		if err != nil {
			if atomic.LoadUint32(&self.closed) == 0 && err != io.EOF {
				self.log.Errorf("button read err=%v", err)
			}
			return
		}
		if ev.Type != evKey || ev.Code != self.code {
			continue
		}
		if ev.Value == int32(inputevent.KeyStateDown) {
			self.log.Debugf("button code=%d down", ev.Code)
			select {
			case self.presses <- struct{}{}:
			default:
			}
		}
	}
}
