// Package beacon announces the robot on the local network.
package beacon

import (
	"time"

	"github.com/juju/errors"
	"github.com/kjh948/plen3/log2"
	"github.com/temoto/atomic_clock"
)

const DefaultAddr = "255.255.255.255:6000"

type Sender interface {
	Send(payload []byte) error
	Close() error
}

type LinkStater interface {
	LinkActive() bool
}

// Beacon sends device name once per Tick while the link is active.
// No ack, no retry.
type Beacon struct {
	log     *log2.Log
	link    LinkStater
	sender  Sender
	payload []byte

	sent   uint64
	failed uint64
	last   atomic_clock.Clock
}

func New(log *log2.Log, link LinkStater, sender Sender, name string) *Beacon {
	return &Beacon{
		log:     log,
		link:    link,
		sender:  sender,
		payload: []byte(name),
	}
}

// Tick returns true if datagram was handed to the network.
func (self *Beacon) Tick() bool {
	if !self.link.LinkActive() {
		return false
	}
	if err := self.sender.Send(self.payload); err != nil {
		self.failed++
		// log first failure and then rarely, beacon runs every second
		if self.failed == 1 || self.failed%60 == 0 {
			self.log.Error(errors.Annotatef(err, "beacon send failed=%d", self.failed))
		}
		return false
	}
	self.sent++
	self.last.SetNow()
	return true
}

func (self *Beacon) Sent() uint64 { return self.sent }

// SinceLast returns 0 if nothing was sent yet.
func (self *Beacon) SinceLast() time.Duration {
	if self.last.IsZero() {
		return 0
	}
	return atomic_clock.Since(&self.last)
}

func (self *Beacon) Close() error { return self.sender.Close() }
