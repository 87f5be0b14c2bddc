// Package provision receives wireless credentials from a companion app
// and watches the provisioning button.
package provision

import (
	"bytes"
	"net"

	"github.com/juju/errors"
	"github.com/kjh948/plen3/internal/link"
	"github.com/kjh948/plen3/log2"
)

const DefaultCaptureListen = ":6001"

const maxDatagram = 512

type captureResult struct {
	creds  link.Credentials
	status link.CaptureStatus
}

// UDPCapture accepts one datagram "SSID\nPASSPHRASE" per provisioning round.
// Empty datagram aborts provisioning, malformed ones are ignored.
type UDPCapture struct {
	log    *log2.Log
	listen string

	conn    net.PacketConn
	results chan captureResult
	last    captureResult
}

var _ link.Capturer = &UDPCapture{}

func NewUDPCapture(log *log2.Log, listen string) *UDPCapture {
	if listen == "" {
		listen = DefaultCaptureListen
	}
	return &UDPCapture{log: log, listen: listen}
}

func (self *UDPCapture) Begin() error {
	if self.conn != nil {
		return errors.AlreadyExistsf("provisioning capture")
	}
	conn, err := net.ListenPacket("udp", self.listen)
	if err != nil {
		return errors.Annotatef(err, "provisioning listen=%s", self.listen)
	}
	self.conn = conn
	self.results = make(chan captureResult, 1)
	self.last = captureResult{status: link.CapturePending}
	self.log.Debugf("provisioning capture listen=%s", conn.LocalAddr())
	go self.readLoop(conn, self.results)
	return nil
}

func (self *UDPCapture) Addr() net.Addr {
	if self.conn == nil {
		return nil
	}
	return self.conn.LocalAddr()
}

func (self *UDPCapture) Poll() (link.Credentials, link.CaptureStatus) {
	if self.last.status == link.CapturePending && self.results != nil {
		select {
		case r := <-self.results:
			self.last = r
		default:
		}
	}
	return self.last.creds, self.last.status
}

func (self *UDPCapture) Stop() error {
	if self.conn == nil {
		return nil
	}
	err := self.conn.Close()
	self.conn = nil
	return errors.Annotate(err, "provisioning stop")
}

func (self *UDPCapture) readLoop(conn net.PacketConn, results chan<- captureResult) {
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			self.log.Debugf("provisioning capture closed err=%v", err)
			return
		}
		// spaces are valid passphrase bytes, only line endings are dropped
		payload := bytes.TrimRight(buf[:n], "\r\n")
		if len(payload) == 0 {
			self.log.Infof("provisioning abort from=%s", from)
			results <- captureResult{status: link.CaptureAborted}
			return
		}
		var c link.Credentials
		if err := c.UnmarshalBinary(payload); err != nil {
			self.log.Errorf("provisioning ignore datagram from=%s err=%v", from, err)
			continue
		}
		self.log.Infof("provisioning received from=%s %s", from, c)
		results <- captureResult{creds: c, status: link.CaptureDone}
		return
	}
}
