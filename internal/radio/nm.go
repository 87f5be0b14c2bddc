// Package radio drives the wireless interface.
// NM talks to NetworkManager through nmcli, Mock is for tests and desktops.
package radio

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/kjh948/plen3/internal/link"
	"github.com/kjh948/plen3/log2"
)

const DefaultNmcli = "nmcli"

type NM struct {
	log     *log2.Log
	iface   string
	nmcli   string
	timeout time.Duration

	status uint32 // link.StationStatus
	gen    uint32
	cancel context.CancelFunc
	tail   chan struct{}
}

var _ link.Radio = &NM{}

func NewNM(log *log2.Log, iface, nmcli string, joinTimeout time.Duration) *NM {
	if nmcli == "" {
		nmcli = DefaultNmcli
	}
	return &NM{log: log, iface: iface, nmcli: nmcli, timeout: joinTimeout}
}

func joinArgs(iface string, c link.Credentials, timeout time.Duration) []string {
	args := []string{"--wait", fmt.Sprint(int(timeout / time.Second)), "device", "wifi", "connect", c.SSID}
	if c.Passphrase != "" {
		args = append(args, "password", c.Passphrase)
	}
	return append(args, "ifname", iface)
}

func hotspotArgs(iface, ssid, passphrase string) []string {
	return []string{"device", "wifi", "hotspot", "ifname", iface, "ssid", ssid, "password", passphrase}
}

// JoinStation runs nmcli in background, StationStatus reports its outcome.
func (self *NM) JoinStation(c link.Credentials) error {
	self.abort()
	ctx, cancel := context.WithCancel(context.Background())
	self.cancel = cancel
	gen := atomic.AddUint32(&self.gen, 1)
	atomic.StoreUint32(&self.status, uint32(link.StationConnecting))
	args := joinArgs(self.iface, c, self.timeout)
	self.chain(func() {
		defer cancel()
		var stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, self.nmcli, args...)
		cmd.Stderr = &stderr
		err := cmd.Run()
		if atomic.LoadUint32(&self.gen) != gen {
			return
		}
		if err != nil {
			self.log.Errorf("nmcli join ssid=%s err=%v stderr=%s", c.SSID, err, strings.TrimSpace(stderr.String()))
			atomic.StoreUint32(&self.status, uint32(link.StationFailed))
			return
		}
		atomic.StoreUint32(&self.status, uint32(link.StationConnected))
	})
	return nil
}

func (self *NM) StationStatus() link.StationStatus {
	return link.StationStatus(atomic.LoadUint32(&self.status))
}

// LeaveStation does not wait for disconnect, errors are logged.
func (self *NM) LeaveStation() error {
	self.abort()
	atomic.StoreUint32(&self.status, uint32(link.StationIdle))
	self.chain(func() {
		if err := self.run("device", "disconnect", self.iface); err != nil {
			self.log.Error(errors.Annotate(err, "station leave"))
		}
	})
	return nil
}

// StartAccessPoint does not wait for the hotspot to come up.
func (self *NM) StartAccessPoint(ssid, passphrase string) error {
	args := hotspotArgs(self.iface, ssid, passphrase)
	self.chain(func() {
		if out, err := exec.Command(self.nmcli, args...).CombinedOutput(); err != nil {
			self.log.Errorf("nmcli hotspot ssid=%s err=%v output=%s", ssid, err, strings.TrimSpace(string(out)))
		}
	})
	return nil
}

// chain runs fn off the control goroutine after previously chained commands finished.
// Radio methods are called from one goroutine, so tail needs no lock.
func (self *NM) chain(fn func()) {
	prev := self.tail
	done := make(chan struct{})
	self.tail = done
	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		fn()
	}()
}

func (self *NM) abort() {
	atomic.AddUint32(&self.gen, 1)
	if self.cancel != nil {
		self.cancel()
		self.cancel = nil
	}
}

func (self *NM) run(args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, self.nmcli, args...).CombinedOutput()
	if err != nil {
		return errors.Annotatef(err, "%s %s output=%s", self.nmcli, args[0], strings.TrimSpace(string(out)))
	}
	return nil
}

// HardwareID returns last three octets of interface MAC as lowercase hex.
func HardwareID(iface string) (string, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return "", errors.Annotatef(err, "interface=%s", iface)
	}
	return macID(ifi.HardwareAddr)
}

func macID(mac net.HardwareAddr) (string, error) {
	if len(mac) < 3 {
		return "", errors.NotFoundf("hardware address")
	}
	tail := mac[len(mac)-3:]
	return fmt.Sprintf("%02x%02x%02x", tail[0], tail[1], tail[2]), nil
}
