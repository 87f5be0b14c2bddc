package radio

import (
	"sync"

	"github.com/kjh948/plen3/internal/link"
)

// Mock simulates a wireless interface.
// Networks maps SSID to passphrase. Joining a known network with the right
// passphrase connects after ConnectPolls status polls, a wrong passphrase
// fails, an unknown SSID keeps connecting forever.
type Mock struct {
	mu sync.Mutex

	Networks     map[string]string
	ConnectPolls int
	JoinErr      error
	APErr        error

	status link.StationStatus
	polls  int
	joined []link.Credentials
	aps    []link.Credentials
	leaves int
}

var _ link.Radio = &Mock{}

func NewMock(networks map[string]string) *Mock {
	return &Mock{Networks: networks}
}

func (self *Mock) JoinStation(c link.Credentials) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.joined = append(self.joined, c)
	if self.JoinErr != nil {
		return self.JoinErr
	}
	self.polls = 0
	self.status = link.StationConnecting
	if pass, ok := self.Networks[c.SSID]; ok && pass != c.Passphrase {
		self.status = link.StationFailed
	}
	return nil
}

func (self *Mock) StationStatus() link.StationStatus {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.status != link.StationConnecting {
		return self.status
	}
	last := self.joined[len(self.joined)-1]
	if _, ok := self.Networks[last.SSID]; !ok {
		return self.status
	}
	self.polls++
	if self.polls > self.ConnectPolls {
		self.status = link.StationConnected
	}
	return self.status
}

func (self *Mock) LeaveStation() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.leaves++
	self.status = link.StationIdle
	return nil
}

func (self *Mock) StartAccessPoint(ssid, passphrase string) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.aps = append(self.aps, link.Credentials{SSID: ssid, Passphrase: passphrase})
	return self.APErr
}

func (self *Mock) Joined() []link.Credentials {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]link.Credentials(nil), self.joined...)
}

func (self *Mock) AccessPoints() []link.Credentials {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]link.Credentials(nil), self.aps...)
}

func (self *Mock) Leaves() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.leaves
}
