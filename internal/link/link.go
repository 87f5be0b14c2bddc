// Package link owns the wireless link state machine.
// Station association is started and then polled on every tick,
// nothing here blocks the control goroutine.
package link

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/juju/errors"
)

type State uint32

const (
	StateIdle State = iota
	StateAttemptingStation
	StateStationConnected
	StateAccessPointFallback
	StateProvisioningWait
	StateProvisioningDone
)

var stateNames = [...]string{
	StateIdle:                "Idle",
	StateAttemptingStation:   "AttemptingStation",
	StateStationConnected:    "StationConnected",
	StateAccessPointFallback: "AccessPointFallback",
	StateProvisioningWait:    "ProvisioningWait",
	StateProvisioningDone:    "ProvisioningDone",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint32(s))
}

// Active reports whether network services may run in this state.
func (s State) Active() bool {
	return s == StateStationConnected || s == StateAccessPointFallback
}

type Credentials struct {
	SSID       string
	Passphrase string
}

func (c Credentials) Valid() bool { return c.SSID != "" }

func (c Credentials) String() string {
	return fmt.Sprintf("ssid=%s passlen=%d", c.SSID, len(c.Passphrase))
}

// MarshalBinary produces the persisted form "SSID\nPASSPHRASE\n".
func (c Credentials) MarshalBinary() ([]byte, error) {
	if !c.Valid() {
		return nil, errors.NotValidf("credentials empty ssid")
	}
	if strings.ContainsAny(c.SSID, "\r\n") || strings.ContainsAny(c.Passphrase, "\r\n") {
		return nil, errors.NotValidf("credentials with line break")
	}
	b := make([]byte, 0, len(c.SSID)+len(c.Passphrase)+2)
	b = append(b, c.SSID...)
	b = append(b, '\n')
	b = append(b, c.Passphrase...)
	b = append(b, '\n')
	return b, nil
}

// UnmarshalBinary accepts "SSID\nPASSPHRASE" with optional trailing newline,
// CRLF line endings are tolerated.
func (c *Credentials) UnmarshalBinary(b []byte) error {
	lines := bytes.SplitN(b, []byte{'\n'}, 3)
	ssid := string(bytes.TrimRight(lines[0], "\r"))
	if ssid == "" {
		return errors.NotValidf("credentials empty ssid")
	}
	pass := ""
	if len(lines) >= 2 {
		pass = string(bytes.TrimRight(lines[1], "\r"))
	}
	if len(lines) == 3 && len(bytes.TrimSpace(lines[2])) != 0 {
		return errors.NotValidf("credentials trailing data")
	}
	c.SSID, c.Passphrase = ssid, pass
	return nil
}

type StationStatus uint8

const (
	StationIdle StationStatus = iota
	StationConnecting
	StationConnected
	StationFailed
)

// Radio is the wireless interface driver.
// JoinStation and StartAccessPoint must return without waiting for the link.
type Radio interface {
	JoinStation(Credentials) error
	StationStatus() StationStatus
	LeaveStation() error
	StartAccessPoint(ssid, passphrase string) error
}

type CaptureStatus uint8

const (
	CapturePending CaptureStatus = iota
	CaptureDone
	CaptureAborted
)

// Capturer receives credentials from a provisioning companion.
// Poll is called from the tick and must not block.
type Capturer interface {
	Begin() error
	Poll() (Credentials, CaptureStatus)
	Stop() error
}

// CredentialStore Load returns errors.NotFound when nothing is stored.
type CredentialStore interface {
	Load() (Credentials, error)
	Save(Credentials) error
}
