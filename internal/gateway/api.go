package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/juju/errors"
	"github.com/skip2/go-qrcode"
)

var (
	errMissingArgs = reply{http.StatusBadRequest, "Missing id or value"}
	errInvalidArgs = reply{http.StatusBadRequest, "Invalid id or value"}
	errMissingSlot = reply{http.StatusBadRequest, "Missing slot"}
	errInvalidSlot = reply{http.StatusBadRequest, "Invalid slot"}
	errMissingSpd  = reply{http.StatusBadRequest, "Missing value"}
)

const qrSize = 256

type jointInfo struct {
	ID   int `json:"id"`
	Min  int `json:"min"`
	Max  int `json:"max"`
	Home int `json:"home"`
}

func (self *Gateway) handleAll(w http.ResponseWriter, r *http.Request) error {
	if self.status == nil {
		return errors.NotSupportedf("status")
	}
	b, err := json.Marshal(self.status.Snapshot())
	if err != nil {
		return errors.Annotate(err, "all")
	}
	writeJSON(w, b)
	return nil
}

func (self *Gateway) handleJoints(w http.ResponseWriter, r *http.Request) error {
	n := self.joints.Sum()
	out := make([]jointInfo, 0, n)
	for id := 0; id < n; id++ {
		s, ok := self.joints.Setting(id)
		if !ok {
			continue
		}
		out = append(out, jointInfo{ID: id, Min: s.Min, Max: s.Max, Home: s.Home})
	}
	b, err := json.Marshal(out)
	if err != nil {
		return errors.Annotate(err, "joints")
	}
	writeJSON(w, b)
	return nil
}

// jointArgs reads required id and value arguments.
func jointArgs(r *http.Request) (id, value int, err error) {
	if !hasArg(r, "id") || !hasArg(r, "value") {
		return 0, 0, errMissingArgs
	}
	var ok1, ok2 bool
	id, ok1 = intArg(r, "id")
	value, ok2 = intArg(r, "value")
	if !(ok1 && ok2) {
		return 0, 0, errInvalidArgs
	}
	return id, value, nil
}

func (self *Gateway) handleSetHome(w http.ResponseWriter, r *http.Request) error {
	id, value, err := jointArgs(r)
	if err != nil {
		return err
	}
	if !self.joints.SetHomeAngle(id, value) {
		self.log.Errorf("set_home id=%d value=%d rejected", id, value)
		return errFailed
	}
	writeText(w, http.StatusOK, "OK")
	return nil
}

func (self *Gateway) handleMoveJoint(w http.ResponseWriter, r *http.Request) error {
	id, value, err := jointArgs(r)
	if err != nil {
		return err
	}
	if !self.joints.SetAngle(id, value) {
		self.log.Errorf("move_joint id=%d value=%d rejected", id, value)
		return errFailed
	}
	writeText(w, http.StatusOK, "OK")
	return nil
}

func (self *Gateway) handlePlayMotion(w http.ResponseWriter, r *http.Request) error {
	if !hasArg(r, "slot") {
		return errMissingSlot
	}
	slot, ok := intArg(r, "slot")
	if !ok {
		return errInvalidSlot
	}
	if err := self.motions.Play(slot); err != nil {
		self.log.Errorf("play slot=%d err=%v", slot, err)
		return errFailed
	}
	writeText(w, http.StatusOK, "OK")
	return nil
}

func (self *Gateway) handleSetSpeed(w http.ResponseWriter, r *http.Request) error {
	if !hasArg(r, "value") {
		return errMissingSpd
	}
	value, ok := intArg(r, "value")
	if !ok {
		return errInvalidArgs
	}
	if err := self.motions.SetSpeed(value); err != nil {
		self.log.Errorf("set_speed value=%d err=%v", value, err)
		return errFailed
	}
	writeText(w, http.StatusOK, "OK")
	return nil
}

func (self *Gateway) handleStop(w http.ResponseWriter, r *http.Request) error {
	self.motions.Stop()
	writeText(w, http.StatusOK, "OK")
	return nil
}

func (self *Gateway) handleVersion(w http.ResponseWriter, r *http.Request) error {
	b, err := json.Marshal(self.version)
	if err != nil {
		return errors.Annotate(err, "version")
	}
	writeJSON(w, b)
	return nil
}

// handleAccessPointQR renders join code for the fallback access point.
func (self *Gateway) handleAccessPointQR(w http.ResponseWriter, r *http.Request) error {
	if self.ap.SSID == "" {
		return errFileNotFound
	}
	png, err := qrcode.Encode(WifiURI(self.ap.SSID, self.ap.Passphrase), qrcode.Medium, qrSize)
	if err != nil {
		return errors.Annotate(err, "qr")
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
	return nil
}

var wifiEscaper = strings.NewReplacer(`\`, `\\`, `;`, `\;`, `,`, `\,`, `:`, `\:`, `"`, `\"`)

// WifiURI formats network join string understood by phone cameras.
func WifiURI(ssid, pass string) string {
	if pass == "" {
		return "WIFI:T:nopass;S:" + wifiEscaper.Replace(ssid) + ";;"
	}
	return "WIFI:T:WPA;S:" + wifiEscaper.Replace(ssid) + ";P:" + wifiEscaper.Replace(pass) + ";;"
}
