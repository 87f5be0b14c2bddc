// Package robot drives PLEN servos: joint angles and motion playback.
package robot

import (
	"encoding/json"

	"github.com/juju/errors"
	"github.com/kjh948/plen3/internal/store"
	"github.com/kjh948/plen3/log2"
)

const (
	Sum          = 24
	AngleMin     = -800
	AngleMax     = 800
	AngleNeutral = 0

	PWMMin  = 175
	PWMMax  = 575
	PWMFreq = 60

	DefaultJointsPath = "/joints.json"

	// channels at or above this are not wired to the PWM driver
	driverChannels = 16
)

// joint id -> PWM channel
var servoMap = [Sum]int{
	16, 7, 6, 5, 4, 3, 2, 1, 0,
	18, 19, 20,
	17, 8, 9, 10, 11, 12, 13, 14, 15,
	21, 22, 23,
}

var initialHome = [Sum]int{
	-40, 245, 470, -100, -205, 50, 445, 245, -75,
	AngleNeutral, AngleNeutral, AngleNeutral,
	15, -70, -390, 250, 195, -105, -510, -305, 60,
	AngleNeutral, AngleNeutral, AngleNeutral,
}

type Setting struct {
	Min  int `json:"min"`
	Max  int `json:"max"`
	Home int `json:"home"`
}

type Driver interface {
	SetPWM(channel int, ticks int) error
}

type NopDriver struct{}

func (NopDriver) SetPWM(int, int) error { return nil }

type Joints struct {
	log      *log2.Log
	driver   Driver
	files    store.Store
	path     string
	settings [Sum]Setting
	angles   [Sum]int
}

// NewJoints with files!=nil loads and saves home angles at path.
func NewJoints(log *log2.Log, driver Driver, files store.Store, path string) *Joints {
	if driver == nil {
		driver = NopDriver{}
	}
	self := &Joints{log: log, driver: driver, files: files, path: path}
	for i := range self.settings {
		self.settings[i] = Setting{Min: AngleMin, Max: AngleMax, Home: initialHome[i]}
	}
	if files != nil && path != "" {
		if err := self.loadHome(); err != nil && !errors.IsNotFound(errors.Cause(err)) {
			self.log.Error(errors.Annotate(err, "joints load home"))
		}
	}
	return self
}

func (self *Joints) Sum() int { return Sum }

func (self *Joints) Setting(id int) (Setting, bool) {
	if id < 0 || id >= Sum {
		return Setting{}, false
	}
	return self.settings[id], true
}

func (self *Joints) Angle(id int) int {
	if id < 0 || id >= Sum {
		return 0
	}
	return self.angles[id]
}

func PWMTicks(angle int) int {
	return (angle-AngleMin)*(PWMMax-PWMMin)/(AngleMax-AngleMin) + PWMMin
}

func (self *Joints) SetAngle(id, angle int) bool {
	if id < 0 || id >= Sum {
		return false
	}
	s := self.settings[id]
	if angle < s.Min {
		angle = s.Min
	}
	if angle > s.Max {
		angle = s.Max
	}
	self.angles[id] = angle
	ch := servoMap[id]
	if ch >= driverChannels {
		return true
	}
	if err := self.driver.SetPWM(ch, PWMTicks(angle)); err != nil {
		self.log.Error(errors.Annotatef(err, "joint=%d channel=%d", id, ch))
		return false
	}
	return true
}

// SetAngleDiff sets angle relative to home.
func (self *Joints) SetAngleDiff(id, diff int) bool {
	if id < 0 || id >= Sum {
		return false
	}
	return self.SetAngle(id, self.settings[id].Home+diff)
}

func (self *Joints) SetHomeAngle(id, angle int) bool {
	if id < 0 || id >= Sum {
		return false
	}
	s := &self.settings[id]
	if angle < s.Min || angle > s.Max {
		return false
	}
	s.Home = angle
	if self.files != nil && self.path != "" {
		if err := self.saveHome(); err != nil {
			self.log.Error(errors.Annotate(err, "joints save home"))
		}
	}
	return true
}

// Home moves every joint to its home angle.
func (self *Joints) Home() {
	for id := 0; id < Sum; id++ {
		self.SetAngle(id, self.settings[id].Home)
	}
}

func (self *Joints) loadHome() error {
	b, err := store.ReadFile(self.files, self.path)
	if err != nil {
		return err
	}
	var loaded []Setting
	if err := json.Unmarshal(b, &loaded); err != nil {
		return errors.Annotatef(err, "parse %s", self.path)
	}
	for i := 0; i < len(loaded) && i < Sum; i++ {
		if loaded[i].Home >= self.settings[i].Min && loaded[i].Home <= self.settings[i].Max {
			self.settings[i].Home = loaded[i].Home
		}
	}
	return nil
}

func (self *Joints) saveHome() error {
	b, err := json.Marshal(self.settings[:])
	if err != nil {
		return err
	}
	return store.WriteFile(self.files, self.path, b)
}
