package robot

import (
	"encoding/json"
	"fmt"
	"path"

	"github.com/juju/errors"
	"github.com/kjh948/plen3/internal/store"
	"github.com/kjh948/plen3/log2"
)

const (
	DefaultMotionDir  = "/motions"
	DefaultTransition = 200 // ms
	UpdateIntervalMs  = 40
	DefaultSpeed      = 100 // percent
)

// device name -> joint id
var deviceMap = map[string]int{
	"left_shoulder_pitch": 0,
	"left_thigh_yaw":      1,
	"left_shoulder_roll":  2,
	"left_elbow_roll":     3,
	"left_thigh_roll":     4,
	"left_thigh_pitch":    5,
	"left_knee_pitch":     6,
	"left_foot_pitch":     7,
	"left_foot_roll":      8,

	"right_shoulder_pitch": 12,
	"right_thigh_yaw":      13,
	"right_shoulder_roll":  14,
	"right_elbow_roll":     15,
	"right_thigh_roll":     16,
	"right_thigh_pitch":    17,
	"right_knee_pitch":     18,
	"right_foot_pitch":     19,
	"right_foot_roll":      20,
}

type Output struct {
	Device string  `json:"device"`
	Value  float64 `json:"value"`
}

type Frame struct {
	TransitionMs int      `json:"transition_time_ms"`
	Outputs      []Output `json:"outputs"`
}

type Motion struct {
	Name   string  `json:"name"`
	Frames []Frame `json:"frames"`
}

func ParseMotion(b []byte) (*Motion, error) {
	m := &Motion{}
	if err := json.Unmarshal(b, m); err != nil {
		return nil, errors.NotValidf("motion json: %v", err)
	}
	for _, f := range m.Frames {
		for _, o := range f.Outputs {
			if _, ok := deviceMap[o.Device]; !ok {
				return nil, errors.NotValidf("motion device=%s", o.Device)
			}
		}
	}
	return m, nil
}

// Player interpolates motion frames, one step per Update call.
// Angles are deviations from home, kept across plays so the next motion
// starts from where the last one ended.
type Player struct {
	log    *log2.Log
	joints *Joints
	files  store.Store
	dir    string
	speed  int

	motion  *Motion
	slot    int
	frame   int
	step    int
	steps   int
	current [Sum]float64
	target  [Sum]float64
	diff    [Sum]float64
}

func NewPlayer(log *log2.Log, joints *Joints, files store.Store, dir string) *Player {
	if dir == "" {
		dir = DefaultMotionDir
	}
	return &Player{log: log, joints: joints, files: files, dir: dir, speed: DefaultSpeed}
}

func (self *Player) MotionPath(slot int) string {
	return path.Join(self.dir, fmt.Sprintf("%02d.json", slot))
}

func (self *Player) Play(slot int) error {
	if slot < 0 {
		return errors.NotValidf("motion slot=%d", slot)
	}
	b, err := store.ReadFile(self.files, self.MotionPath(slot))
	if err != nil {
		return errors.Annotatef(err, "motion slot=%d", slot)
	}
	m, err := ParseMotion(b)
	if err != nil {
		return errors.Annotatef(err, "motion slot=%d", slot)
	}
	self.log.Infof("motion play slot=%d name=%s frames=%d speed=%d", slot, m.Name, len(m.Frames), self.speed)
	self.motion = m
	self.slot = slot
	self.frame = 0
	self.step = 0
	self.steps = 0
	if len(m.Frames) == 0 {
		self.motion = nil
	}
	return nil
}

func (self *Player) Stop() {
	if self.motion != nil {
		self.log.Debugf("motion stop slot=%d frame=%d", self.slot, self.frame)
	}
	self.motion = nil
}

func (self *Player) Playing() bool { return self.motion != nil }
func (self *Player) Speed() int    { return self.speed }

// SetSpeed in percent of recorded speed.
func (self *Player) SetSpeed(percent int) error {
	if percent <= 0 {
		return errors.NotValidf("motion speed=%d", percent)
	}
	self.speed = percent
	return nil
}

func (self *Player) setupFrame() {
	f := self.motion.Frames[self.frame]
	transition := f.TransitionMs
	if transition <= 0 {
		transition = DefaultTransition
	}
	transition = transition * 100 / self.speed
	self.steps = transition / UpdateIntervalMs
	if self.steps < 1 {
		self.steps = 1
	}
	self.target = self.current
	for _, o := range f.Outputs {
		self.target[deviceMap[o.Device]] = o.Value
	}
	for i := range self.diff {
		self.diff[i] = (self.target[i] - self.current[i]) / float64(self.steps)
	}
	self.step = 0
}

// Update advances playback by one interval, false when idle.
func (self *Player) Update() bool {
	if self.motion == nil {
		return false
	}
	if self.step == 0 {
		self.setupFrame()
	}
	self.step++
	if self.step >= self.steps {
		self.current = self.target
	} else {
		for i := range self.current {
			self.current[i] += self.diff[i]
		}
	}
	for i := range self.current {
		self.joints.SetAngleDiff(i, int(self.current[i]))
	}
	if self.step >= self.steps {
		self.step = 0
		self.frame++
		if self.frame >= len(self.motion.Frames) {
			self.log.Debugf("motion done slot=%d", self.slot)
			self.motion = nil
		}
	}
	return true
}
