package system

import (
	"time"

	"github.com/kjh948/plen3/internal/robot"
	"github.com/temoto/alive/v2"
)

const DefaultStep = robot.UpdateIntervalMs * time.Millisecond

// Runner is the control goroutine. Every System method except Close is
// called from Run only.
type Runner struct {
	alive *alive.Alive
	sys   *System
	tick  time.Duration
	step  time.Duration

	// OnTick is called after every link tick, e.g. watchdog ping.
	OnTick func()
}

func NewRunner(sys *System, tick, step time.Duration) *Runner {
	if tick <= 0 {
		tick = time.Second
	}
	if step <= 0 {
		step = DefaultStep
	}
	return &Runner{alive: alive.NewAlive(), sys: sys, tick: tick, step: step}
}

// Run blocks until Stop. First tick happens immediately.
func (self *Runner) Run() {
	if !self.alive.Add(1) {
		return
	}
	defer self.alive.Done()

	tickTimer := time.NewTicker(self.tick)
	defer tickTimer.Stop()
	stepTimer := time.NewTicker(self.step)
	defer stepTimer.Stop()

	self.sys.Start()
	self.doTick()
	stopCh := self.alive.StopChan()
	for self.alive.IsRunning() {
		select {
		case <-stopCh:
		case <-tickTimer.C:
			self.doTick()
		case <-stepTimer.C:
			self.sys.Step()
		}
	}
}

func (self *Runner) doTick() {
	self.sys.Tick()
	if self.OnTick != nil {
		self.OnTick()
	}
}

func (self *Runner) Stop() { self.alive.Stop() }
func (self *Runner) Wait() { self.alive.Wait() }
