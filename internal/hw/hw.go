// Package hw reads board status for the /all endpoint.
package hw

import (
	"io/ioutil"
	"runtime"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/kjh948/plen3/log2"
	gpio "github.com/temoto/gpio-cdev-go"
)

type Config struct {
	AnalogPath string   // sysfs IIO raw value file
	GPIOChip   string   // like /dev/gpiochip0
	GPIOLines  []uint32 // bit i of snapshot is line GPIOLines[i]
}

type Snapshot struct {
	Heap   uint64 `json:"heap"`
	Analog int    `json:"analog"`
	GPIO   uint32 `json:"gpio"`
}

type Info struct {
	log        *log2.Log
	analogPath string
	chip       gpio.Chiper
	lines      gpio.Lineser
}

// New never fails, unavailable sources read as zero.
func New(log *log2.Log, c Config) *Info {
	self := &Info{log: log, analogPath: c.AnalogPath}
	if c.GPIOChip != "" && len(c.GPIOLines) != 0 {
		if err := self.openGPIO(c.GPIOChip, c.GPIOLines); err != nil {
			self.log.Error(err)
		}
	}
	return self
}

func (self *Info) openGPIO(chipPath string, offsets []uint32) error {
	chip, err := gpio.Open(chipPath, "plen")
	if err != nil {
		return errors.Annotatef(err, "gpio open chip=%s", chipPath)
	}
	lines, err := chip.OpenLines(gpio.GPIOHANDLE_REQUEST_INPUT, "plen-status", offsets...)
	if err != nil {
		chip.Close()
		return errors.Annotatef(err, "gpio lines chip=%s offsets=%v", chipPath, offsets)
	}
	self.chip, self.lines = chip, lines
	return nil
}

// Heap reports heap bytes available for reuse without asking the OS.
func (self *Info) Heap() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapIdle - ms.HeapReleased
}

func (self *Info) Analog() int {
	if self.analogPath == "" {
		return 0
	}
	b, err := ioutil.ReadFile(self.analogPath)
	if err != nil {
		self.log.Debugf("analog read err=%v", err)
		return 0
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		self.log.Debugf("analog parse err=%v", err)
		return 0
	}
	return v
}

func (self *Info) GPIO() uint32 {
	if self.lines == nil {
		return 0
	}
	data, err := self.lines.Read()
	if err != nil {
		self.log.Debugf("gpio read err=%v", err)
		return 0
	}
	return packLines(data.Values[:], len(self.lines.LineOffsets()))
}

func packLines(values []byte, n int) uint32 {
	var mask uint32
	for i := 0; i < n && i < 32 && i < len(values); i++ {
		if values[i] != 0 {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

func (self *Info) Snapshot() Snapshot {
	return Snapshot{Heap: self.Heap(), Analog: self.Analog(), GPIO: self.GPIO()}
}

func (self *Info) Close() error {
	var errs []error
	if self.lines != nil {
		errs = append(errs, self.lines.Close())
	}
	if self.chip != nil {
		errs = append(errs, self.chip.Close())
	}
	self.lines, self.chip = nil, nil
	for _, e := range errs {
		if e != nil {
			return errors.Annotate(e, "hw close")
		}
	}
	return nil
}
