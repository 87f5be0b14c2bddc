package robot

import (
	"math"
	"time"

	"github.com/juju/errors"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"
)

const DefaultPCA9685Addr = 0x40

const (
	regMode1     = 0x00
	regMode2     = 0x01
	regLED0OnL   = 0x06
	regAllLEDOnL = 0xfa
	regPrescale  = 0xfe

	mode1Sleep   = 0x10
	mode1AllCall = 0x01
	mode1Restart = 0x80
	mode2OutDrv  = 0x04

	oscillatorHz = 25000000
)

type registerConn interface {
	Tx(w, r []byte) error
}

// PCA9685 16 channel 12 bit PWM driver.
type PCA9685 struct {
	conn  registerConn
	bus   i2c.BusCloser
	sleep func(time.Duration)
}

var _ Driver = &PCA9685{}

func OpenPCA9685(busName string, addr uint16, freq int) (*PCA9685, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Annotate(err, "periph/init")
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, errors.Annotatef(err, "I2C open bus=%s", busName)
	}
	if addr == 0 {
		addr = DefaultPCA9685Addr
	}
	self := &PCA9685{conn: &i2c.Dev{Bus: bus, Addr: addr}, bus: bus, sleep: time.Sleep}
	if err := self.init(freq); err != nil {
		bus.Close()
		return nil, errors.Annotatef(err, "pca9685 bus=%s addr=%#x", busName, addr)
	}
	return self, nil
}

func (self *PCA9685) write8(reg, value byte) error {
	return self.conn.Tx([]byte{reg, value}, nil)
}

func (self *PCA9685) read8(reg byte) (byte, error) {
	var r [1]byte
	err := self.conn.Tx([]byte{reg}, r[:])
	return r[0], err
}

func prescale(freq int) byte {
	v := float64(oscillatorHz)/4096/float64(freq) - 1
	return byte(math.Floor(v + 0.5))
}

func (self *PCA9685) init(freq int) error {
	if freq <= 0 {
		freq = PWMFreq
	}
	for _, w := range [][2]byte{
		{regAllLEDOnL, 0}, {regAllLEDOnL + 1, 0}, {regAllLEDOnL + 2, 0}, {regAllLEDOnL + 3, 0},
		{regMode2, mode2OutDrv},
		{regMode1, mode1AllCall},
	} {
		if err := self.write8(w[0], w[1]); err != nil {
			return err
		}
	}
	self.sleep(5 * time.Millisecond)
	mode1, err := self.read8(regMode1)
	if err != nil {
		return err
	}
	mode1 &^= mode1Sleep
	if err = self.write8(regMode1, mode1); err != nil {
		return err
	}
	self.sleep(5 * time.Millisecond)

	// prescale may only be written while sleeping
	if err = self.write8(regMode1, (mode1&0x7f)|mode1Sleep); err != nil {
		return err
	}
	if err = self.write8(regPrescale, prescale(freq)); err != nil {
		return err
	}
	if err = self.write8(regMode1, mode1); err != nil {
		return err
	}
	self.sleep(5 * time.Millisecond)
	return self.write8(regMode1, mode1|mode1Restart)
}

func (self *PCA9685) SetPWM(channel int, ticks int) error {
	if channel < 0 || channel >= driverChannels {
		return errors.NotValidf("pca9685 channel=%d", channel)
	}
	reg := byte(regLED0OnL + 4*channel)
	off := uint16(ticks)
	for i, v := range [4]byte{0, 0, byte(off), byte(off >> 8)} {
		if err := self.write8(reg+byte(i), v); err != nil {
			return errors.Annotatef(err, "pca9685 channel=%d", channel)
		}
	}
	return nil
}

func (self *PCA9685) Close() error {
	if self.bus == nil {
		return nil
	}
	return self.bus.Close()
}
