// Package console interprets text commands arriving over the passthrough
// session, one command per line.
package console

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/kjh948/plen3/log2"
)

const MaxLine = 128

type Joints interface {
	SetAngle(id, angle int) bool
	SetHomeAngle(id, angle int) bool
}

type Motions interface {
	Play(slot int) error
	SetSpeed(percent int) error
	Stop()
}

type Interpreter struct {
	log      *log2.Log
	joints   Joints
	motions  Motions
	out      io.Writer
	version  string
	line     []byte
	overflow bool
}

func New(log *log2.Log, joints Joints, motions Motions, out io.Writer, version string) *Interpreter {
	return &Interpreter{
		log:     log,
		joints:  joints,
		motions: motions,
		out:     out,
		version: version,
		line:    make([]byte, 0, MaxLine),
	}
}

// Feed consumes one byte, executing the command on line end.
func (self *Interpreter) Feed(c byte) {
	switch c {
	case '\r':
		return
	case '\n':
		line, overflow := string(self.line), self.overflow
		self.line = self.line[:0]
		self.overflow = false
		if overflow {
			self.reply("ERR line too long\n")
			return
		}
		if strings.TrimSpace(line) == "" {
			return
		}
		self.reply(self.Exec(line))
		return
	}
	if len(self.line) >= MaxLine {
		self.overflow = true
		return
	}
	self.line = append(self.line, c)
}

func (self *Interpreter) reply(s string) {
	if self.out == nil {
		return
	}
	if _, err := io.WriteString(self.out, s); err != nil {
		self.log.Debugf("console reply err=%v", err)
	}
}

// Exec runs a single command line and returns the reply with line end.
func (self *Interpreter) Exec(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	err := self.exec(fields[0], fields[1:])
	switch {
	case err == nil:
		if fields[0] == "version" {
			return self.version + "\n"
		}
		return "OK\n"
	case errors.IsNotSupported(err):
		return "ERR unknown command\n"
	case errors.IsBadRequest(err):
		return "ERR bad args\n"
	}
	self.log.Error(errors.Annotatef(err, "console %s", fields[0]))
	return "ERR failed\n"
}

func (self *Interpreter) exec(cmd string, args []string) error {
	switch cmd {
	case "move_joint", "set_home":
		n, err := ints(args, 2)
		if err != nil {
			return err
		}
		set := self.joints.SetAngle
		if cmd == "set_home" {
			set = self.joints.SetHomeAngle
		}
		if !set(n[0], n[1]) {
			return errors.BadRequestf("joint=%d value=%d", n[0], n[1])
		}
		return nil
	case "play":
		n, err := ints(args, 1)
		if err != nil {
			return err
		}
		return self.motions.Play(n[0])
	case "speed":
		n, err := ints(args, 1)
		if err != nil {
			return err
		}
		if err = self.motions.SetSpeed(n[0]); err != nil {
			return errors.NewBadRequest(err, "speed")
		}
		return nil
	case "stop":
		self.motions.Stop()
		return nil
	case "version":
		return nil
	}
	return errors.NotSupportedf("command %s", cmd)
}

func ints(args []string, want int) ([]int, error) {
	if len(args) != want {
		return nil, errors.BadRequestf("want %d arguments", want)
	}
	out := make([]int, want)
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, errors.NewBadRequest(err, fmt.Sprintf("argument %d", i+1))
		}
		out[i] = v
	}
	return out, nil
}
