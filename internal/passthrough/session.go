package passthrough

import (
	"io"

	"github.com/temoto/atomic_clock"
)

type session struct {
	conn io.ReadWriteCloser
	data chan []byte
	quit chan struct{}
	last atomic_clock.Clock

	// poll path only
	buf    []byte
	dead   bool
	closed bool
}

func newSession(c io.ReadWriteCloser) *session {
	s := &session{
		conn: c,
		data: make(chan []byte, chunkDepth),
		quit: make(chan struct{}),
	}
	s.last.SetNow()
	go s.readLoop()
	return s
}

// readLoop is the only sender on data and closes it on exit.
func (self *session) readLoop() {
	defer close(self.data)
	for {
		b := make([]byte, chunkSize)
		n, err := self.conn.Read(b)
		if n > 0 {
			self.last.SetNow()
			select {
			case self.data <- b[:n]:
			case <-self.quit:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (self *session) pull() {
	for !self.dead {
		select {
		case chunk, ok := <-self.data:
			if !ok {
				self.dead = true
				return
			}
			self.buf = append(self.buf, chunk...)
		default:
			return
		}
	}
}

func (self *session) close() {
	if self.closed {
		return
	}
	self.closed = true
	self.dead = true
	close(self.quit)
	_ = self.conn.Close()
}
