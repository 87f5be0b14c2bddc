// Package passthrough bridges a single raw byte session (TCP or WebSocket)
// to the control goroutine. A new session always overtakes the current one.
package passthrough

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/kjh948/plen3/log2"
	"github.com/temoto/alive/v2"
	"github.com/temoto/atomic_clock"
)

const (
	incomingDepth = 4
	chunkSize     = 512
	chunkDepth    = 16

	// peer that does not read for this long is considered dead
	writeTimeout = 200 * time.Millisecond
)

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

var ErrNoSession = errors.New("passthrough no session")

// Bridge fields except incoming and listener belong to the poll path,
// Available/ReadByte/Write/Connected must be called from one goroutine.
type Bridge struct {
	alive    *alive.Alive
	log      *log2.Log
	incoming chan io.ReadWriteCloser

	mu       sync.Mutex
	listener net.Listener

	session   *session
	accepted  uint64
	overtaken uint64
}

func NewBridge(log *log2.Log) *Bridge {
	return &Bridge{
		alive:    alive.NewAlive(),
		log:      log,
		incoming: make(chan io.ReadWriteCloser, incomingDepth),
	}
}

// Listen binds TCP listener and starts accepting in background.
func (self *Bridge) Listen(addr string) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.listener != nil {
		return errors.AlreadyExistsf("passthrough listener %s", self.listener.Addr())
	}
	if !self.alive.Add(1) {
		return errors.Errorf("passthrough Listen after Close")
	}
	ll, err := net.Listen("tcp", addr)
	if err != nil {
		self.alive.Done()
		return errors.Annotatef(err, "passthrough listen=%s", addr)
	}
	self.listener = ll
	self.log.Debugf("passthrough listen=%s", ll.Addr())
	go self.acceptLoop(ll)
	return nil
}

func (self *Bridge) Addr() net.Addr {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.listener == nil {
		return nil
	}
	return self.listener.Addr()
}

func (self *Bridge) acceptLoop(ll net.Listener) {
	defer self.alive.Done()
	for {
		conn, err := ll.Accept()
		if !self.alive.IsRunning() {
			if conn != nil {
				_ = conn.Close()
			}
			return
		}
		if err != nil {
			self.log.Error(errors.Annotatef(err, "passthrough accept listen=%s", ll.Addr()))
			return
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		self.Offer(conn)
	}
}

// Offer hands a new session to the poll path. Safe for concurrent use.
// Returns false and closes c if the bridge is closed or overloaded.
func (self *Bridge) Offer(c io.ReadWriteCloser) bool {
	if !self.alive.IsRunning() {
		_ = c.Close()
		return false
	}
	select {
	case self.incoming <- c:
		return true
	default:
		self.log.Errorf("passthrough incoming queue full, drop session")
		_ = c.Close()
		return false
	}
}

// adopt takes the newest offered session, closing whatever was before.
func (self *Bridge) adopt() {
	for {
		select {
		case c := <-self.incoming:
			if self.session != nil {
				self.overtaken++
				self.log.Infof("passthrough session overtake dead=%t", self.session.dead)
				self.session.close()
			}
			self.accepted++
			self.session = newSession(c)
			self.log.Debugf("passthrough session accepted n=%d", self.accepted)
		default:
			return
		}
	}
}

// Available returns number of bytes ready for ReadByte.
// Drops the session when its peer is gone and nothing is left to read.
func (self *Bridge) Available() int {
	self.adopt()
	s := self.session
	if s == nil {
		return 0
	}
	s.pull()
	if n := len(s.buf); n > 0 {
		return n
	}
	if s.dead {
		self.log.Debugf("passthrough session closed")
		s.close()
		self.session = nil
	}
	return 0
}

func (self *Bridge) ReadByte() (byte, error) {
	s := self.session
	if s == nil || len(s.buf) == 0 {
		return 0, io.EOF
	}
	b := s.buf[0]
	s.buf = s.buf[1:]
	return b, nil
}

func (self *Bridge) Write(p []byte) (int, error) {
	self.adopt()
	s := self.session
	if s == nil || s.dead {
		return 0, ErrNoSession
	}
	if wd, ok := s.conn.(writeDeadliner); ok {
		_ = wd.SetWriteDeadline(time.Now().Add(writeTimeout))
	}
	n, err := s.conn.Write(p)
	if err != nil {
		s.dead = true
		return n, errors.Annotate(err, "passthrough write")
	}
	return n, nil
}

func (self *Bridge) Connected() bool {
	self.adopt()
	if self.session == nil {
		return false
	}
	self.session.pull()
	return !self.session.dead || len(self.session.buf) > 0
}

// Idle returns time since last received byte, 0 without session.
func (self *Bridge) Idle() time.Duration {
	if self.session == nil {
		return 0
	}
	return atomic_clock.Since(&self.session.last)
}

func (self *Bridge) Stats() (accepted, overtaken uint64) {
	return self.accepted, self.overtaken
}

// Close stops accepting and waits for the accept loop.
// Current session is closed by the caller's goroutine via Drop.
func (self *Bridge) Close() error {
	self.alive.Stop()
	self.mu.Lock()
	var err error
	if self.listener != nil {
		err = self.listener.Close()
	}
	self.mu.Unlock()
	self.alive.Wait()
	for {
		select {
		case c := <-self.incoming:
			_ = c.Close()
		default:
			return errors.Annotate(err, "passthrough close")
		}
	}
}

// Drop closes current session, poll path only.
func (self *Bridge) Drop() {
	if self.session != nil {
		self.session.close()
		self.session = nil
	}
}
