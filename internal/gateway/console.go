package gateway

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleConsole upgrades to websocket and hands it to passthrough session.
func (self *Gateway) handleConsole(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		self.log.Debugf("console upgrade err=%v", err)
		return
	}
	c := &wsConn{ws: ws}
	if !self.session.Offer(c) {
		_ = c.Close()
		return
	}
	self.log.Infof("console session remote=%s", r.RemoteAddr)
}

// wsConn is a byte stream over websocket messages.
type wsConn struct {
	ws  *websocket.Conn
	r   io.Reader
	wmu sync.Mutex
}

func (self *wsConn) Read(p []byte) (int, error) {
	for {
		if self.r == nil {
			_, r, err := self.ws.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			self.r = r
		}
		n, err := self.r.Read(p)
		if err == io.EOF {
			self.r = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

func (self *wsConn) Write(p []byte) (int, error) {
	self.wmu.Lock()
	defer self.wmu.Unlock()
	if err := self.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (self *wsConn) Close() error { return self.ws.Close() }

// SetWriteDeadline lets the passthrough bound writes to a stalled peer.
func (self *wsConn) SetWriteDeadline(t time.Time) error {
	self.wmu.Lock()
	defer self.wmu.Unlock()
	return self.ws.SetWriteDeadline(t)
}
