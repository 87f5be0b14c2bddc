package beacon

import (
	"context"
	"net"

	"github.com/juju/errors"
)

type UDPSender struct {
	conn net.PacketConn
	dst  *net.UDPAddr
}

var _ Sender = &UDPSender{}

func NewUDPSender(addr string) (*UDPSender, error) {
	dst, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, errors.Annotatef(err, "beacon addr=%s", addr)
	}
	lc := net.ListenConfig{Control: controlBroadcast}
	conn, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return nil, errors.Annotate(err, "beacon socket")
	}
	return &UDPSender{conn: conn, dst: dst}, nil
}

func (self *UDPSender) Send(payload []byte) error {
	_, err := self.conn.WriteTo(payload, self.dst)
	return err
}

func (self *UDPSender) Close() error { return self.conn.Close() }

// Listen calls fn for every beacon datagram until ctx is done.
func Listen(ctx context.Context, addr string, fn func(name string, from net.Addr)) error {
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return errors.Annotatef(err, "beacon listen=%s", addr)
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	buf := make([]byte, 256)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Annotate(err, "beacon read")
		}
		fn(string(buf[:n]), from)
	}
}
