package beacon

import (
	"github.com/grandcat/zeroconf"
	"github.com/juju/errors"
)

const ServiceHTTP = "_http._tcp"

// Advertiser publishes DNS-SD record so browsers and apps find the robot
// without listening for broadcast beacons.
type Advertiser struct {
	server *zeroconf.Server
}

func Advertise(instance string, port int, txt []string) (*Advertiser, error) {
	server, err := zeroconf.Register(instance, ServiceHTTP, "local.", port, txt, nil)
	if err != nil {
		return nil, errors.Annotatef(err, "mdns register instance=%s port=%d", instance, port)
	}
	return &Advertiser{server: server}, nil
}

func (self *Advertiser) Close() error {
	if self != nil && self.server != nil {
		self.server.Shutdown()
		self.server = nil
	}
	return nil
}
