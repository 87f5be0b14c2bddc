// Package service starts network services once the link is up.
package service

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/kjh948/plen3/helpers"
	"github.com/kjh948/plen3/log2"
	"github.com/temoto/alive/v2"
)

const (
	DefaultHTTPAddr   = ":80"
	DefaultBridgeAddr = ":23"
)

// DefaultReadTimeout limits whole request including body, firmware upload over weak wifi fits.
const DefaultReadTimeout = 2 * time.Minute

const (
	bootstrapIdle uint32 = iota
	bootstrapStarted
)

type Listener interface {
	Listen(addr string) error
}

// Options.Advertise, if set, is called once with the bound HTTP port.
type Options struct {
	Log        *log2.Log
	HTTPAddr   string
	BridgeAddr string
	Routes     func() http.Handler
	Bridge     Listener
	Advertise  func(port int) (io.Closer, error)

	// 0 means DefaultReadTimeout
	ReadTimeout time.Duration
}

type Bootstrap struct {
	alive  *alive.Alive
	log    *log2.Log
	opt    Options
	state  uint32
	server *http.Server
	ln     net.Listener
	advert io.Closer
}

func New(opt Options) *Bootstrap {
	if opt.HTTPAddr == "" {
		opt.HTTPAddr = DefaultHTTPAddr
	}
	if opt.BridgeAddr == "" {
		opt.BridgeAddr = DefaultBridgeAddr
	}
	if opt.ReadTimeout == 0 {
		opt.ReadTimeout = DefaultReadTimeout
	}
	return &Bootstrap{
		alive: alive.NewAlive(),
		log:   opt.Log,
		opt:   opt,
	}
}

func (self *Bootstrap) Started() bool { return atomic.LoadUint32(&self.state) == bootstrapStarted }

func (self *Bootstrap) HTTPAddr() net.Addr {
	if !self.Started() {
		return nil
	}
	return self.ln.Addr()
}

// EnsureStarted builds routes and binds HTTP and passthrough listeners.
// No-op after first success. On bind failure everything bound so far is
// released and the next call tries again.
func (self *Bootstrap) EnsureStarted() error {
	if self.Started() {
		return nil
	}
	if !self.alive.IsRunning() {
		return errors.Errorf("bootstrap after Stop")
	}

	handler := self.opt.Routes()
	ln, err := net.Listen("tcp", self.opt.HTTPAddr)
	if err != nil {
		return errors.Annotatef(err, "http listen=%s", self.opt.HTTPAddr)
	}
	if self.opt.Bridge != nil {
		if err = self.opt.Bridge.Listen(self.opt.BridgeAddr); err != nil {
			_ = ln.Close()
			return errors.Annotate(err, "bootstrap")
		}
	}

	self.ln = ln
	self.server = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       self.opt.ReadTimeout,
	}
	self.alive.Add(1)
	go self.serve(self.server, ln)
	atomic.StoreUint32(&self.state, bootstrapStarted)
	self.log.Infof("services started http=%s passthrough=%s", ln.Addr(), self.opt.BridgeAddr)

	if self.opt.Advertise != nil {
		port := ln.Addr().(*net.TCPAddr).Port
		if self.advert, err = self.opt.Advertise(port); err != nil {
			self.log.Error(errors.Annotate(err, "advertise"))
		}
	}
	return nil
}

func (self *Bootstrap) serve(server *http.Server, ln net.Listener) {
	defer self.alive.Done()
	err := server.Serve(ln)
	if err != nil && err != http.ErrServerClosed {
		self.log.Error(errors.Annotate(err, "http serve"))
	}
}

// Stop shuts HTTP server down gracefully within ctx.
// Passthrough listener is owned and closed by its creator.
func (self *Bootstrap) Stop(ctx context.Context) error {
	self.alive.Stop()
	var errs []error
	if self.advert != nil {
		errs = append(errs, self.advert.Close())
	}
	if self.server != nil {
		errs = append(errs, self.server.Shutdown(ctx))
	}
	self.alive.Wait()
	return helpers.FoldErrors(errs)
}
