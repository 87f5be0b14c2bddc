// Package discover prints robots announcing themselves on the local network.
package discover

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/kjh948/plen3/cmd/plen/subcmd"
	"github.com/kjh948/plen3/internal/beacon"
	"github.com/kjh948/plen3/internal/config"
	"github.com/kjh948/plen3/log2"
)

var Mod = subcmd.Mod{Name: "discover", Usage: "discover [duration] listen for robot beacons", Main: Main}

const listenAddr = ":6000"

func Main(ctx context.Context, c *config.Config, args []string) error {
	log := log2.ContextValueLogger(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if len(args) > 0 {
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return errors.Annotatef(err, "discover duration=%s", args[0])
		}
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	seen := make(map[string]string)
	return beacon.Listen(ctx, listenAddr, func(name string, from net.Addr) {
		host := from.String()
		if prev, ok := seen[name]; ok && prev == host {
			return
		}
		seen[name] = host
		log.Infof("robot name=%s addr=%s", name, host)
	})
}
