// Package run is the robot service: link management, web services and
// robot control until signalled.
package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/kjh948/plen3/cmd/plen/subcmd"
	"github.com/kjh948/plen3/internal/config"
	"github.com/kjh948/plen3/internal/system"
	"github.com/kjh948/plen3/log2"
)

var Mod = subcmd.Mod{Name: "run", Usage: "run robot service", Main: Main}

func Main(ctx context.Context, c *config.Config, args []string) error {
	log := log2.ContextValueLogger(ctx)

	var runner *system.Runner
	reboot := func() {
		// systemd restarts the unit into updated binary
		log.Infof("restart requested")
		if runner != nil {
			runner.Stop()
		}
	}
	sys, err := system.New(ctx, system.Options{
		Log:     log,
		Config:  c,
		Version: subcmd.Version,
		Reboot:  reboot,
	})
	if err != nil {
		return errors.Annotate(err, "system init")
	}
	runner = system.NewRunner(sys, c.Tick(), 0)
	runner.OnTick = notifier(log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		log.Infof("signal=%v stopping", s)
		runner.Stop()
	}()

	log.Debugf("system init complete, running")
	runner.Run()
	runner.Wait()
	signal.Stop(sigCh)
	(subcmd.Notifier{Log: log}).Notify(daemon.SdNotifyStopping)
	return errors.Annotate(sys.Close(), "system close")
}

// notifier reports readiness after first tick and pings watchdog if enabled.
func notifier(log *log2.Log) func() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Error(errors.Annotate(err, "watchdog"))
	}
	sd := subcmd.Notifier{Log: log}
	ready := false
	var last time.Time
	return func() {
		if !ready {
			ready = true
			sd.Notify(daemon.SdNotifyReady)
		}
		if interval > 0 && time.Since(last) >= interval/2 {
			last = time.Now()
			sd.Notify(daemon.SdNotifyWatchdog)
		}
	}
}
