// Package subcmd dispatches plen command line to one of its modules.
package subcmd

import (
	"context"
	"fmt"
	"io"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/kjh948/plen3/internal/config"
	"github.com/kjh948/plen3/log2"
)

// Version is set at build time with -ldflags "-X .../subcmd.Version=..."
var Version = "dev"

type Mod struct {
	Name  string
	Usage string
	Main  func(ctx context.Context, config *config.Config, args []string) error
}

type Table []Mod

func (self Table) Find(command string) (*Mod, error) {
	if command == "" {
		return nil, errors.NotValidf("empty command")
	}
	for i := range self {
		if self[i].Name == command {
			return &self[i], nil
		}
	}
	return nil, errors.NotFoundf("command=%s", command)
}

func (self Table) WriteUsage(w io.Writer, program string) {
	fmt.Fprintf(w, "usage: %s [flags] command [args]\ncommands:\n", program)
	for _, m := range self {
		fmt.Fprintf(w, "  %-10s %s\n", m.Name, m.Usage)
	}
}

// Notifier sends systemd state, no-op outside of systemd unit.
type Notifier struct {
	Log *log2.Log
}

// Notify returns true only when message was delivered to systemd.
func (self Notifier) Notify(state string) bool {
	ok, err := daemon.SdNotify(false, state)
	if err != nil {
		self.Log.Error(errors.Annotatef(err, "sdnotify state=%s", state))
		return false
	}
	return ok
}
