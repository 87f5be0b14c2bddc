package main

import (
	"context"
	"flag"
	"os"

	"github.com/juju/errors"
	"github.com/kjh948/plen3/cmd/plen/discover"
	"github.com/kjh948/plen3/cmd/plen/remote"
	"github.com/kjh948/plen3/cmd/plen/run"
	"github.com/kjh948/plen3/cmd/plen/subcmd"
	"github.com/kjh948/plen3/internal/config"
	"github.com/kjh948/plen3/log2"
)

var log = log2.NewStderr(log2.LDebug)

var modules = subcmd.Table{
	run.Mod,
	remote.Mod,
	discover.Mod,
}

func main() {
	cmdline := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagConfig := cmdline.String("config", "plen.hcl", "")
	cmdline.Usage = func() {
		modules.WriteUsage(cmdline.Output(), os.Args[0])
		cmdline.PrintDefaults()
	}
	if err := cmdline.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	mod, err := modules.Find(cmdline.Arg(0))
	if err != nil {
		cmdline.Usage()
		log.Fatal(err)
	}

	if mod.Name == run.Mod.Name && (subcmd.Notifier{Log: log}).Notify("start") {
		// under systemd journal adds timestamps
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	config := config.MustReadFile(log, *flagConfig)
	if !config.Device.LogDebug {
		log.SetLevel(log2.LInfo)
	}
	ctx := context.WithValue(context.Background(), log2.ContextKey, log)
	if err := mod.Main(ctx, config, cmdline.Args()[1:]); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}
