// Package remote is an interactive client for the robot passthrough console.
package remote

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/kjh948/plen3/cmd/plen/subcmd"
	"github.com/kjh948/plen3/helpers/cli"
	"github.com/kjh948/plen3/internal/config"
	"github.com/kjh948/plen3/internal/service"
	"github.com/kjh948/plen3/log2"
)

const (
	modName   = "console"
	replyWait = 2 * time.Second
)

var Mod = subcmd.Mod{Name: modName, Usage: "console [host:port] interactive robot commands", Main: Main}

var suggests = []prompt.Suggest{
	{Text: "move_joint", Description: "move_joint ID ANGLE"},
	{Text: "set_home", Description: "set_home ID ANGLE"},
	{Text: "play", Description: "play SLOT"},
	{Text: "speed", Description: "speed PERCENT"},
	{Text: "stop", Description: "stop motion"},
	{Text: "version", Description: "device and firmware version"},
}

func Main(ctx context.Context, c *config.Config, args []string) error {
	log := log2.ContextValueLogger(ctx)
	addr := "127.0.0.1" + service.DefaultBridgeAddr
	if c.Service.PassthroughListen != "" {
		addr = c.Service.PassthroughListen
	}
	if len(args) > 0 {
		addr = args[0]
	}

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return errors.Annotatef(err, "console connect=%s", addr)
	}
	defer conn.Close()
	log.Infof("connected to %s", conn.RemoteAddr())

	done := make(chan struct{})
	go func() {
		defer close(done)
		s := bufio.NewScanner(conn)
		for s.Scan() {
			fmt.Fprintln(os.Stdout, s.Text())
		}
		log.Debugf("connection closed err=%v", s.Err())
	}()

	sh := cli.Shell{Tag: modName, Suggests: suggests, Exec: newExecutor(log, conn)}
	if err := sh.Run(os.Stdin); err != nil {
		return err
	}
	// piped input ends before replies arrive
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	select {
	case <-done:
	case <-time.After(replyWait):
	}
	return nil
}

func newExecutor(log *log2.Log, conn net.Conn) func(string) {
	return func(line string) {
		if line == "" {
			return
		}
		if _, err := conn.Write([]byte(line + "\n")); err != nil {
			log.Errorf("send err=%v", err)
		}
	}
}
