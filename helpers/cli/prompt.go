// Package cli runs interactive line based clients.
package cli

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
)

// Shell reads commands from terminal with completion,
// or line by line from piped input.
type Shell struct {
	Tag      string
	Suggests []prompt.Suggest
	Exec     func(line string)
}

func (self *Shell) Run(in *os.File) error {
	if isatty.IsTerminal(in.Fd()) {
		prompt.New(self.Exec, self.Complete,
			prompt.OptionPrefix(self.Tag+"> "),
			prompt.OptionTitle(self.Tag),
		).Run()
		return nil
	}
	return self.Batch(in)
}

// Batch skips empty lines and # comments.
func (self *Shell) Batch(r io.Reader) error {
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		self.Exec(line)
	}
	return errors.Annotatef(s.Err(), "%s input", self.Tag)
}

// Complete suggests only the first word, arguments are free form.
func (self *Shell) Complete(d prompt.Document) []prompt.Suggest {
	before := d.TextBeforeCursor()
	if before == "" || strings.Contains(before, " ") {
		return nil
	}
	return prompt.FilterHasPrefix(self.Suggests, d.GetWordBeforeCursor(), true)
}
