package cli

import (
	"strings"
	"testing"

	"github.com/c-bata/go-prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch(t *testing.T) {
	t.Parallel()

	var lines []string
	sh := Shell{Tag: "test", Exec: func(line string) { lines = append(lines, line) }}
	input := "# warm up\nmove_joint 0 300\n\n  play 3  \nstop"
	require.NoError(t, sh.Batch(strings.NewReader(input)))
	assert.Equal(t, []string{"move_joint 0 300", "play 3", "stop"}, lines)
}

func TestComplete(t *testing.T) {
	t.Parallel()

	sh := Shell{Suggests: []prompt.Suggest{{Text: "play"}, {Text: "speed"}, {Text: "stop"}}}
	complete := func(text string) []string {
		buf := prompt.NewBuffer()
		buf.InsertText(text, false, true)
		var names []string
		for _, s := range sh.Complete(*buf.Document()) {
			names = append(names, s.Text)
		}
		return names
	}
	assert.Nil(t, complete(""))
	assert.Equal(t, []string{"speed", "stop"}, complete("s"))
	assert.Equal(t, []string{"play"}, complete("PL"))
	assert.Nil(t, complete("play 1"))
}
