package subcmd

import (
	"bytes"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	t.Parallel()

	table := Table{{Name: "run", Usage: "run robot service"}, {Name: "discover", Usage: "listen for beacons"}}
	m, err := table.Find("discover")
	require.NoError(t, err)
	assert.Equal(t, "discover", m.Name)

	_, err = table.Find("")
	assert.True(t, errors.IsNotValid(err))
	_, err = table.Find("fly")
	assert.True(t, errors.IsNotFound(err))

	var buf bytes.Buffer
	table.WriteUsage(&buf, "plen")
	assert.Contains(t, buf.String(), "usage: plen [flags] command [args]")
	assert.Contains(t, buf.String(), "  run        run robot service\n")
}
