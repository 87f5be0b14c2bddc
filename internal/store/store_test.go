package store

import (
	"io/ioutil"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDir(t *testing.T) {
	t.Parallel()

	d, err := NewDir(t.TempDir())
	require.NoError(t, err)

	list, err := d.List("/")
	require.NoError(t, err)
	assert.Equal(t, []Entry{}, list)
	list, err = d.List("/missing")
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.False(t, d.Exists("/index.htm"))
	require.NoError(t, WriteFile(d, "/index.htm", []byte("<h1>PLEN</h1>")))
	require.NoError(t, WriteFile(d, "motions/01.json", []byte("{}")))
	assert.True(t, d.Exists("/index.htm"))
	assert.False(t, d.Exists("/motions"))

	b, err := ReadFile(d, "/index.htm")
	require.NoError(t, err)
	assert.Equal(t, "<h1>PLEN</h1>", string(b))

	list, err = d.List("/")
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Name: "/index.htm", Size: 13},
		{Name: "/motions", Dir: true, Size: list[1].Size},
	}, list)

	_, err = d.Open("/nope")
	assert.True(t, errors.IsNotFound(err))
	_, err = d.Open("/motions")
	assert.True(t, errors.IsNotFound(err))
	assert.True(t, errors.IsNotFound(d.Remove("/nope")))
	assert.True(t, errors.IsNotValid(d.Remove("/")))
	_, err = d.Create("/")
	assert.True(t, errors.IsNotValid(err))

	require.NoError(t, d.Remove("/index.htm"))
	assert.False(t, d.Exists("/index.htm"))
}

func TestEscape(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	d, err := NewDir(root + "/www")
	require.NoError(t, err)
	require.NoError(t, ioutil.WriteFile(root+"/secret", []byte("x"), 0600))
	assert.False(t, d.Exists("../secret"))
	assert.Equal(t, "/secret", Clean("../../secret"))
	assert.Equal(t, "/", Clean(""))
}
