package config

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/juju/errors"
)

// Reader resolves include names and loads their content.
// Load returns errors.NotFound for missing sources.
type Reader interface {
	Resolve(name string) string
	Load(path string) ([]byte, error)
}

// DirReader resolves relative includes against the directory of the main config file.
type DirReader struct{ Dir string }

func NewDirReader(dir string) (DirReader, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return DirReader{}, errors.Annotatef(err, "config dir=%s", dir)
	}
	return DirReader{Dir: abs}, nil
}

func (self DirReader) Resolve(name string) string {
	if !filepath.IsAbs(name) {
		name = filepath.Join(self.Dir, name)
	}
	return filepath.Clean(name)
}

func (DirReader) Load(path string) ([]byte, error) {
	b, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.NewNotFound(err, path)
	}
	return b, errors.Trace(err)
}

// MapReader serves sources from memory, keys are used as is.
type MapReader map[string]string

func (MapReader) Resolve(name string) string { return filepath.Clean(name) }

func (self MapReader) Load(path string) ([]byte, error) {
	s, ok := self[path]
	if !ok {
		return nil, errors.NotFoundf("source=%s", path)
	}
	return []byte(s), nil
}
