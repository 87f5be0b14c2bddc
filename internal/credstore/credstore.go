// Package credstore persists wireless credentials.
package credstore

import (
	"sync"

	"github.com/juju/errors"
	"github.com/kjh948/plen3/internal/link"
	"github.com/kjh948/plen3/internal/store"
	"github.com/kjh948/plen3/log2"
)

const DefaultPath = "/syscfg.txt"

// File keeps credentials as plain text inside the file store.
type File struct {
	log   *log2.Log
	files store.Store
	path  string
}

var _ link.CredentialStore = &File{}

func NewFile(log *log2.Log, files store.Store, path string) *File {
	if path == "" {
		path = DefaultPath
	}
	return &File{log: log, files: files, path: path}
}

func (self *File) Load() (link.Credentials, error) {
	var c link.Credentials
	b, err := store.ReadFile(self.files, self.path)
	if err != nil {
		return c, errors.Annotate(err, "credentials load")
	}
	err = c.UnmarshalBinary(b)
	return c, errors.Annotatef(err, "credentials parse %s", self.path)
}

func (self *File) Save(c link.Credentials) error {
	b, err := c.MarshalBinary()
	if err != nil {
		return errors.Annotate(err, "credentials save")
	}
	self.log.Debugf("credentials save path=%s %s", self.path, c)
	return errors.Annotate(store.WriteFile(self.files, self.path, b), "credentials save")
}

type storage interface {
	Read() ([]byte, error)
	Write([]byte) (int, error)
}

// Extremo keeps credentials in extremofile, surviving torn writes.
type Extremo struct {
	sync.Mutex
	log     *log2.Log
	dir     string
	storage storage
}

var _ link.CredentialStore = &Extremo{}
