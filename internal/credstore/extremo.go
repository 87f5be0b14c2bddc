package credstore

import (
	"time"

	"github.com/juju/errors"
	"github.com/kjh948/plen3/internal/link"
	"github.com/kjh948/plen3/log2"
	"github.com/temoto/extremofile"
)

func NewExtremo(log *log2.Log, dir string) (*Extremo, error) {
	if dir == "" {
		return nil, errors.NotValidf("credentials extremofile dir empty")
	}
	return &Extremo{
		log: log,
		dir: dir,
		storage: extremofile.New(extremofile.Config{
			Dir:        dir,
			FilePrefix: "wifi.",
			DirPerm:    0700,
			FilePerm:   0600,
		}),
	}, nil
}

func (self *Extremo) Load() (link.Credentials, error) {
	var c link.Credentials
	self.Lock()
	defer self.Unlock()
	tbegin := time.Now()
	b, err := self.storage.Read()
	self.log.Debugf("credentials extremofile read dir=%s duration=%v", self.dir, time.Since(tbegin))
	if b == nil {
		if err == nil || !extremofile.IsCritical(err) {
			return c, errors.NotFoundf("credentials in %s", self.dir)
		}
		return c, errors.Annotatef(err, "credentials load dir=%s", self.dir)
	}
	if err != nil {
		self.log.Errorf("credentials ignore non-critical storage err=%v", err)
	}
	err = c.UnmarshalBinary(b)
	return c, errors.Annotatef(err, "credentials parse dir=%s", self.dir)
}

func (self *Extremo) Save(c link.Credentials) error {
	b, err := c.MarshalBinary()
	if err != nil {
		return errors.Annotate(err, "credentials save")
	}
	self.Lock()
	defer self.Unlock()
	_, err = self.storage.Write(b)
	return errors.Annotatef(err, "credentials save dir=%s", self.dir)
}
