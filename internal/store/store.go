// Package store is the flat file store for web assets, motions and settings.
// Names are absolute slash paths like "/edit.htm", rooted at a directory.
package store

import (
	"io"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/juju/errors"
)

type Entry struct {
	Name string // absolute slash path
	Dir  bool
	Size int64
}

type Store interface {
	Exists(name string) bool
	Open(name string) (io.ReadCloser, error)
	Create(name string) (io.WriteCloser, error)
	Remove(name string) error
	List(dir string) ([]Entry, error)
}

type Dir struct {
	root string
}

var _ Store = &Dir{}

func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.Annotatef(err, "store root=%s", root)
	}
	return &Dir{root: root}, nil
}

func (self *Dir) Root() string { return self.root }

// Clean normalizes name into absolute slash form. Result "/" is the root.
func Clean(name string) string {
	return path.Clean("/" + name)
}

func (self *Dir) resolve(name string) string {
	return filepath.Join(self.root, filepath.FromSlash(Clean(name)))
}

func (self *Dir) Exists(name string) bool {
	fi, err := os.Stat(self.resolve(name))
	return err == nil && !fi.IsDir()
}

func (self *Dir) Open(name string) (io.ReadCloser, error) {
	f, err := os.Open(self.resolve(name))
	if os.IsNotExist(err) {
		return nil, errors.NotFoundf("file %s", Clean(name))
	}
	if err != nil {
		return nil, errors.Annotatef(err, "open %s", name)
	}
	if fi, err := f.Stat(); err == nil && fi.IsDir() {
		f.Close()
		return nil, errors.NotFoundf("file %s", Clean(name))
	}
	return f, nil
}

// Create truncates existing file. Parent directories are created.
func (self *Dir) Create(name string) (io.WriteCloser, error) {
	if Clean(name) == "/" {
		return nil, errors.NotValidf("path %s", name)
	}
	full := self.resolve(name)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return nil, errors.Annotatef(err, "create %s", name)
	}
	f, err := os.Create(full)
	if err != nil {
		return nil, errors.Annotatef(err, "create %s", name)
	}
	return f, nil
}

func (self *Dir) Remove(name string) error {
	if Clean(name) == "/" {
		return errors.NotValidf("path %s", name)
	}
	err := os.Remove(self.resolve(name))
	if os.IsNotExist(err) {
		return errors.NotFoundf("file %s", Clean(name))
	}
	return errors.Annotatef(err, "remove %s", name)
}

// List returns direct children of dir sorted by name.
// Missing directory yields empty list, same as empty one.
func (self *Dir) List(dir string) ([]Entry, error) {
	dir = Clean(dir)
	fis, err := ioutil.ReadDir(self.resolve(dir))
	if os.IsNotExist(err) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, errors.Annotatef(err, "list %s", dir)
	}
	entries := make([]Entry, 0, len(fis))
	for _, fi := range fis {
		entries = append(entries, Entry{
			Name: path.Join(dir, fi.Name()),
			Dir:  fi.IsDir(),
			Size: fi.Size(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func ReadFile(s Store, name string) ([]byte, error) {
	r, err := s.Open(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	b, err := ioutil.ReadAll(r)
	return b, errors.Annotatef(err, "read %s", name)
}

// WriteFile replaces whole content of name.
func WriteFile(s Store, name string, b []byte) error {
	w, err := s.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return errors.Annotatef(err, "write %s", name)
}
