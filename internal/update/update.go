// Package update accepts new daemon image over HTTP.
// Image is written next to the target and renamed over it, then OnDone
// is called so the supervisor restarts us with the new binary.
package update

import (
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/kjh948/plen3/log2"
)

const (
	DefaultMaxSize = 64 << 20
	formField      = "update"
)

const form = `<html><body><form method='POST' action='' enctype='multipart/form-data'>` +
	`<input type='file' name='update'><input type='submit' value='Update'></form></body></html>`

type Updater struct {
	log     *log2.Log
	target  string
	maxSize int64
	onDone  func()
}

func New(log *log2.Log, target string, maxSize int64, onDone func()) *Updater {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Updater{log: log, target: target, maxSize: maxSize, onDone: onDone}
}

func (self *Updater) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, form)
	case http.MethodPost:
		n, err := self.receive(w, r)
		if err != nil {
			self.log.Error(errors.Annotate(err, "update"))
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(w, "Update Failed! %s", errors.Cause(err))
			return
		}
		self.log.Infof("update installed target=%s size=%d", self.target, n)
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "Update Success! Rebooting...")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		if self.onDone != nil {
			self.onDone()
		}
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (self *Updater) receive(w http.ResponseWriter, r *http.Request) (int64, error) {
	if self.target == "" {
		return 0, errors.NotSupportedf("update target")
	}
	r.Body = http.MaxBytesReader(w, r.Body, self.maxSize)
	mr, err := r.MultipartReader()
	if err != nil {
		return 0, errors.BadRequestf("%v", err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return 0, errors.BadRequestf("no file field=%s", formField)
		}
		if err != nil {
			return 0, errors.BadRequestf("%v", err)
		}
		if part.FormName() != formField {
			continue
		}
		return self.install(part)
	}
}

func (self *Updater) install(src io.Reader) (int64, error) {
	dir := filepath.Dir(self.target)
	tmp, err := ioutil.TempFile(dir, filepath.Base(self.target)+".update-")
	if err != nil {
		return 0, errors.Annotate(err, "temp file")
	}
	defer os.Remove(tmp.Name())
	n, err := io.Copy(tmp, src)
	if err == nil && n == 0 {
		err = errors.BadRequestf("empty image")
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp.Name(), 0755)
	}
	if err == nil {
		err = os.Rename(tmp.Name(), self.target)
	}
	return n, errors.Annotatef(err, "install target=%s", self.target)
}
