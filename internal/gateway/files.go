package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/juju/errors"
	"github.com/kjh948/plen3/internal/store"
)

const editorPage = "/edit.htm"

type listEntry struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

func (self *Gateway) handleFileList(w http.ResponseWriter, r *http.Request) error {
	if !hasArg(r, "dir") {
		return errBadArgs
	}
	dir := r.Form.Get("dir")
	entries, err := self.files.List(dir)
	if err != nil {
		return errors.Annotate(err, "list")
	}
	out := make([]listEntry, 0, len(entries))
	for _, e := range entries {
		le := listEntry{Type: "file", Name: strings.TrimPrefix(e.Name, "/")}
		if e.Dir {
			le.Type = "dir"
		}
		out = append(out, le)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return errors.Annotate(err, "list")
	}
	writeJSON(w, b)
	return nil
}

func (self *Gateway) handleEditor(w http.ResponseWriter, r *http.Request) error {
	return self.serveFile(w, r, editorPage)
}

func (self *Gateway) handleFileCreate(w http.ResponseWriter, r *http.Request) error {
	if argCount(r) == 0 {
		return errBadArgs
	}
	name, _ := firstArg(r)
	if store.Clean(name) == "/" {
		return errBadPath
	}
	if self.files.Exists(name) {
		return errFileExists
	}
	f, err := self.files.Create(name)
	if err != nil {
		self.log.Errorf("create %s err=%v", name, err)
		return errCreateFailed
	}
	if err = f.Close(); err != nil {
		self.log.Errorf("create %s err=%v", name, err)
		return errCreateFailed
	}
	writeText(w, http.StatusOK, "")
	return nil
}

func (self *Gateway) handleFileDelete(w http.ResponseWriter, r *http.Request) error {
	if argCount(r) == 0 {
		return errBadArgs
	}
	name, _ := firstArg(r)
	if store.Clean(name) == "/" {
		return errBadPath
	}
	if !self.files.Exists(name) {
		return errFileNotFound
	}
	if err := self.files.Remove(name); err != nil {
		return errors.Annotatef(err, "delete %s", name)
	}
	writeText(w, http.StatusOK, "")
	return nil
}

// handleFileUpload streams every file part into the store under "/"+filename.
func (self *Gateway) handleFileUpload(w http.ResponseWriter, r *http.Request) error {
	mr, err := r.MultipartReader()
	if err != nil {
		return errBadArgs
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Annotate(err, "upload")
		}
		filename := part.FileName()
		if filename == "" {
			part.Close()
			continue
		}
		name := store.Clean(filename)
		n, err := self.saveUpload(name, part)
		part.Close()
		if err != nil {
			return errors.Annotatef(err, "upload %s", name)
		}
		self.log.Infof("upload %s size=%d", name, n)
	}
	writeText(w, http.StatusOK, "")
	return nil
}

func (self *Gateway) saveUpload(name string, src io.Reader) (int64, error) {
	f, err := self.files.Create(name)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// handleStatic serves request path from the store. Trailing slash means
// index.htm, compressed variant name.gz is preferred when present.
func (self *Gateway) handleStatic(w http.ResponseWriter, r *http.Request) error {
	name := r.URL.Path
	if strings.HasSuffix(name, "/") {
		name += "index.htm"
	}
	return self.serveFile(w, r, name)
}

func (self *Gateway) serveFile(w http.ResponseWriter, r *http.Request, name string) error {
	ctype := contentType(name, hasArg(r, "download"))
	gz := name + ".gz"
	encoding := ""
	switch {
	case self.files.Exists(gz):
		name = gz
		if ctype != "application/x-gzip" {
			encoding = "gzip"
		}
	case self.files.Exists(name):
	default:
		return errFileNotFound
	}

	f, err := self.files.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	w.Header().Set("Content-Type", ctype)
	if encoding != "" {
		w.Header().Set("Content-Encoding", encoding)
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return nil
	}
	if _, err = io.Copy(w, f); err != nil {
		self.log.Debugf("stream %s err=%v", name, err)
	}
	return nil
}
