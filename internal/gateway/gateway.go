// Package gateway is the HTTP command surface: file store routes for the
// web editor, robot control API, firmware update and the websocket console.
package gateway

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/juju/errors"
	"github.com/kjh948/plen3/internal/hw"
	"github.com/kjh948/plen3/internal/link"
	"github.com/kjh948/plen3/internal/loop"
	"github.com/kjh948/plen3/internal/robot"
	"github.com/kjh948/plen3/internal/store"
	"github.com/kjh948/plen3/log2"
)

type Joints interface {
	Sum() int
	Setting(id int) (robot.Setting, bool)
	SetAngle(id, angle int) bool
	SetHomeAngle(id, angle int) bool
}

type Motions interface {
	Play(slot int) error
	SetSpeed(percent int) error
	Stop()
}

type Status interface {
	Snapshot() hw.Snapshot
}

type Session interface {
	Offer(io.ReadWriteCloser) bool
}

type Version struct {
	Device   string `json:"device"`
	Codename string `json:"codename"`
	Version  string `json:"version"`
}

type Options struct {
	Log     *log2.Log
	Files   store.Store
	Joints  Joints
	Motions Motions
	Status  Status
	Session Session
	Updater http.Handler
	// Queue runs collaborator calls on the control goroutine, nil runs them inline.
	Queue       *loop.Queue
	Version     Version
	AccessPoint link.Credentials
}

type Gateway struct {
	log     *log2.Log
	files   store.Store
	joints  Joints
	motions Motions
	status  Status
	session Session
	updater http.Handler
	queue   *loop.Queue
	version Version
	ap      link.Credentials
}

func New(opt Options) *Gateway {
	return &Gateway{
		log:     opt.Log,
		files:   opt.Files,
		joints:  opt.Joints,
		motions: opt.Motions,
		status:  opt.Status,
		session: opt.Session,
		updater: opt.Updater,
		queue:   opt.Queue,
		version: opt.Version,
		ap:      opt.AccessPoint,
	}
}

// Routes builds the route table. Unmatched path or method falls back to
// static file lookup.
func (self *Gateway) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/list", self.wrap(self.handleFileList))
	r.Get("/edit", self.wrap(self.handleEditor))
	r.Put("/edit", self.wrap(self.handleFileCreate))
	r.Delete("/edit", self.wrap(self.handleFileDelete))
	r.Post("/edit", self.wrap(self.handleFileUpload))

	r.Method(http.MethodGet, "/all", self.serial(self.handleAll))
	r.Method(http.MethodGet, "/api/joints", self.serial(self.handleJoints))
	r.Method(http.MethodPost, "/api/set_home", self.serial(self.handleSetHome))
	r.Method(http.MethodPost, "/api/move_joint", self.serial(self.handleMoveJoint))
	r.Method(http.MethodPost, "/api/play_motion", self.serial(self.handlePlayMotion))
	r.Method(http.MethodPost, "/api/set_speed", self.serial(self.handleSetSpeed))
	r.Method(http.MethodPost, "/api/stop", self.serial(self.handleStop))
	r.Get("/api/version", self.wrap(self.handleVersion))
	r.Get("/api/ap_qr", self.wrap(self.handleAccessPointQR))

	if self.session != nil {
		r.Get("/console", self.handleConsole)
	}
	if self.updater != nil {
		r.Handle("/update", self.updater)
	}

	r.NotFound(self.wrap(self.handleStatic))
	r.MethodNotAllowed(self.wrap(self.handleStatic))
	return r
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// reply is an error with exact status and body for the client.
type reply struct {
	code int
	text string
}

func (self reply) Error() string { return fmt.Sprintf("%d %s", self.code, self.text) }

var (
	errBadArgs      = reply{http.StatusInternalServerError, "BAD ARGS"}
	errBadPath      = reply{http.StatusInternalServerError, "BAD PATH"}
	errFileExists   = reply{http.StatusInternalServerError, "FILE EXISTS"}
	errCreateFailed = reply{http.StatusInternalServerError, "CREATE FAILED"}
	errFileNotFound = reply{http.StatusNotFound, "FileNotFound"}
	errFailed       = reply{http.StatusInternalServerError, "Failed"}
)

// errorReply maps error taxonomy to status and plain text body.
func errorReply(err error) reply {
	cause := errors.Cause(err)
	if r, ok := cause.(reply); ok {
		return r
	}
	switch {
	case errors.IsNotFound(cause):
		return errFileNotFound
	case errors.IsBadRequest(cause):
		return reply{http.StatusBadRequest, cause.Error()}
	case errors.IsAlreadyExists(cause):
		return errFileExists
	}
	return errFailed
}

func (self *Gateway) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}
		rep := errorReply(err)
		if rep.code >= http.StatusInternalServerError {
			self.log.Errorf("http %s %s err=%v", r.Method, r.URL.Path, err)
		} else {
			self.log.Debugf("http %s %s err=%v", r.Method, r.URL.Path, err)
		}
		writeText(w, rep.code, rep.text)
	}
}

// serial runs h on the control goroutine.
// Arguments are read here first, a slow request body must not hold the control goroutine.
func (self *Gateway) serial(h handlerFunc) http.Handler {
	var next http.Handler = self.wrap(h)
	if self.queue != nil {
		next = self.queue.Handler(next)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxArgsBody)
		parseArgs(r)
		next.ServeHTTP(w, r)
	})
}

func writeText(w http.ResponseWriter, code int, text string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, text)
}

func writeJSON(w http.ResponseWriter, b []byte) {
	w.Header().Set("Content-Type", "text/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
