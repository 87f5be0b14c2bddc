// Package loop hands work from network goroutines to the control goroutine.
package loop

import (
	"bytes"
	"context"
	"net/http"
	"sync/atomic"

	"github.com/juju/errors"
)

const DefaultDepth = 16

const (
	jobPending uint32 = iota
	jobRunning
	jobCancelled
)

type job struct {
	fn    func()
	state uint32
	done  chan struct{}
}

// Queue is drained by the owner of shared state, see Drain.
type Queue struct {
	ch chan *job
}

func NewQueue(depth int) *Queue {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Queue{ch: make(chan *job, depth)}
}

// Do enqueues fn and waits until Drain has run it.
// If ctx ends before fn started, fn never runs.
func (self *Queue) Do(ctx context.Context, fn func()) error {
	j := &job{fn: fn, done: make(chan struct{})}
	select {
	case self.ch <- j:
	case <-ctx.Done():
		return errors.Annotate(ctx.Err(), "queue full")
	}
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		if atomic.CompareAndSwapUint32(&j.state, jobPending, jobCancelled) {
			return errors.Annotate(ctx.Err(), "queue wait")
		}
		<-j.done
		return nil
	}
}

// Drain runs up to max pending jobs without blocking, max<=0 means all.
// Returns number of jobs run.
func (self *Queue) Drain(max int) int {
	n := 0
	for max <= 0 || n < max {
		select {
		case j := <-self.ch:
			if !atomic.CompareAndSwapUint32(&j.state, jobPending, jobRunning) {
				continue
			}
			j.fn()
			close(j.done)
			n++
		default:
			return n
		}
	}
	return n
}

func (self *Queue) Len() int { return len(self.ch) }

// Handler runs h on the draining goroutine. Response is buffered there
// and written to the client by the request goroutine.
func (self *Queue) Handler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := newResponseBuffer()
		if err := self.Do(r.Context(), func() { h.ServeHTTP(rec, r) }); err != nil {
			http.Error(w, "Busy", http.StatusServiceUnavailable)
			return
		}
		rec.writeTo(w)
	})
}

type responseBuffer struct {
	header http.Header
	code   int
	body   bytes.Buffer
}

func newResponseBuffer() *responseBuffer {
	return &responseBuffer{header: make(http.Header)}
}

func (self *responseBuffer) Header() http.Header { return self.header }

func (self *responseBuffer) WriteHeader(code int) {
	if self.code == 0 {
		self.code = code
	}
}

func (self *responseBuffer) Write(b []byte) (int, error) {
	if self.code == 0 {
		self.code = http.StatusOK
	}
	return self.body.Write(b)
}

func (self *responseBuffer) writeTo(w http.ResponseWriter) {
	h := w.Header()
	for k, vs := range self.header {
		h[k] = vs
	}
	code := self.code
	if code == 0 {
		code = http.StatusOK
	}
	w.WriteHeader(code)
	_, _ = w.Write(self.body.Bytes())
}
