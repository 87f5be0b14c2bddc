package tele

import "time"

const (
	retryMin = 100 * time.Millisecond
	retryMax = 30 * time.Second
)

// retryDelay grows the pause between failed sends, qworker goroutine only.
type retryDelay struct {
	min, max time.Duration
	failures uint
}

func newRetryDelay(min, max time.Duration) retryDelay {
	return retryDelay{min: min, max: max}
}

// after returns how long to wait before the next send.
// Success resets the streak and the queue is drained without pause.
func (self *retryDelay) after(ok bool) time.Duration {
	if ok {
		self.failures = 0
		return 0
	}
	self.failures++
	d := self.min
	for i := uint(1); i < self.failures && d < self.max; i++ {
		d *= 2
	}
	if d > self.max {
		d = self.max
	}
	return d
}
