package server

import (
	"fmt"
	"net/http"
)

// retryAfterSeconds is advertised on 429 responses.
const retryAfterSeconds = "1"

// limiter caps concurrent executions of one kind of request. Excess requests
// are rejected with 429 instead of queueing behind long uploads or sweeps.
type limiter struct {
	name  string
	slots chan struct{}
}

func newLimiter(name string, n int) *limiter {
	if n <= 0 {
		return nil
	}
	return &limiter{name: name, slots: make(chan struct{}, n)}
}

func (l *limiter) tryAcquire() bool {
	if l == nil {
		return true
	}
	select {
	case l.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (l *limiter) release() {
	if l == nil {
		return
	}
	<-l.slots
}

// withLimiter runs fn while holding a slot of l.
func (s *Server) withLimiter(w http.ResponseWriter, r *http.Request, l *limiter, fn func()) {
	if !l.tryAcquire() {
		w.Header().Set("Retry-After", retryAfterSeconds)
		s.writeError(w, r, tooManyRequests(fmt.Errorf("too many concurrent %s requests", l.name)))
		return
	}
	defer l.release()
	fn()
}
