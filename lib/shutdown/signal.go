package shutdown

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// Signal is a one-way stop flag. The zero value is not usable; use NewSignal.
type Signal struct {
	set  atomic.Bool
	once sync.Once
	done chan struct{}
}

// NewSignal returns an unset Signal.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Trigger sets the flag. It returns true only for the call that performed the
// transition, so callers can run one-time shutdown work behind it.
func (s *Signal) Trigger() bool {
	first := false
	s.once.Do(func() {
		s.set.Store(true)
		close(s.done)
		first = true
	})
	if first {
		log.WithField("at", "shutdown.(*Signal).Trigger").Debug("shutdown_signal_set")
	}
	return first
}

// IsSet reports whether Trigger has been called.
func (s *Signal) IsSet() bool {
	return s.set.Load()
}

// Done returns a channel closed once the signal is set.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Context returns a context derived from parent that is cancelled when the
// signal is set. Callers must call the returned cancel function.
func (s *Signal) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
