// Package signals runs registered handlers when the process is asked to stop.
package signals

import (
	"os"
	"os/signal"
	"sync"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// sigChan is buffered so a signal delivered before Handle starts receiving is kept.
var sigChan = make(chan os.Signal, 1)

// Handler is called when an interrupt is received.
type Handler func()

// HandlerID identifies a registered handler for DeregisterInterruptHandler.
type HandlerID int

type registeredHandler struct {
	id HandlerID
	fn Handler
}

var (
	mu           sync.RWMutex
	interrupters []registeredHandler
	nextID       HandlerID

	// stateMu orders Notify against StopHandle so a closed sigChan is never
	// registered for delivery.
	stateMu   sync.Mutex
	notifying bool
	stopped   bool
)

// RegisterInterruptHandler registers f to run on SIGINT or SIGTERM.
// Nil handlers are ignored and return -1.
func RegisterInterruptHandler(f Handler) HandlerID {
	if f == nil {
		return -1
	}
	mu.Lock()
	defer mu.Unlock()
	id := nextID
	nextID++
	interrupters = append(interrupters, registeredHandler{id: id, fn: f})
	return id
}

// DeregisterInterruptHandler removes a handler. Unknown ids are a no-op.
func DeregisterInterruptHandler(id HandlerID) {
	mu.Lock()
	defer mu.Unlock()
	for i, h := range interrupters {
		if h.id == id {
			interrupters = append(interrupters[:i], interrupters[i+1:]...)
			return
		}
	}
}

// handleInterrupted runs every handler in registration order. A panicking
// handler is logged and does not stop the others.
func handleInterrupted(sig os.Signal) {
	mu.RLock()
	snapshot := make([]registeredHandler, len(interrupters))
	copy(snapshot, interrupters)
	mu.RUnlock()

	log.WithFields(logger.Fields{
		"at":       "signals.handleInterrupted",
		"signal":   signalName(sig),
		"handlers": len(snapshot),
	}).Info("interrupt_received")

	for _, h := range snapshot {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(logger.Fields{
						"at":      "signals.handleInterrupted",
						"handler": int(h.id),
						"panic":   r,
					}).Error("interrupt_handler_panicked")
				}
			}()
			h.fn()
		}()
	}
}

// Notify starts capturing interrupt signals. Call it before starting Handle.
// It returns false once StopHandle has been called; repeated calls are no-ops.
func Notify() bool {
	stateMu.Lock()
	defer stateMu.Unlock()

	if stopped {
		return false
	}
	if !notifying {
		signal.Notify(sigChan, interruptSignals...)
		notifying = true
	}
	return true
}

// Handle delivers captured interrupts to the registered handlers until
// StopHandle is called. It blocks, so run it in its own goroutine.
func Handle() {
	for sig := range sigChan {
		handleInterrupted(sig)
	}
}

// StopHandle stops signal delivery and makes Handle return. Safe to call
// more than once.
func StopHandle() {
	stateMu.Lock()
	defer stateMu.Unlock()

	if stopped {
		return
	}
	stopped = true
	signal.Stop(sigChan)
	close(sigChan)
}

func signalName(sig os.Signal) string {
	if sig == nil {
		return "none"
	}
	return sig.String()
}
