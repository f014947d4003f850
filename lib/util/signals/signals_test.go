package signals

import (
	"os"
	"os/signal"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetHandlers clears the registry for one test and restores it afterwards.
func resetHandlers(t *testing.T) {
	t.Helper()
	mu.Lock()
	saved := interrupters
	interrupters = nil
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		interrupters = saved
		mu.Unlock()
	})
}

func handlerCount() int {
	mu.RLock()
	defer mu.RUnlock()
	return len(interrupters)
}

func TestRegisterInterruptHandler(t *testing.T) {
	resetHandlers(t)

	called := false
	RegisterInterruptHandler(func() { called = true })
	require.Equal(t, 1, handlerCount())

	handleInterrupted(os.Interrupt)
	assert.True(t, called)
}

func TestHandlersCalledInOrder(t *testing.T) {
	resetHandlers(t)

	var order []int
	for i := 0; i < 3; i++ {
		idx := i
		RegisterInterruptHandler(func() { order = append(order, idx) })
	}

	handleInterrupted(os.Interrupt)
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestNilHandlerIgnored(t *testing.T) {
	resetHandlers(t)

	assert.Equal(t, HandlerID(-1), RegisterInterruptHandler(nil))
	assert.Zero(t, handlerCount())
	handleInterrupted(nil)
}

// TestPanickingHandlerDoesNotStopOthers verifies the shutdown handler still
// runs after an earlier handler panicked.
func TestPanickingHandlerDoesNotStopOthers(t *testing.T) {
	resetHandlers(t)

	calledAfterPanic := false
	RegisterInterruptHandler(func() { panic("boom") })
	RegisterInterruptHandler(func() { calledAfterPanic = true })

	assert.NotPanics(t, func() { handleInterrupted(os.Interrupt) })
	assert.True(t, calledAfterPanic)
}

func TestDeregisterInterruptHandler(t *testing.T) {
	resetHandlers(t)

	first, second := false, false
	id := RegisterInterruptHandler(func() { first = true })
	RegisterInterruptHandler(func() { second = true })

	DeregisterInterruptHandler(id)
	DeregisterInterruptHandler(999)
	require.Equal(t, 1, handlerCount())

	handleInterrupted(os.Interrupt)
	assert.False(t, first)
	assert.True(t, second)
}

func TestConcurrentRegistration(t *testing.T) {
	resetHandlers(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			RegisterInterruptHandler(func() {})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, handlerCount())
}

func TestSigChanIsBuffered(t *testing.T) {
	assert.Equal(t, 1, cap(sigChan))
}

func TestSignalName(t *testing.T) {
	assert.Equal(t, "none", signalName(nil))
	assert.Equal(t, os.Interrupt.String(), signalName(os.Interrupt))
}

// resetDelivery gives one test a fresh signal channel and restores the
// package state afterwards.
func resetDelivery(t *testing.T) {
	t.Helper()
	stateMu.Lock()
	savedChan, savedNotifying, savedStopped := sigChan, notifying, stopped
	sigChan = make(chan os.Signal, 1)
	notifying, stopped = false, false
	stateMu.Unlock()

	t.Cleanup(func() {
		stateMu.Lock()
		if notifying && !stopped {
			signal.Stop(sigChan)
		}
		sigChan, notifying, stopped = savedChan, savedNotifying, savedStopped
		stateMu.Unlock()
	})
}

func waitReturned(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Handle did not return after StopHandle")
	}
}

// TestHandleDeliversInterrupt verifies a captured signal reaches the handlers
// and StopHandle ends delivery.
func TestHandleDeliversInterrupt(t *testing.T) {
	resetHandlers(t)
	resetDelivery(t)

	called := make(chan struct{}, 1)
	RegisterInterruptHandler(func() { called <- struct{}{} })

	require.True(t, Notify())
	require.True(t, Notify())

	done := make(chan struct{})
	go func() {
		Handle()
		close(done)
	}()

	sigChan <- os.Interrupt
	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("interrupt handler was not called")
	}

	StopHandle()
	StopHandle()
	waitReturned(t, done)
}

// TestNotifyAfterStopHandle verifies a stopped channel is never registered,
// so a late signal cannot be sent on it.
func TestNotifyAfterStopHandle(t *testing.T) {
	resetDelivery(t)

	StopHandle()
	assert.False(t, Notify())

	stateMu.Lock()
	assert.False(t, notifying)
	stateMu.Unlock()

	done := make(chan struct{})
	go func() {
		Handle()
		close(done)
	}()
	waitReturned(t, done)
}
