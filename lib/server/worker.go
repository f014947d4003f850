package server

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/go-i2p/go-echochat/lib/notify"
	"github.com/go-i2p/go-echochat/lib/session"
	"github.com/go-i2p/go-echochat/lib/shutdown"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"golang.org/x/time/rate"
)

// worker serves one client. It owns the read side of the connection and is
// the only remover of its registry entry.
type worker struct {
	sess             *session.Session
	sessions         *session.Registry
	events           *notify.Queue
	stop             *shutdown.Signal
	bufSize          int
	handshakeTimeout time.Duration
	limiter          *rate.Limiter

	// sweepGrace bounds how long cleanup waits for the shutdown sweep to
	// deliver its notice and close the session.
	sweepGrace time.Duration
}

func (w *worker) run() {
	id := w.sess.ID()
	ctx, cancel := w.stop.Context(context.Background())
	defer cancel()

	defer w.cleanup()
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logger.Fields{
				"at":       "server.(*worker).run",
				"clientID": id,
				"panic":    r,
			}).Error("panic_in_client_worker")
			w.events.Push(notify.ConnectionError(id, oops.Errorf("internal error: %v", r)))
		}
	}()

	w.events.Push(notify.Connected(id, w.sess.RemoteAddr()))
	log.WithFields(logger.Fields{
		"at":         "server.(*worker).run",
		"clientID":   id,
		"remoteAddr": w.sess.RemoteAddr(),
	}).Info("client_connected")

	if err := w.handshake(); err != nil {
		log.WithError(err).WithField("clientID", id).Warn("tls_handshake_failed")
		w.events.Push(notify.ConnectionError(id, err))
		return
	}

	w.serve(ctx)
}

// handshake completes the TLS handshake so the read loop starts on an
// established session. The stop signal does not abort it: the sweep writes
// the shutdown notice on the established session.
func (w *worker) handshake() error {
	conn, ok := w.sess.Conn().(*tls.Conn)
	if !ok {
		return nil
	}
	ctx, cancel := w.handshakeContext()
	defer cancel()
	return conn.HandshakeContext(ctx)
}

// handshakeContext bounds the handshake by the handshake timeout. Without a
// timeout, a handshake still pending sweepGrace after shutdown is aborted.
func (w *worker) handshakeContext() (context.Context, context.CancelFunc) {
	if w.handshakeTimeout > 0 {
		return context.WithTimeout(context.Background(), w.handshakeTimeout)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-w.stop.Done():
		case <-ctx.Done():
			return
		}
		timer := time.NewTimer(w.sweepGrace)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// serve reads and echoes until the peer leaves, an I/O error occurs or the
// stop signal is observed.
func (w *worker) serve(ctx context.Context) {
	id := w.sess.ID()
	buf := make([]byte, w.bufSize)

	for {
		// The check alone cannot interrupt a blocked Read; the shutdown
		// sweep closes the connection for that.
		if w.stop.IsSet() {
			log.WithField("clientID", id).Debug("worker_observed_shutdown")
			return
		}

		n, err := w.sess.Read(buf)
		if n > 0 {
			if !w.handleChunk(ctx, buf[:n]) {
				return
			}
		}
		if err != nil {
			w.reportReadError(err)
			return
		}
	}
}

// handleChunk reports and echoes one chunk. Returns false if the worker should stop.
func (w *worker) handleChunk(ctx context.Context, chunk []byte) bool {
	id := w.sess.ID()

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			log.WithError(err).WithField("clientID", id).Debug("rate_limit_wait_aborted")
			return false
		}
	}

	// The text shown to the operator must be valid UTF-8; the echo keeps the
	// original bytes even when a multi-byte sequence was split across reads.
	w.events.Push(notify.Message(id, strings.ToValidUTF8(string(chunk), "\uFFFD")))

	if err := w.sess.Send(ackFor(chunk)); err != nil {
		log.WithError(err).WithField("clientID", id).Warn("failed_to_echo_message")
		w.events.Push(notify.ConnectionError(id, err))
		return false
	}

	log.WithFields(logger.Fields{
		"at":       "server.(*worker).handleChunk",
		"clientID": id,
		"size":     len(chunk),
	}).Debug("message_echoed")
	return true
}

func (w *worker) reportReadError(err error) {
	id := w.sess.ID()
	if errors.Is(err, io.EOF) {
		log.WithField("clientID", id).Info("client_disconnected")
		w.events.Push(notify.Disconnected(id))
		return
	}

	log.WithFields(logger.Fields{
		"at":       "server.(*worker).reportReadError",
		"clientID": id,
		"reason":   err.Error(),
		"shutdown": w.stop.IsSet(),
	}).Warn("client_read_failed")
	w.events.Push(notify.ConnectionError(id, err))
}

// cleanup releases the connection and deregisters the session. It always
// removes the entry, also during shutdown, so no entry outlives its worker.
// During shutdown the sweep owns the close, so cleanup waits for it first.
func (w *worker) cleanup() {
	id := w.sess.ID()

	if w.stop.IsSet() {
		w.awaitSweepClose()
	}
	w.sess.Close()
	w.sessions.Remove(id)

	in, out := w.sess.Stats()
	log.WithFields(logger.Fields{
		"at":       "server.(*worker).cleanup",
		"clientID": id,
		"bytesIn":  in,
		"bytesOut": out,
		"duration": time.Since(w.sess.CreatedAt()).String(),
	}).Info("client_cleanup_complete")

	w.events.Push(notify.Cleanup(id))
	w.sess.MarkDone()
}

// awaitSweepClose waits until the shutdown sweep, or admit for a client it
// accepted after the sweep's snapshot, has closed the session.
func (w *worker) awaitSweepClose() {
	timer := time.NewTimer(w.sweepGrace)
	defer timer.Stop()

	select {
	case <-w.sess.Closed():
	case <-timer.C:
		log.WithFields(logger.Fields{
			"at":       "server.(*worker).awaitSweepClose",
			"clientID": w.sess.ID(),
			"grace":    w.sweepGrace.String(),
		}).Warn("shutdown_sweep_did_not_close_session")
	}
}
