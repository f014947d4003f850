package server

import (
	"sync"

	"github.com/go-i2p/go-echochat/lib/notify"
	"github.com/go-i2p/go-echochat/lib/session"
	"github.com/go-i2p/logger"
)

// Shutdown sets the stop signal, closes the listener, sends ShutdownNotice to
// every tracked client and force-closes each connection. It does not remove
// registry entries; each worker does that once its blocked read fails. Only
// the first call does any work; later calls return once it has finished.
//
// Shutdown does not wait for workers. Call Wait for the drain barrier.
func (s *Server) Shutdown() {
	s.stop.Trigger()
	s.shutdownOnce.Do(s.sweep)
}

func (s *Server) sweep() {
	log.WithFields(logger.Fields{
		"at":       "server.(*Server).sweep",
		"instance": s.instance,
		"sessions": s.sessions.Count(),
	}).Info("server_shutting_down")

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		if err := ln.Close(); err != nil {
			log.WithError(err).Warn("error_closing_listener")
		}
	}

	var wg sync.WaitGroup
	for _, sess := range s.sessions.Snapshot() {
		wg.Add(1)
		go func(sess *session.Session) {
			defer wg.Done()
			s.closeWithNotice(sess)
		}(sess)
	}
	wg.Wait()

	log.WithField("at", "server.(*Server).sweep").Debug("shutdown_sweep_complete")
}

// closeWithNotice tells one client about the shutdown and closes it. The
// close happens whether or not the notice could be delivered.
func (s *Server) closeWithNotice(sess *session.Session) {
	defer sess.Close()

	if err := sess.Send([]byte(ShutdownNotice)); err != nil {
		log.WithFields(logger.Fields{
			"at":       "server.(*Server).closeWithNotice",
			"clientID": sess.ID(),
			"reason":   err.Error(),
		}).Warn("failed_to_send_shutdown_notice")
		s.events.Push(notify.ShutdownNoticeError(sess.ID(), err))
	}
}
