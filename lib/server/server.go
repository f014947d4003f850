package server

import (
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-i2p/go-echochat/lib/config"
	"github.com/go-i2p/go-echochat/lib/notify"
	"github.com/go-i2p/go-echochat/lib/session"
	"github.com/go-i2p/go-echochat/lib/shutdown"
	"github.com/go-i2p/logger"
	"github.com/google/uuid"
	"github.com/samber/oops"
	"golang.org/x/time/rate"
)

var log = logger.GetGoI2PLogger()

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second

	// defaultSweepGrace applies when neither handshake nor write timeouts are set.
	defaultSweepGrace = 10 * time.Second
)

// Server accepts TLS clients and runs one worker per client.
type Server struct {
	cfg       *config.Config
	tlsConfig *tls.Config
	sessions  *session.Registry
	events    *notify.Queue
	stop      *shutdown.Signal
	instance  string

	mu       sync.Mutex
	listener net.Listener
	running  bool

	lastID       atomic.Uint64
	workers      sync.WaitGroup
	acceptDone   chan struct{}
	shutdownOnce sync.Once
}

// NewServer creates a server. The registry, queue and signal are shared with
// the console and must outlive the server.
func NewServer(cfg *config.Config, tlsConfig *tls.Config, sessions *session.Registry, events *notify.Queue, stop *shutdown.Signal) (*Server, error) {
	if cfg == nil {
		return nil, oops.Errorf("server: config cannot be nil")
	}
	if tlsConfig == nil {
		return nil, oops.Errorf("server: tls config cannot be nil")
	}
	if sessions == nil || events == nil || stop == nil {
		return nil, oops.Errorf("server: registry, notification queue and shutdown signal are required")
	}

	s := &Server{
		cfg:        cfg,
		tlsConfig:  tlsConfig,
		sessions:   sessions,
		events:     events,
		stop:       stop,
		instance:   uuid.NewString(),
		acceptDone: make(chan struct{}),
	}

	log.WithFields(logger.Fields{
		"at":          "server.NewServer",
		"instance":    s.instance,
		"listenAddr":  cfg.Server.Address,
		"maxSessions": cfg.Server.MaxSessions,
	}).Info("creating_server")

	return s, nil
}

// Start binds the listener and starts the accept loop. Bind failures are
// returned; they are fatal at startup.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return oops.Errorf("server already running")
	}
	if s.stop.IsSet() {
		return oops.Errorf("server is shutting down")
	}

	ln, err := net.Listen("tcp", s.cfg.Server.Address)
	if err != nil {
		return oops.Wrapf(err, "failed to listen on %s", s.cfg.Server.Address)
	}
	s.listener = tls.NewListener(ln, s.tlsConfig)
	s.running = true

	log.WithFields(logger.Fields{
		"at":       "server.(*Server).Start",
		"instance": s.instance,
		"address":  ln.Addr().String(),
	}).Info("server_started")

	go s.acceptLoop(s.listener)
	go s.watchSignal()

	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// InstanceID identifies this server run in logs.
func (s *Server) InstanceID() string {
	return s.instance
}

// IsRunning reports whether the accept loop is still running.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Wait blocks until the accept loop returned, which happens only after every
// worker finished its cleanup.
func (s *Server) Wait() {
	s.mu.Lock()
	started := s.running || s.listener != nil
	s.mu.Unlock()
	if !started {
		return
	}
	<-s.acceptDone
}

// Sessions returns the connected clients ordered by identifier.
func (s *Server) Sessions() []*session.Session {
	return s.sessions.Snapshot()
}

// watchSignal runs the shutdown sweep when the shared signal is set by
// someone other than Shutdown.
func (s *Server) watchSignal() {
	select {
	case <-s.stop.Done():
		s.Shutdown()
	case <-s.acceptDone:
	}
}

// acceptLoop accepts clients until the stop signal is set, then waits for
// every worker to finish.
func (s *Server) acceptLoop(ln net.Listener) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(s.acceptDone)
	}()
	defer s.drainWorkers()

	backoff := time.Duration(0)
	for {
		if s.stop.IsSet() {
			return
		}

		conn, err := ln.Accept()
		if err != nil {
			if s.handleAcceptError(err) {
				return
			}
			backoff = nextBackoff(backoff)
			select {
			case <-time.After(backoff):
			case <-s.stop.Done():
				return
			}
			continue
		}
		backoff = 0

		log.WithFields(logger.Fields{
			"at":         "server.(*Server).acceptLoop",
			"remoteAddr": conn.RemoteAddr().String(),
			"localAddr":  conn.LocalAddr().String(),
		}).Debug("new_connection")

		s.admit(conn)
	}
}

// handleAcceptError processes errors from Accept. Returns true if the accept
// loop should terminate.
func (s *Server) handleAcceptError(err error) bool {
	if s.stop.IsSet() {
		log.WithField("at", "server.(*Server).handleAcceptError").Debug("accept_stopped_for_shutdown")
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		log.WithError(err).Error("listener_closed_unexpectedly")
		s.events.Push(notify.Errorf("Listener closed unexpectedly: %v", err))
		return true
	}

	log.WithError(err).Warn("failed_to_accept_connection")
	s.events.Push(notify.Errorf("Failed to accept connection: %v", err))
	return false
}

func nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return minAcceptBackoff
	}
	if current *= 2; current > maxAcceptBackoff {
		return maxAcceptBackoff
	}
	return current
}

// admit registers conn and starts its worker, or rejects it when the
// session limit is reached. Rejected connections do not consume an id.
func (s *Server) admit(conn net.Conn) {
	if s.shouldRejectConnection(conn) {
		return
	}

	id := s.lastID.Add(1)
	sess := session.NewSession(id, conn, s.cfg.Server.WriteTimeout)
	if err := s.sessions.Insert(sess); err != nil {
		log.WithError(err).WithField("clientID", id).Error("failed_to_register_session")
		conn.Close()
		return
	}

	s.workers.Add(1)
	go s.runWorker(sess)

	// A sweep that snapshotted the registry before the insert above has
	// already set the signal, so this client must be closed here.
	if s.stop.IsSet() {
		sess.Close()
	}
}

// shouldRejectConnection checks the session limit and closes conn if it is reached.
func (s *Server) shouldRejectConnection(conn net.Conn) bool {
	limit := s.cfg.Server.MaxSessions
	if limit <= 0 {
		return false
	}
	count := s.sessions.Count()
	if count < limit {
		return false
	}

	log.WithFields(logger.Fields{
		"at":           "server.(*Server).shouldRejectConnection",
		"sessionCount": count,
		"maxSessions":  limit,
		"remoteAddr":   conn.RemoteAddr().String(),
	}).Warn("max_sessions_reached_rejecting_connection")
	s.events.Push(notify.Infof("[Rejected] Connection from %s refused: %d clients connected", conn.RemoteAddr(), count))
	conn.Close()
	return true
}

func (s *Server) runWorker(sess *session.Session) {
	defer s.workers.Done()

	w := &worker{
		sess:             sess,
		sessions:         s.sessions,
		events:           s.events,
		stop:             s.stop,
		bufSize:          s.cfg.Server.ReadBufferSize,
		handshakeTimeout: s.cfg.Server.HandshakeTimeout,
		limiter:          newLimiter(s.cfg.Client),
		sweepGrace:       sweepGrace(s.cfg.Server),
	}
	w.run()
}

// drainWorkers is the drain barrier: it returns once every worker finished.
func (s *Server) drainWorkers() {
	log.WithFields(logger.Fields{
		"at":       "server.(*Server).drainWorkers",
		"instance": s.instance,
		"pending":  s.sessions.Count(),
	}).Debug("waiting_for_workers")

	s.workers.Wait()

	log.WithFields(logger.Fields{
		"at":       "server.(*Server).drainWorkers",
		"instance": s.instance,
	}).Info("all_workers_finished")
}

// sweepGrace is how long the sweep may take on one session: the notice write
// waits for an in-flight handshake, then for the write itself.
func sweepGrace(cfg config.ServerConfig) time.Duration {
	grace := cfg.HandshakeTimeout + cfg.WriteTimeout
	if grace <= 0 {
		return defaultSweepGrace
	}
	return grace
}

func newLimiter(cfg config.ClientConfig) *rate.Limiter {
	if cfg.MessagesPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), burst)
}
