package session

import (
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// Session is the live state of one connected client.
type Session struct {
	id           uint64
	conn         net.Conn
	remoteAddr   string
	createdAt    time.Time
	writeTimeout time.Duration

	// writeMu serializes every write so echo replies, console sends and the
	// shutdown notice never interleave on the stream.
	writeMu sync.Mutex

	closeOnce  sync.Once
	closed     chan struct{}
	doneOnce   sync.Once
	done       chan struct{}
	bytesIn    uint64
	bytesOut   uint64
	countersMu sync.Mutex
}

// NewSession wraps conn. A writeTimeout of zero disables write deadlines.
func NewSession(id uint64, conn net.Conn, writeTimeout time.Duration) *Session {
	addr := ""
	if ra := conn.RemoteAddr(); ra != nil {
		addr = ra.String()
	}
	return &Session{
		id:           id,
		conn:         conn,
		remoteAddr:   addr,
		createdAt:    time.Now(),
		writeTimeout: writeTimeout,
		closed:       make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// ID returns the client identifier.
func (s *Session) ID() uint64 {
	return s.id
}

// RemoteAddr returns the peer address captured at accept time.
func (s *Session) RemoteAddr() string {
	return s.remoteAddr
}

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Conn returns the underlying connection. Only the owning worker reads from it.
func (s *Session) Conn() net.Conn {
	return s.conn
}

// Read reads the next chunk from the peer.
func (s *Session) Read(p []byte) (int, error) {
	n, err := s.conn.Read(p)
	if n > 0 {
		s.countersMu.Lock()
		s.bytesIn += uint64(n)
		s.countersMu.Unlock()
	}
	return n, err
}

// Send writes p to the peer in one piece, bounded by the write timeout.
func (s *Session) Send(p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
		defer s.conn.SetWriteDeadline(time.Time{})
	}

	n, err := s.conn.Write(p)
	if n > 0 {
		s.countersMu.Lock()
		s.bytesOut += uint64(n)
		s.countersMu.Unlock()
	}
	return err
}

// Stats returns the number of bytes read from and written to the peer.
func (s *Session) Stats() (in, out uint64) {
	s.countersMu.Lock()
	defer s.countersMu.Unlock()
	return s.bytesIn, s.bytesOut
}

// Close shuts the connection down in both directions and closes it. Only the
// first call has an effect, so the worker and the shutdown sweep may both
// call it. Errors are logged and swallowed.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		defer close(s.closed)
		// tls.Conn.Close already sends close_notify before closing the socket,
		// and skips it when a write is in flight.
		if _, isTLS := s.conn.(*tls.Conn); !isTLS {
			if cw, ok := s.conn.(interface{ CloseWrite() error }); ok {
				if err := cw.CloseWrite(); err != nil {
					log.WithFields(logger.Fields{
						"at":       "session.(*Session).Close",
						"clientID": s.id,
						"reason":   err.Error(),
					}).Debug("close_write_failed")
				}
			}
		}
		if err := s.conn.Close(); err != nil {
			log.WithFields(logger.Fields{
				"at":       "session.(*Session).Close",
				"clientID": s.id,
				"reason":   err.Error(),
			}).Debug("close_failed")
		}
	})
}

// Closed returns a channel closed once Close has released the connection.
func (s *Session) Closed() <-chan struct{} {
	return s.closed
}

// MarkDone records that the worker finished its cleanup. Wait and Done are
// released by the first call.
func (s *Session) MarkDone() {
	s.doneOnce.Do(func() {
		close(s.done)
	})
}

// Done returns a channel closed once the worker finished.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the worker finished.
func (s *Session) Wait() {
	<-s.done
}
