package server

import (
	"errors"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// ErrClientNotFound is returned by SendTo for an identifier that is not
// tracked, including one that disconnected after being listed.
var ErrClientNotFound = errors.New("client not found")

// SendFailure records a client a broadcast could not reach.
type SendFailure struct {
	ClientID uint64
	Err      error
}

// SendTo writes DirectPrefix+message to one client. Nothing is written when
// the client is not tracked.
func (s *Server) SendTo(id uint64, message string) error {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return oops.Wrapf(ErrClientNotFound, "client %d", id)
	}

	if err := sess.Send([]byte(DirectPrefix + message)); err != nil {
		log.WithFields(logger.Fields{
			"at":       "server.(*Server).SendTo",
			"clientID": id,
			"reason":   err.Error(),
		}).Warn("failed_to_send_to_client")
		return oops.Wrapf(err, "failed to send to client %d", id)
	}
	return nil
}

// Broadcast writes message, unprefixed, to every client in a registry
// snapshot. A failure on one client does not stop delivery to the others.
func (s *Server) Broadcast(message string) (delivered int, failures []SendFailure) {
	payload := []byte(message)
	for _, sess := range s.sessions.Snapshot() {
		if err := sess.Send(payload); err != nil {
			failures = append(failures, SendFailure{ClientID: sess.ID(), Err: err})
			continue
		}
		delivered++
	}

	log.WithFields(logger.Fields{
		"at":        "server.(*Server).Broadcast",
		"delivered": delivered,
		"failed":    len(failures),
	}).Debug("broadcast_complete")
	return delivered, failures
}
