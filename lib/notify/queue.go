package notify

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// Queue is an unbounded FIFO of notifications safe for concurrent producers.
type Queue struct {
	mu    sync.Mutex
	items *queue.Queue
	ready chan struct{}
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	return &Queue{
		items: queue.New(),
		ready: make(chan struct{}, 1),
	}
}

// Push appends n. It never blocks.
func (q *Queue) Push(n Notification) {
	q.mu.Lock()
	q.items.Add(n)
	depth := q.items.Length()
	q.mu.Unlock()

	log.WithFields(logger.Fields{
		"at":       "notify.(*Queue).Push",
		"kind":     n.Kind.String(),
		"clientID": n.ClientID,
		"depth":    depth,
	}).Debug("notification_queued")

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Drain removes and returns every queued notification in FIFO order. It
// returns nil when the queue is empty.
func (q *Queue) Drain() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.items.Length()
	if n == 0 {
		return nil
	}
	out := make([]Notification, 0, n)
	for q.items.Length() > 0 {
		out = append(out, q.items.Remove().(Notification))
	}
	return out
}

// Len returns the number of queued notifications.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Ready is signalled after a Push. Several pushes may coalesce into one
// wakeup, so the consumer must Drain rather than Pop once per signal.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}
