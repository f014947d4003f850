// Package notify carries human-readable lifecycle events from client workers
// and the accept loop to the operator console.
//
// The Queue is multi-producer, single-consumer and unbounded: Push never
// blocks, and the consumer takes everything queued so far with Drain. Events
// from one producer keep their order; events from different producers are
// ordered by arrival only.
package notify
