// Package session tracks connected clients.
//
// A Session wraps one accepted connection together with the identifier the
// accept loop assigned to it. The Registry maps identifiers to sessions under
// a single lock owned by the registry instance; there is no package-level
// registry. Callers that need to do I/O on several sessions take a Snapshot
// and work on the copy so a stalled peer never holds the lock.
//
// Lifecycle invariant: a session is inserted before its worker starts and is
// removed by that worker as the last step of its cleanup. Nothing else
// removes entries, including the shutdown sweep.
package session
