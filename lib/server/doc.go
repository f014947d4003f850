// Package server implements the TLS echo/chat listener.
//
// Main components:
//   - Server: owns the TLS listener and runs the accept loop
//   - worker: one goroutine per client, echoes every chunk it reads
//   - Shutdown: sets the stop signal, tells every client, force-closes them
//
// Every accepted client gets the next identifier (starting at 1, never
// reused), is inserted into the session registry, and is handed to its own
// worker. Workers report lifecycle events on the notification queue and
// remove their own registry entry when they finish. The accept loop does not
// return until every worker it started has finished.
package server
