// Package shutdown provides the process-wide stop flag observed by the accept
// loop, every client worker and the operator console.
//
// A Signal starts unset and transitions to set exactly once. Loops poll IsSet
// at iteration boundaries; goroutines blocked in a select wait on Done.
// Setting the flag does not unblock goroutines stuck in socket reads; the
// server pairs it with a forced close of every tracked connection.
package shutdown
