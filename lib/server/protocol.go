package server

// Server-originated payloads. There is no framing: each read from a client
// is treated as one message.
const (
	// AckPrefix precedes the echo of every chunk received from a client.
	AckPrefix = "[SERVER] I got: "

	// DirectPrefix precedes operator messages sent to a single client.
	DirectPrefix = "[SERVER] "

	// ShutdownNotice is sent to every client before its connection is closed.
	ShutdownNotice = "Server is shutting down"
)

// ackFor returns the reply to a chunk received from a client.
func ackFor(chunk []byte) []byte {
	reply := make([]byte, 0, len(AckPrefix)+len(chunk))
	reply = append(reply, AckPrefix...)
	return append(reply, chunk...)
}
