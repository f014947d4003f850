package notify

import (
	"fmt"
	"time"
)

// Kind classifies a notification so the console can style it.
type Kind int

const (
	KindInfo Kind = iota
	KindConnected
	KindMessage
	KindDisconnected
	KindError
	KindCleanup
)

var kindNames = map[Kind]string{
	KindInfo:         "info",
	KindConnected:    "connected",
	KindMessage:      "message",
	KindDisconnected: "disconnected",
	KindError:        "error",
	KindCleanup:      "cleanup",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Notification is one queued event. ClientID is zero for events that are not
// tied to a client.
type Notification struct {
	Kind     Kind
	ClientID uint64
	Text     string
	At       time.Time
}

func (n Notification) String() string {
	return n.Text
}

// Connected builds the event emitted when a worker starts.
func Connected(id uint64, addr string) Notification {
	return newNotification(KindConnected, id, "[New Connection] Client %d connected from %s", id, addr)
}

// Message builds the event for a chunk of text received from a client.
func Message(id uint64, text string) Notification {
	return newNotification(KindMessage, id, "[New Message] Client %d: %s", id, text)
}

// Disconnected builds the event for a peer that closed its side.
func Disconnected(id uint64) Notification {
	return newNotification(KindDisconnected, id, "[Client Disconnected] Client %d disconnected.", id)
}

// ConnectionError builds the event for a read, write or handshake failure.
func ConnectionError(id uint64, err error) Notification {
	return newNotification(KindError, id, "[Error] Connection with Client %d closed unexpectedly: %v", id, err)
}

// ShutdownNoticeError builds the event for a client that could not be told
// about the shutdown.
func ShutdownNoticeError(id uint64, err error) Notification {
	return newNotification(KindError, id, "[Error] Failed to send shutdown message to Client %d: %v", id, err)
}

// Cleanup builds the final event of every worker.
func Cleanup(id uint64) Notification {
	return newNotification(KindCleanup, id, "[Cleanup] Client %d removed.", id)
}

// Errorf builds an error event that is not tied to a client.
func Errorf(format string, args ...interface{}) Notification {
	return newNotification(KindError, 0, "[Error] "+format, args...)
}

// Infof builds an informational event that is not tied to a client.
func Infof(format string, args ...interface{}) Notification {
	return newNotification(KindInfo, 0, format, args...)
}

func newNotification(kind Kind, id uint64, format string, args ...interface{}) Notification {
	return Notification{
		Kind:     kind,
		ClientID: id,
		Text:     fmt.Sprintf(format, args...),
		At:       time.Now(),
	}
}
