package session

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tcpPair returns both ends of a loopback TCP connection.
func tcpPair(t *testing.T) (server, client net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server = <-accepted
	require.NotNil(t, server)

	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return server, client
}

// TestSession_Accessors verifies identity fields are captured at creation.
func TestSession_Accessors(t *testing.T) {
	server, client := tcpPair(t)
	s := NewSession(7, server, time.Second)

	assert.Equal(t, uint64(7), s.ID())
	assert.Equal(t, client.LocalAddr().String(), s.RemoteAddr())
	assert.Same(t, server, s.Conn())
	assert.False(t, s.CreatedAt().IsZero())
}

// TestSession_SendAndRead verifies bytes flow both ways and are counted.
func TestSession_SendAndRead(t *testing.T) {
	server, client := tcpPair(t)
	s := NewSession(1, server, time.Second)

	require.NoError(t, s.Send([]byte("hello")))
	buf := make([]byte, 5)
	_, err := io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))

	_, err = client.Write([]byte("hey"))
	require.NoError(t, err)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hey", string(buf[:n]))

	in, out := s.Stats()
	assert.Equal(t, uint64(3), in)
	assert.Equal(t, uint64(5), out)
}

// TestSession_CloseIdempotent verifies repeated closes are harmless and the
// peer observes an orderly EOF.
func TestSession_CloseIdempotent(t *testing.T) {
	server, client := tcpPair(t)
	s := NewSession(1, server, time.Second)

	s.Close()
	s.Close()

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := client.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)

	assert.Error(t, s.Send([]byte("late")))
}

// TestSession_ClosedSignalled verifies Closed is released by the first Close.
func TestSession_ClosedSignalled(t *testing.T) {
	server, _ := tcpPair(t)
	s := NewSession(1, server, 0)

	select {
	case <-s.Closed():
		t.Fatal("closed before Close")
	default:
	}

	s.Close()
	s.Close()

	select {
	case <-s.Closed():
	case <-time.After(time.Second):
		t.Fatal("Closed not signalled after Close")
	}
}

// TestSession_CloseUnblocksRead verifies a forced close releases a pending read.
func TestSession_CloseUnblocksRead(t *testing.T) {
	server, _ := tcpPair(t)
	s := NewSession(1, server, 0)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Read(make([]byte, 16))
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	s.Close()

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("read did not unblock after Close")
	}
}

// TestSession_Wait verifies the join handle releases after MarkDone.
func TestSession_Wait(t *testing.T) {
	server, _ := tcpPair(t)
	s := NewSession(1, server, 0)

	select {
	case <-s.Done():
		t.Fatal("done before MarkDone")
	default:
	}

	s.MarkDone()
	s.MarkDone()

	finished := make(chan struct{})
	go func() {
		s.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after MarkDone")
	}
}
