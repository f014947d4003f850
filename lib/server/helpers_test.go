package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-i2p/go-echochat/lib/config"
	"github.com/go-i2p/go-echochat/lib/notify"
	"github.com/go-i2p/go-echochat/lib/session"
	"github.com/go-i2p/go-echochat/lib/shutdown"
	"github.com/stretchr/testify/require"
)

// writeTestCert writes a self-signed certificate for localhost and returns
// the TLS section pointing at it.
func writeTestCert(t *testing.T) config.TLSConfig {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))

	return config.TLSConfig{CertFile: certFile, KeyFile: keyFile, MinVersion: "1.2"}
}

type testServer struct {
	*Server
	sessions *session.Registry
	events   *notify.Queue
	stop     *shutdown.Signal
}

// startTestServer starts a server on a random loopback port. It is shut down
// and drained when the test ends.
func startTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	cfg := config.Defaults()
	cfg.Server.Address = "127.0.0.1:0"
	cfg.Server.WriteTimeout = 2 * time.Second
	cfg.Server.HandshakeTimeout = 2 * time.Second
	cfg.TLS = writeTestCert(t)
	if mutate != nil {
		mutate(&cfg)
	}

	tlsConfig, err := LoadTLSConfig(cfg.TLS)
	require.NoError(t, err)

	ts := &testServer{
		sessions: session.NewRegistry(),
		events:   notify.NewQueue(),
		stop:     shutdown.NewSignal(),
	}
	ts.Server, err = NewServer(&cfg, tlsConfig, ts.sessions, ts.events, ts.stop)
	require.NoError(t, err)
	require.NoError(t, ts.Start())

	t.Cleanup(func() {
		ts.Shutdown()
		waitDrained(t, ts.Server)
	})
	return ts
}

// dial connects a TLS client and completes the handshake.
func (ts *testServer) dial(t *testing.T) *tls.Conn {
	t.Helper()

	conn, err := tls.Dial("tcp", ts.Addr().String(), &tls.Config{InsecureSkipVerify: true})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// dialNth connects a client and waits until the registry tracks want sessions,
// so identifiers are assigned in dial order.
func (ts *testServer) dialNth(t *testing.T, want int) *tls.Conn {
	t.Helper()
	conn := ts.dial(t)
	ts.waitForCount(t, want)
	return conn
}

func (ts *testServer) waitForCount(t *testing.T, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return ts.sessions.Count() == want
	}, 3*time.Second, 5*time.Millisecond, "registry never reached %d sessions", want)
}

func waitDrained(t *testing.T, s *Server) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not drain its workers")
	}
}

// readExactly reads len(want) bytes and returns them as a string.
func readExactly(t *testing.T, conn net.Conn, n int) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	buf := make([]byte, n)
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	return string(buf)
}

// eventsFor returns the drained notifications for one client, in order.
func eventsFor(all []notify.Notification, id uint64) []notify.Notification {
	var out []notify.Notification
	for _, n := range all {
		if n.ClientID == id {
			out = append(out, n)
		}
	}
	return out
}

func kinds(events []notify.Notification) []notify.Kind {
	out := make([]notify.Kind, 0, len(events))
	for _, n := range events {
		out = append(out, n.Kind)
	}
	return out
}
