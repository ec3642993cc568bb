package testutil

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// StartJetStream starts an embedded NATS server with JetStream enabled and
// returns a connected JetStream context plus a cleanup func.
func StartJetStream(t *testing.T) (nats.JetStreamContext, func()) {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}

	s, err := server.NewServer(opts)
	require.NoError(t, err)

	go s.Start()
	if !s.ReadyForConnections(10 * time.Second) {
		t.Fatal("Unable to start NATS server")
	}

	nc, err := nats.Connect(s.ClientURL(), nats.Timeout(5*time.Second))
	require.NoError(t, err)

	js, err := nc.JetStream(nats.MaxWait(5 * time.Second))
	require.NoError(t, err)

	cleanup := func() {
		nc.Close()
		s.Shutdown()
	}

	return js, cleanup
}
