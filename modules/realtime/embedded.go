package realtime

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

const embeddedReadyTimeout = 10 * time.Second

// StartEmbeddedServer runs an in-process nats-server with JetStream enabled
// on a random loopback port. storeDir empty keeps JetStream in a temp dir.
func StartEmbeddedServer(storeDir string) (*server.Server, error) {
	opts := &server.Options{
		ServerName: "chatroom-sync",
		Host:       "127.0.0.1",
		Port:       server.RANDOM_PORT,
		JetStream:  true,
		StoreDir:   storeDir,
		NoSigs:     true,
		NoLog:      true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
	}

	ns.Start()
	if !ns.ReadyForConnections(embeddedReadyTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server not ready after %s", embeddedReadyTimeout)
	}
	return ns, nil
}
