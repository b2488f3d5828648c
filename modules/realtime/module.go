package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	// MessagesBucket holds one collection per room id.
	MessagesBucket = "chat-messages"
	// TypingBucket holds one presence collection per room key.
	TypingBucket = "chat-typing"
)

// Config holds realtime store configuration.
type Config struct {
	URL      string // empty starts an embedded server
	StoreDir string // JetStream storage for the embedded server
	// TypingTTL bounds how long an abandoned presence entry survives
	// server-side.
	TypingTTL time.Duration
}

// DefaultConfig returns the default realtime configuration.
func DefaultConfig() Config {
	return Config{
		TypingTTL: 2 * time.Minute,
	}
}

// Module owns the NATS connection and the Key-Value buckets used as the
// realtime store.
type Module struct {
	cfg      Config
	logger   types.Logger
	server   *server.Server
	conn     *nats.Conn
	js       jetstream.JetStream
	messages *JetStreamStore
	typing   *JetStreamStore
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new realtime module.
func NewModule(cfg Config, logger types.Logger) *Module {
	return &Module{
		cfg:    cfg,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "realtime"
}

// Start connects to NATS and opens the buckets.
func (m *Module) Start(ctx context.Context) error {
	url := m.cfg.URL
	if url == "" {
		ns, err := StartEmbeddedServer(m.cfg.StoreDir)
		if err != nil {
			return err
		}
		m.server = ns
		url = ns.ClientURL()
		m.logger.Info("Started embedded NATS server", "url", url)
	}

	conn, err := nats.Connect(url,
		nats.Name("chatroom-sync"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		m.shutdownServer()
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	m.conn = conn

	js, err := jetstream.New(conn)
	if err != nil {
		m.close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}
	m.js = js

	m.messages, err = m.openStore(ctx, BucketConfig{
		Name:        MessagesBucket,
		Description: "Chat messages keyed by room id",
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		m.close()
		return err
	}

	m.typing, err = m.openStore(ctx, BucketConfig{
		Name:        TypingBucket,
		Description: "Typing presence keyed by room key",
		TTL:         m.cfg.TypingTTL,
		Storage:     jetstream.MemoryStorage,
	})
	if err != nil {
		m.close()
		return err
	}

	m.logger.Info("Realtime module started", "url", url, "buckets", m.buckets())
	return nil
}

func (m *Module) openStore(ctx context.Context, cfg BucketConfig) (*JetStreamStore, error) {
	store, err := NewJetStreamStore(m.js, cfg, m.logger)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// Stop closes the connection and the embedded server, if any.
func (m *Module) Stop(_ context.Context) error {
	m.close()
	m.logger.Info("Realtime module stopped")
	return nil
}

func (m *Module) close() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.shutdownServer()
}

func (m *Module) shutdownServer() {
	if m.server != nil {
		m.server.Shutdown()
		m.server.WaitForShutdown()
		m.server = nil
	}
}

// Health returns the health status of the module.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	healthy := m.IsConnected()
	message := "connected"
	if !healthy {
		message = "disconnected"
	}
	return mono.HealthStatus{
		Healthy: healthy,
		Message: message,
		Details: map[string]any{
			"embedded": m.server != nil,
			"buckets":  m.buckets(),
		},
	}
}

// buckets lists the buckets opened so far.
func (m *Module) buckets() []string {
	out := make([]string, 0, 2)
	for _, s := range []*JetStreamStore{m.messages, m.typing} {
		if s != nil {
			out = append(out, s.Bucket())
		}
	}
	return out
}

// IsConnected returns whether the NATS connection is active.
func (m *Module) IsConnected() bool {
	return m.conn != nil && m.conn.IsConnected()
}

// JetStream returns the JetStream context shared with other modules.
func (m *Module) JetStream() jetstream.JetStream {
	return m.js
}

// Messages returns the store holding room message collections.
func (m *Module) Messages() Store {
	return m.messages
}

// Typing returns the store holding room presence collections.
func (m *Module) Typing() Store {
	return m.typing
}
