package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/nats-io/nats.go/jetstream"
)

// ErrNotReady is returned when the JetStream context is not available yet.
var ErrNotReady = errors.New("media storage not ready")

// DefaultBucket is the object store bucket holding message images.
const DefaultBucket = "chat-media"

// JetStreamProvider exposes the shared JetStream context.
type JetStreamProvider interface {
	JetStream() jetstream.JetStream
}

// Config holds media module configuration.
type Config struct {
	Bucket        string
	PublicBaseURL string
	MaxUploadSize int64
}

// Module stores uploaded images in a JetStream object store bucket.
type Module struct {
	cfg      Config
	logger   types.Logger
	provider JetStreamProvider

	mu       sync.Mutex
	store    *JetStreamObjectStore
	uploader *Uploader
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new media module.
func NewModule(cfg Config, logger types.Logger) *Module {
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	return &Module{
		cfg:    cfg,
		logger: logger,
	}
}

// SetJetStreamProvider sets the source of the JetStream context.
func (m *Module) SetJetStreamProvider(p JetStreamProvider) {
	m.provider = p
}

// Name returns the module name.
func (m *Module) Name() string {
	return "media"
}

// Start opens the bucket. If the JetStream context is not up yet the bucket
// is opened on first use instead.
func (m *Module) Start(ctx context.Context) error {
	if m.provider == nil {
		return fmt.Errorf("media: JetStream provider not set")
	}
	if _, err := m.ensure(ctx); err != nil {
		if errors.Is(err, ErrNotReady) {
			m.logger.Warn("JetStream not ready, deferring bucket initialization", "bucket", m.cfg.Bucket)
			return nil
		}
		return err
	}
	m.logger.Info("Media module started", "bucket", m.cfg.Bucket, "base_url", m.cfg.PublicBaseURL)
	return nil
}

// Stop shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Media module stopped")
	return nil
}

// Health returns the health status of the module.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	m.mu.Lock()
	healthy := m.store != nil
	m.mu.Unlock()

	message := "ready"
	if !healthy {
		message = "bucket not initialized"
	}
	return mono.HealthStatus{
		Healthy: healthy,
		Message: message,
		Details: map[string]any{
			"bucket":          m.cfg.Bucket,
			"max_upload_size": m.cfg.MaxUploadSize,
		},
	}
}

// MaxUploadSize returns the configured upload limit in bytes.
func (m *Module) MaxUploadSize() int64 {
	return m.cfg.MaxUploadSize
}

// Upload stores an image and returns its public URL.
func (m *Module) Upload(ctx context.Context, name string, r io.Reader, size int64, progress ProgressFunc) (*Object, error) {
	u, err := m.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return u.Upload(ctx, name, r, size, progress)
}

// Open returns a reader for a stored object.
func (m *Module) Open(ctx context.Context, name string) (io.ReadCloser, *ObjectInfo, error) {
	u, err := m.ensure(ctx)
	if err != nil {
		return nil, nil, err
	}
	return u.Open(ctx, name)
}

// Stat returns the metadata of a stored object.
func (m *Module) Stat(ctx context.Context, name string) (*ObjectInfo, error) {
	u, err := m.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return u.Stat(ctx, name)
}

// Discard removes an uploaded object that will not be referenced.
func (m *Module) Discard(ctx context.Context, name string) error {
	u, err := m.ensure(ctx)
	if err != nil {
		return err
	}
	return u.Discard(ctx, name)
}

func (m *Module) ensure(ctx context.Context) (*Uploader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.uploader != nil {
		return m.uploader, nil
	}
	if m.provider == nil || m.provider.JetStream() == nil {
		return nil, ErrNotReady
	}

	store := NewJetStreamObjectStore(m.provider.JetStream(), m.cfg.Bucket)
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}
	m.store = store
	m.uploader = NewUploader(store, m.cfg.PublicBaseURL)
	return m.uploader, nil
}
