package api

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/example/chatroom-sync-demo/events"
	"github.com/example/chatroom-sync-demo/modules/activity"
	"github.com/example/chatroom-sync-demo/modules/media"
	"github.com/example/chatroom-sync-demo/modules/realtime"
	"github.com/example/chatroom-sync-demo/modules/rooms"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// uploadBodyOverhead leaves room for multipart framing around the file.
const uploadBodyOverhead = 1 << 20

// StoreProvider supplies the realtime stores backing each view.
type StoreProvider interface {
	Messages() realtime.Store
	Typing() realtime.Store
}

// MediaService stores and serves uploaded images.
type MediaService interface {
	Upload(ctx context.Context, name string, r io.Reader, size int64, progress media.ProgressFunc) (*media.Object, error)
	Open(ctx context.Context, name string) (io.ReadCloser, *media.ObjectInfo, error)
	Stat(ctx context.Context, name string) (*media.ObjectInfo, error)
	Discard(ctx context.Context, name string) error
	MaxUploadSize() int64
}

// Config holds gateway configuration.
type Config struct {
	Port        string
	PresenceTTL time.Duration
}

// Module is the HTTP and WebSocket gateway. Every websocket connection gets
// its own chat view.
type Module struct {
	cfg      Config
	logger   types.Logger
	app      *fiber.App
	registry *Registry

	rooms    rooms.RoomsPort
	activity activity.ActivityPort
	stores   StoreProvider
	media    MediaService
	eventBus mono.EventBus

	// ctx bounds every websocket session and is cancelled on Stop.
	ctx    context.Context
	cancel context.CancelFunc
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.DependentModule       = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
)

// NewModule creates a new gateway module.
func NewModule(cfg Config, logger types.Logger) *Module {
	if cfg.Port == "" {
		cfg.Port = "3000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Module{
		cfg:      cfg,
		logger:   logger,
		registry: NewRegistry(logger),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *Module) Dependencies() []string {
	return []string{"rooms", "activity"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "rooms":
		m.rooms = rooms.NewRoomsAdapter(container)
	case "activity":
		m.activity = activity.NewActivityAdapter(container)
	}
}

// SetStores sets the realtime stores (called from main.go).
func (m *Module) SetStores(p StoreProvider) {
	m.stores = p
}

// SetMedia sets the image storage (called from main.go).
func (m *Module) SetMedia(s MediaService) {
	m.media = s
}

// SetEventBus is called by the framework to inject the event bus.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events published by chat views.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.MessagePostedV1.ToBase(),
		events.ImageUploadedV1.ToBase(),
		events.UploadFailedV1.ToBase(),
	}
}

// Start initializes the Fiber HTTP server.
func (m *Module) Start(_ context.Context) error {
	if m.rooms == nil {
		return fmt.Errorf("rooms adapter dependency not set")
	}
	if m.activity == nil {
		return fmt.Errorf("activity adapter dependency not set")
	}
	if m.stores == nil {
		return fmt.Errorf("realtime stores not set")
	}

	m.app = m.newApp()

	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(":" + m.cfg.Port); err != nil {
			errCh <- err
		}
	}()

	// Catch immediate startup errors such as a port in use.
	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("HTTP server started", "port", m.cfg.Port, "presence_ttl", m.cfg.PresenceTTL)
	return nil
}

// newApp builds the Fiber app with middleware and routes.
func (m *Module) newApp() *fiber.App {
	bodyLimit := fiber.DefaultBodyLimit
	if limit := m.maxUploadSize(); limit > 0 {
		bodyLimit = int(limit) + uploadBodyOverhead
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
		BodyLimit:             bodyLimit,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(m.loggerMiddleware())

	m.setupRoutes(app)
	return app
}

// Stop closes every session and shuts down the HTTP server.
func (m *Module) Stop(ctx context.Context) error {
	m.cancel()

	// Release the views of sessions still open, clearing their presence.
	sessions := m.registry.Sessions()
	for _, s := range sessions {
		m.closeSession(s)
	}

	if m.app == nil {
		return nil
	}
	m.logger.Info("Shutting down HTTP server", "sessions", len(sessions))
	if err := m.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"port":              m.cfg.Port,
			"connected_clients": m.registry.Count(),
		},
	}
}

// errorHandler handles Fiber errors.
func (m *Module) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}
	if code >= fiber.StatusInternalServerError {
		m.logger.Error("HTTP error", "code", code, "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}

// loggerMiddleware logs every request except websocket upgrades.
func (m *Module) loggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get("Upgrade") == "websocket" {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()
		m.logger.Debug("HTTP request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"latency", time.Since(start),
		)
		return err
	}
}
