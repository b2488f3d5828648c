package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/example/chatroom-sync-demo/modules/activity"
	"github.com/example/chatroom-sync-demo/modules/api"
	"github.com/example/chatroom-sync-demo/modules/chatview"
	"github.com/example/chatroom-sync-demo/modules/media"
	"github.com/example/chatroom-sync-demo/modules/realtime"
	"github.com/example/chatroom-sync-demo/modules/rooms"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration from environment
	httpPort := getEnvInt("HTTP_PORT", 3000)
	natsURL := getEnv("NATS_URL", "")
	storeDir := getEnv("NATS_STORE_DIR", "/tmp/chatroom-sync/jetstream")
	dbPath := getEnv("DB_PATH", "chatrooms.db")
	publicBaseURL := getEnv("PUBLIC_BASE_URL", "http://localhost:"+strconv.Itoa(httpPort))
	maxUploadSize := getEnvInt64("MAX_UPLOAD_SIZE", 10*1024*1024) // 10MB default
	presenceTTL := getEnvDuration("PRESENCE_TTL", chatview.DefaultPresenceTTL)

	log.Println("=== Chatroom Sync Demo - Fiber + JetStream KV + SQLite ===")
	log.Printf("HTTP Port: %d", httpPort)
	log.Printf("Max Upload Size: %d bytes", maxUploadSize)

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	logger := app.Logger()

	// Create modules
	realtimeCfg := realtime.DefaultConfig()
	realtimeCfg.URL = natsURL
	realtimeCfg.StoreDir = storeDir
	realtimeModule := realtime.NewModule(realtimeCfg, logger.WithModule("realtime"))

	mediaModule := media.NewModule(media.Config{
		PublicBaseURL: publicBaseURL,
		MaxUploadSize: maxUploadSize,
	}, logger.WithModule("media"))

	roomsModule := rooms.NewModule(rooms.Config{DBPath: dbPath}, logger.WithModule("rooms"))
	activityModule := activity.NewModule(logger.WithModule("activity"))
	apiModule := api.NewModule(api.Config{
		Port:        strconv.Itoa(httpPort),
		PresenceTTL: presenceTTL,
	}, logger.WithModule("api"))

	// Wire up dependencies that are not exposed via ServiceContainer
	mediaModule.SetJetStreamProvider(realtimeModule)
	apiModule.SetStores(realtimeModule)
	apiModule.SetMedia(mediaModule)

	// Register modules with the framework.
	// Order: independent modules first, then modules with dependencies
	// - realtime: NATS connection and Key-Value buckets
	// - media: image object store (uses the realtime JetStream context)
	// - rooms: room catalog (GORM + SQLite, request/reply services)
	// - activity: event consumer (per-room counters)
	// - api: driving adapter (Fiber HTTP/WebSocket, depends on rooms and activity)
	app.Register(realtimeModule)
	app.Register(mediaModule)
	app.Register(roomsModule)
	app.Register(activityModule)
	app.Register(apiModule)

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(httpPort, natsURL, dbPath, publicBaseURL)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(port int, natsURL, dbPath, publicBaseURL string) {
	if natsURL == "" {
		natsURL = "embedded"
	}

	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Println("Architecture:")
	log.Println("  - HTTP Framework: Fiber with WebSocket support")
	log.Println("  - Realtime Store: NATS JetStream Key-Value (messages + typing presence)")
	log.Println("  - Media Storage: NATS JetStream Object Store")
	log.Println("  - Room Catalog: GORM + SQLite")
	log.Printf("  - NATS URL: %s", natsURL)
	log.Printf("  - Database: %s", dbPath)
	log.Printf("  - Public URL: %s", publicBaseURL)
	log.Println("")
	log.Println("Event-Driven Activity:")
	log.Println("  - MessagePosted events -> activity module")
	log.Println("  - ImageUploaded events -> activity module")
	log.Println("  - UploadFailed events -> activity module")
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%d):", port)
	log.Println("  GET    /health                         - Health check")
	log.Println("  GET    /api/v1/rooms                   - List all rooms")
	log.Println("  POST   /api/v1/rooms                   - Create a new room")
	log.Println("  GET    /api/v1/rooms/:id               - Get room details")
	log.Println("  GET    /api/v1/rooms/:id/activity      - Get room activity")
	log.Println("  POST   /api/v1/sessions/:id/uploads    - Send an image to the session's room")
	log.Println("  GET    /media/*                        - Download an uploaded image")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%d/ws):", port)
	log.Printf("  Connect with: ws://localhost:%d/ws?user_id=alice&name=Alice", port)
	log.Println("  Message types: select_room, type, submit, search")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns environment variable as int or default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: invalid int value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvInt64 returns environment variable as int64 or default.
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
		log.Printf("Warning: invalid int64 value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvDuration returns environment variable as duration or default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Printf("Warning: invalid duration value for %s: %s, using default: %s", key, value, defaultValue)
	}
	return defaultValue
}
