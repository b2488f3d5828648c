package rooms

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds room catalog configuration.
type Config struct {
	DBPath  string
	DBDebug bool
}

// Module provides the room catalog via GORM + SQLite.
type Module struct {
	cfg     Config
	logger  types.Logger
	db      *gorm.DB
	service *Service
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new rooms module.
func NewModule(cfg Config, logger types.Logger) *Module {
	if cfg.DBPath == "" {
		cfg.DBPath = "chatrooms.db"
	}
	return &Module{cfg: cfg, logger: logger}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "rooms"
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, "create-room", json.Unmarshal, json.Marshal, m.createRoom,
	); err != nil {
		return fmt.Errorf("failed to register create-room service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "get-room", json.Unmarshal, json.Marshal, m.getRoom,
	); err != nil {
		return fmt.Errorf("failed to register get-room service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "list-rooms", json.Unmarshal, json.Marshal, m.listRooms,
	); err != nil {
		return fmt.Errorf("failed to register list-rooms service: %w", err)
	}

	m.logger.Info("Registered services", "services", []string{"create-room", "get-room", "list-rooms"})
	return nil
}

// Start opens the database, runs migrations and seeds the default room.
func (m *Module) Start(_ context.Context) error {
	logLevel := logger.Silent
	if m.cfg.DBDebug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(m.cfg.DBPath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return m.init(db)
}

func (m *Module) init(db *gorm.DB) error {
	if err := db.AutoMigrate(&Room{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	service, err := NewService(NewRepository(db))
	if err != nil {
		return err
	}

	seeded, err := service.SeedDefault()
	if err != nil {
		return fmt.Errorf("failed to seed default room: %w", err)
	}
	if seeded != nil {
		m.logger.Info("Seeded default room", "id", seeded.ID, "key", seeded.Key)
	}

	m.db = db
	m.service = service
	m.logger.Info("Rooms module started", "path", m.cfg.DBPath)
	return nil
}

// Stop closes the database connection.
func (m *Module) Stop(_ context.Context) error {
	if m.db == nil {
		return nil
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	m.logger.Info("Database connection closed")
	return nil
}

// Health pings the database.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.db == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "database not initialized",
		}
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("failed to get sql.DB: %v", err),
		}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver": "sqlite",
			"path":   m.cfg.DBPath,
		},
	}
}

// createRoom handles the create-room service request.
func (m *Module) createRoom(_ context.Context, req CreateRoomRequest, _ *mono.Msg) (RoomResponse, error) {
	room, err := m.service.Create(req.Name)
	if err != nil {
		return RoomResponse{}, err
	}
	m.logger.Info("Room created", "id", room.ID, "name", room.Name)
	return toRoomResponse(room), nil
}

// getRoom handles the get-room service request.
func (m *Module) getRoom(_ context.Context, req GetRoomRequest, _ *mono.Msg) (RoomResponse, error) {
	room, err := m.service.Get(req.ID)
	if err != nil {
		return RoomResponse{}, err
	}
	return toRoomResponse(room), nil
}

// listRooms handles the list-rooms service request.
func (m *Module) listRooms(_ context.Context, _ ListRoomsRequest, _ *mono.Msg) (ListRoomsResponse, error) {
	rooms, err := m.service.List()
	if err != nil {
		return ListRoomsResponse{}, err
	}

	response := ListRoomsResponse{
		Rooms: make([]RoomResponse, 0, len(rooms)),
		Total: len(rooms),
	}
	for _, room := range rooms {
		response.Rooms = append(response.Rooms, toRoomResponse(room))
	}
	return response, nil
}
