package api

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/example/chatroom-sync-demo/domain/chat"
	"github.com/example/chatroom-sync-demo/modules/chatview"
	"github.com/example/chatroom-sync-demo/modules/media"
	"github.com/example/chatroom-sync-demo/modules/rooms"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// setupRoutes configures all HTTP routes.
func (m *Module) setupRoutes(app *fiber.App) {
	// Health check
	app.Get("/health", m.healthHandler)

	// WebSocket endpoint
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(m.handleWebSocket))

	// Stored images. HEAD is registered first so it answers from metadata.
	app.Head("/media/*", m.withMediaName(m.statMedia))
	app.Get("/media/*", m.withMediaName(m.serveMedia))

	// REST API v1
	api := app.Group("/api/v1")

	api.Get("/rooms", m.listRooms)
	api.Post("/rooms", m.createRoom)
	api.Get("/rooms/:id", m.getRoom)
	api.Get("/rooms/:id/activity", m.getRoomActivity)

	api.Post("/sessions/:id/uploads", m.uploadImage)
}

// healthHandler handles GET /health.
func (m *Module) healthHandler(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"module":            "api",
			"connected_clients": m.registry.Count(),
		},
	})
}

// listRooms handles GET /api/v1/rooms.
func (m *Module) listRooms(c *fiber.Ctx) error {
	list, err := m.rooms.ListRooms(c.UserContext())
	if err != nil {
		m.logger.Error("Failed to list rooms", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "list_failed",
			Message: "Failed to list rooms",
		})
	}

	response := RoomListResponse{
		Rooms: make([]RoomResponse, 0, len(list)),
	}
	for _, room := range list {
		response.Rooms = append(response.Rooms, m.toRoomResponse(room))
	}

	return c.JSON(response)
}

// createRoom handles POST /api/v1/rooms.
func (m *Module) createRoom(c *fiber.Ctx) error {
	var req CreateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}

	room, err := m.rooms.CreateRoom(c.UserContext(), req.Name)
	if err != nil {
		switch {
		case errors.Is(err, rooms.ErrInvalidName):
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error:   "validation_error",
				Message: err.Error(),
			})
		case errors.Is(err, rooms.ErrDuplicateName):
			return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
				Error:   "duplicate_name",
				Message: "Room name already taken",
			})
		}
		m.logger.Error("Failed to create room", "name", req.Name, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "create_failed",
			Message: "Failed to create room",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(m.toRoomResponse(*room))
}

// getRoom handles GET /api/v1/rooms/:id.
func (m *Module) getRoom(c *fiber.Ctx) error {
	room, err := m.rooms.GetRoom(c.UserContext(), c.Params("id"))
	if err != nil {
		return m.roomLookupError(c, err)
	}
	return c.JSON(m.toRoomResponse(*room))
}

// getRoomActivity handles GET /api/v1/rooms/:id/activity.
func (m *Module) getRoomActivity(c *fiber.Ctx) error {
	room, err := m.rooms.GetRoom(c.UserContext(), c.Params("id"))
	if err != nil {
		return m.roomLookupError(c, err)
	}

	stats, err := m.activity.RoomActivity(c.UserContext(), room.ID)
	if err != nil {
		m.logger.Error("Failed to load room activity", "room_id", room.ID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "activity_failed",
			Message: "Failed to load room activity",
		})
	}

	return c.JSON(stats)
}

// uploadImage handles POST /api/v1/sessions/:id/uploads. The image is sent
// to the room the session is currently viewing.
func (m *Module) uploadImage(c *fiber.Ctx) error {
	session, ok := m.registry.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Session not found",
		})
	}

	header, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Use multipart/form-data with a 'file' field",
		})
	}

	if limit := m.maxUploadSize(); limit > 0 && header.Size > limit {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(ErrorResponse{
			Error:   "file_too_large",
			Message: fmt.Sprintf("File size exceeds maximum of %d bytes", limit),
		})
	}

	if !media.IsImage(media.DetectContentType(header.Filename)) {
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(ErrorResponse{
			Error:   "not_an_image",
			Message: "Only image files can be sent",
		})
	}

	file, err := header.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "read_error",
			Message: "Failed to read file data",
		})
	}
	defer file.Close()

	err = session.View.SubmitImage(c.UserContext(), &chatview.File{
		Name: header.Filename,
		Size: header.Size,
		Body: file,
	})
	if err != nil {
		switch {
		case errors.Is(err, chatview.ErrNoRoom):
			return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
				Error:   "no_room",
				Message: "Select a room before sending an image",
			})
		case errors.Is(err, media.ErrNotImage):
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(ErrorResponse{
				Error:   "not_an_image",
				Message: "Only image files can be sent",
			})
		case errors.Is(err, chatview.ErrClosed):
			return c.Status(fiber.StatusGone).JSON(ErrorResponse{
				Error:   "session_closed",
				Message: "Session is closed",
			})
		}
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{
			Error:   "upload_failed",
			Message: "Image upload failed",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(UploadResponse{
		SessionID: session.ID,
		Upload:    session.View.State().Upload,
	})
}

// serveMedia handles GET /media/*.
func (m *Module) serveMedia(c *fiber.Ctx, name string) error {
	body, info, err := m.media.Open(c.UserContext(), name)
	if err != nil {
		return m.mediaLookupError(c, name, err)
	}

	setMediaHeaders(c, info)
	// The response closes body once it has been written.
	return c.SendStream(body, int(info.Size))
}

// statMedia handles HEAD /media/*.
func (m *Module) statMedia(c *fiber.Ctx, name string) error {
	info, err := m.media.Stat(c.UserContext(), name)
	if err != nil {
		return m.mediaLookupError(c, name, err)
	}

	setMediaHeaders(c, info)
	c.Response().Header.SetContentLength(int(info.Size))
	return nil
}

// withMediaName resolves the object name of a /media/* request and passes
// it to next.
func (m *Module) withMediaName(next func(c *fiber.Ctx, name string) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		name, err := url.PathUnescape(c.Params("*"))
		if err != nil || name == "" {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error:   "invalid_request",
				Message: "Invalid object name",
			})
		}
		if m.media == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
				Error:   "unavailable",
				Message: "Media storage is not configured",
			})
		}
		return next(c, name)
	}
}

func (m *Module) mediaLookupError(c *fiber.Ctx, name string, err error) error {
	if errors.Is(err, media.ErrObjectNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Object not found",
		})
	}
	m.logger.Error("Failed to open object", "name", name, "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error:   "download_failed",
		Message: "Failed to read object",
	})
}

func setMediaHeaders(c *fiber.Ctx, info *media.ObjectInfo) {
	c.Set(fiber.HeaderContentType, info.ContentType)
	c.Set(fiber.HeaderCacheControl, "public, max-age=31536000, immutable")
}

func (m *Module) roomLookupError(c *fiber.Ctx, err error) error {
	if errors.Is(err, rooms.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Room not found",
		})
	}
	m.logger.Error("Room lookup failed", "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error:   "lookup_failed",
		Message: "Failed to load room",
	})
}

func (m *Module) toRoomResponse(room chat.Room) RoomResponse {
	return RoomResponse{
		ID:        room.ID,
		Key:       room.Key,
		Name:      room.Name,
		CreatedAt: room.CreatedAt,
		Viewers:   m.registry.RoomCount(room.ID),
	}
}

func (m *Module) maxUploadSize() int64 {
	if m.media == nil {
		return 0
	}
	return m.media.MaxUploadSize()
}
