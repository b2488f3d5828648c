package rooms

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	nanoid "github.com/jaevor/go-nanoid"
)

// DefaultRoomName is the room seeded into an empty catalog.
const DefaultRoomName = "lobby"

const (
	maxRoomNameLength = 64
	roomKeyLength     = 12
)

// ErrInvalidName is returned for empty or oversized room names.
var ErrInvalidName = errors.New("invalid room name")

// Service holds the room catalog rules on top of the repository.
type Service struct {
	repo   *Repository
	newKey func() string
}

// NewService creates a room service.
func NewService(repo *Repository) (*Service, error) {
	newKey, err := nanoid.Standard(roomKeyLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create key generator: %w", err)
	}
	return &Service{repo: repo, newKey: newKey}, nil
}

// ValidateRoomName trims name and checks its length.
func ValidateRoomName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > maxRoomNameLength {
		return "", fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxRoomNameLength)
	}
	return name, nil
}

// Create adds a room with a fresh id and presence key.
func (s *Service) Create(name string) (*Room, error) {
	name, err := ValidateRoomName(name)
	if err != nil {
		return nil, err
	}

	room := &Room{
		ID:   uuid.New().String(),
		Key:  s.newKey(),
		Name: name,
	}
	if err := s.repo.Create(room); err != nil {
		return nil, err
	}
	return room, nil
}

// Get returns a room by id.
func (s *Service) Get(id string) (*Room, error) {
	if id == "" {
		return nil, fmt.Errorf("id is required")
	}
	return s.repo.FindByID(id)
}

// List returns all rooms.
func (s *Service) List() ([]*Room, error) {
	return s.repo.FindAll()
}

// SeedDefault creates the default room when the catalog is empty.
func (s *Service) SeedDefault() (*Room, error) {
	n, err := s.repo.Count()
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, nil
	}
	return s.Create(DefaultRoomName)
}

// toRoomResponse converts a Room entity to a RoomResponse.
func toRoomResponse(room *Room) RoomResponse {
	return RoomResponse{
		ID:        room.ID,
		Key:       room.Key,
		Name:      room.Name,
		CreatedAt: room.CreatedAt,
	}
}
