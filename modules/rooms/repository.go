package rooms

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Repository errors.
var (
	ErrNotFound      = errors.New("room not found")
	ErrDuplicateName = errors.New("room name already taken")
)

// Repository provides access to room storage.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new room repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create saves a new room. Names are unique.
func (r *Repository) Create(room *Room) error {
	if _, err := r.FindByName(room.Name); err == nil {
		return ErrDuplicateName
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := r.db.Create(room).Error; err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

// FindByID retrieves a room by its ID.
func (r *Repository) FindByID(id string) (*Room, error) {
	return r.findOne("id = ?", id)
}

// FindByName retrieves a room by its name.
func (r *Repository) FindByName(name string) (*Room, error) {
	return r.findOne("name = ?", name)
}

func (r *Repository) findOne(query string, arg any) (*Room, error) {
	var room Room
	if err := r.db.First(&room, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	return &room, nil
}

// FindAll retrieves all rooms, oldest first.
func (r *Repository) FindAll() ([]*Room, error) {
	var rooms []*Room
	if err := r.db.Order("created_at asc").Order("name asc").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to find rooms: %w", err)
	}
	return rooms, nil
}

// Count returns the number of rooms.
func (r *Repository) Count() (int64, error) {
	var n int64
	if err := r.db.Model(&Room{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count rooms: %w", err)
	}
	return n, nil
}
