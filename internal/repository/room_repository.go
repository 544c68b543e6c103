package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jbweber/homelab/ipdesk/internal/domain"
)

// RoomRepository defines operations for rooms. Rooms are provisioned, never
// changed by the workflow.
type RoomRepository interface {
	Create(ctx context.Context, room domain.Room) (domain.Room, error)
	FindByID(ctx context.Context, id int64) (domain.Room, error)
	FindByNumber(ctx context.Context, number string) (domain.Room, error)
}

// roomRepositoryImpl implements RoomRepository
type roomRepositoryImpl struct {
	db DBTX
}

// NewRoomRepository creates a new room repository
func NewRoomRepository(db DBTX) RoomRepository {
	return &roomRepositoryImpl{db: db}
}

// Create inserts a room
func (r *roomRepositoryImpl) Create(ctx context.Context, room domain.Room) (domain.Room, error) {
	if room.Number == "" {
		return domain.Room{}, invalidf("room number is required")
	}

	result, err := r.db.ExecContext(ctx, `INSERT INTO rooms (number) VALUES (?)`, room.Number)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Room{}, fmt.Errorf("room %s: %w", room.Number, ErrDuplicate)
		}
		return domain.Room{}, fmt.Errorf("failed to create room: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.Room{}, fmt.Errorf("failed to get room ID: %w", err)
	}

	room.ID = id
	return room, nil
}

// FindByID finds a room by ID
func (r *roomRepositoryImpl) FindByID(ctx context.Context, id int64) (domain.Room, error) {
	var room domain.Room
	err := r.db.QueryRowContext(ctx, `SELECT id, number FROM rooms WHERE id = ?`, id).
		Scan(&room.ID, &room.Number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Room{}, fmt.Errorf("room %d: %w", id, ErrNotFound)
		}
		return domain.Room{}, fmt.Errorf("failed to find room: %w", err)
	}

	return room, nil
}

// FindByNumber finds a room by its number
func (r *roomRepositoryImpl) FindByNumber(ctx context.Context, number string) (domain.Room, error) {
	var room domain.Room
	err := r.db.QueryRowContext(ctx, `SELECT id, number FROM rooms WHERE number = ?`, number).
		Scan(&room.ID, &room.Number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Room{}, fmt.Errorf("room %s: %w", number, ErrNotFound)
		}
		return domain.Room{}, fmt.Errorf("failed to find room by number: %w", err)
	}

	return room, nil
}
