package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/venue-chat/internal/model"
)

// RoomRepo maps establishments to their chat room.
type RoomRepo struct {
	db *sql.DB
}

// NewRoomRepo returns a new RoomRepo bound to db.
func NewRoomRepo(db *sql.DB) *RoomRepo { return &RoomRepo{db: db} }

const roomColumns = `id, establishment_id, active, created_at_ms`

func scanRoom(row interface{ Scan(...any) error }) (model.ChatRoom, error) {
	var (
		room model.ChatRoom
		ms   int64
	)
	if err := row.Scan(&room.ID, &room.EstablishmentID, &room.Active, &ms); err != nil {
		return model.ChatRoom{}, err
	}
	room.CreatedAt = fromMillis(ms)
	return room, nil
}

// GetByID returns a room regardless of its active flag.
func (r *RoomRepo) GetByID(ctx context.Context, id uint64) (model.ChatRoom, error) {
	room, err := scanRoom(r.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM chat_rooms WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.ChatRoom{}, ErrNotFound
	}
	return room, err
}

// GetByEstablishment returns the room of an establishment.
func (r *RoomRepo) GetByEstablishment(ctx context.Context, establishmentID uint64) (model.ChatRoom, error) {
	room, err := scanRoom(r.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM chat_rooms WHERE establishment_id = ?`, establishmentID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.ChatRoom{}, ErrNotFound
	}
	return room, err
}

// GetOrCreate returns the establishment's room, creating an active one if
// none exists.  Two callers racing on the first access both end up with the
// same row: the loser of the insert hits the unique index on
// establishment_id and re-reads the winner's room.
func (r *RoomRepo) GetOrCreate(ctx context.Context, establishmentID uint64, now time.Time) (model.ChatRoom, error) {
	room, err := r.GetByEstablishment(ctx, establishmentID)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return model.ChatRoom{}, err
	}

	ms := toMillis(now)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_rooms (establishment_id, active, created_at_ms) VALUES (?, 1, ?)`,
		establishmentID, ms)
	if err != nil {
		if isDuplicateKey(err) {
			room, err := r.GetByEstablishment(ctx, establishmentID)
			if errors.Is(err, ErrNotFound) {
				return model.ChatRoom{}, ErrConflict
			}
			return room, err
		}
		return model.ChatRoom{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.ChatRoom{}, err
	}
	return model.ChatRoom{
		ID:              uint64(id),
		EstablishmentID: establishmentID,
		Active:          true,
		CreatedAt:       fromMillis(ms),
	}, nil
}
