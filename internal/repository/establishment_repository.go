package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/venue-chat/internal/model"
)

// EstablishmentRepo reads establishments.  Creating them belongs to the
// venue catalogue; Create exists for development seeding and tests.
type EstablishmentRepo struct {
	db *sql.DB
}

// NewEstablishmentRepo returns a new EstablishmentRepo bound to db.
func NewEstablishmentRepo(db *sql.DB) *EstablishmentRepo { return &EstablishmentRepo{db: db} }

// Create inserts an establishment and returns it with its new id.
func (r *EstablishmentRepo) Create(ctx context.Context, e model.Establishment) (model.Establishment, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO establishments (name, latitude, longitude, address, active, created_at_ms) VALUES (?, ?, ?, ?, ?, ?)`,
		e.Name, e.Latitude, e.Longitude, e.Address, e.Active, toMillis(e.CreatedAt))
	if err != nil {
		return model.Establishment{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Establishment{}, err
	}
	e.ID = uint64(id)
	e.CreatedAt = fromMillis(toMillis(e.CreatedAt))
	return e, nil
}

// GetActiveByID returns the establishment with the given id.  Inactive
// establishments yield ErrNotFound.
func (r *EstablishmentRepo) GetActiveByID(ctx context.Context, id uint64) (model.Establishment, error) {
	var (
		e         model.Establishment
		address   sql.NullString
		createdMs int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, latitude, longitude, address, active, created_at_ms
		   FROM establishments WHERE id = ? AND active = 1`, id,
	).Scan(&e.ID, &e.Name, &e.Latitude, &e.Longitude, &address, &e.Active, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Establishment{}, ErrNotFound
	}
	if err != nil {
		return model.Establishment{}, err
	}
	if address.Valid {
		e.Address = &address.String
	}
	e.CreatedAt = fromMillis(createdMs)
	return e, nil
}

// Stats counts the check-ins of an establishment.
func (r *EstablishmentRepo) Stats(ctx context.Context, id uint64) (model.EstablishmentStats, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM checkins WHERE establishment_id = ?`, id,
	).Scan(&total)
	if err != nil {
		return model.EstablishmentStats{}, err
	}
	return model.EstablishmentStats{EstablishmentID: id, TotalCheckins: total}, nil
}
