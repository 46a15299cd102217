package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/venue-chat/internal/model"
)

// CheckinRepo is the append-only ledger of check-ins.  There are no update
// or delete methods on purpose: a check-in is evidence, grants refer to it.
type CheckinRepo struct {
	db *sql.DB
}

// NewCheckinRepo returns a new CheckinRepo bound to db.
func NewCheckinRepo(db *sql.DB) *CheckinRepo { return &CheckinRepo{db: db} }

// Record inserts a check-in.  The id is assigned by the database and the
// timestamp by the caller's clock (truncated to milliseconds, the storage
// resolution) so the grant expiry can be derived from the returned value.
func (r *CheckinRepo) Record(ctx context.Context, userID, establishmentID uint64, distanceMeters float64, at time.Time) (model.Checkin, error) {
	ms := toMillis(at)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO checkins (user_id, establishment_id, distance_m, created_at_ms) VALUES (?, ?, ?, ?)`,
		userID, establishmentID, distanceMeters, ms)
	if err != nil {
		return model.Checkin{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Checkin{}, err
	}
	return model.Checkin{
		ID:              uint64(id),
		UserID:          userID,
		EstablishmentID: establishmentID,
		DistanceMeters:  distanceMeters,
		CreatedAt:       fromMillis(ms),
	}, nil
}

// ListByEstablishment returns all check-ins of an establishment, newest first.
func (r *CheckinRepo) ListByEstablishment(ctx context.Context, establishmentID uint64) ([]model.Checkin, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, establishment_id, distance_m, created_at_ms
		   FROM checkins WHERE establishment_id = ?
		  ORDER BY created_at_ms DESC, id DESC`, establishmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []model.Checkin{}
	for rows.Next() {
		var (
			c  model.Checkin
			ms int64
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.EstablishmentID, &c.DistanceMeters, &ms); err != nil {
			return nil, err
		}
		c.CreatedAt = fromMillis(ms)
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// LatestFor returns the time of the most recent check-in at an
// establishment, or nil when there is none.  It feeds statistics only and
// plays no part in access control.
func (r *CheckinRepo) LatestFor(ctx context.Context, establishmentID uint64) (*time.Time, error) {
	var ms int64
	err := r.db.QueryRowContext(ctx,
		`SELECT created_at_ms FROM checkins WHERE establishment_id = ? ORDER BY created_at_ms DESC LIMIT 1`,
		establishmentID).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := fromMillis(ms)
	return &t, nil
}
