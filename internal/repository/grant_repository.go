package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/venue-chat/internal/model"
)

// GrantRepo persists chat access grants.  Validity is always evaluated
// against a caller-supplied now with the strict comparison
// expires_at_ms > now, mirroring model.AccessGrant.ActiveAt.
type GrantRepo struct {
	db *sql.DB
}

// NewGrantRepo returns a new GrantRepo bound to db.
func NewGrantRepo(db *sql.DB) *GrantRepo { return &GrantRepo{db: db} }

// Upsert creates the (userID, roomID) grant or, if it exists, points it at
// checkinID and replaces its expiry.  The new expiry always wins, even when
// it is earlier than the stored one.
func (r *GrantRepo) Upsert(ctx context.Context, roomID, userID, checkinID uint64, expiresAt, now time.Time) (model.AccessGrant, error) {
	updated, err := r.refresh(ctx, roomID, userID, checkinID, expiresAt, now)
	if err != nil {
		return model.AccessGrant{}, err
	}
	if !updated {
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO chat_grants (room_id, user_id, checkin_id, expires_at_ms, created_at_ms, updated_at_ms)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			roomID, userID, checkinID, toMillis(expiresAt), toMillis(now), toMillis(now))
		if err != nil {
			if !isDuplicateKey(err) {
				return model.AccessGrant{}, err
			}
			// A concurrent check-in inserted first; apply ours on top.
			updated, err = r.refresh(ctx, roomID, userID, checkinID, expiresAt, now)
			if err != nil {
				return model.AccessGrant{}, err
			}
			if !updated {
				return model.AccessGrant{}, ErrConflict
			}
		}
	}
	return r.Get(ctx, userID, roomID)
}

func (r *GrantRepo) refresh(ctx context.Context, roomID, userID, checkinID uint64, expiresAt, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chat_grants SET checkin_id = ?, expires_at_ms = ?, updated_at_ms = ?
		  WHERE user_id = ? AND room_id = ?`,
		checkinID, toMillis(expiresAt), toMillis(now), userID, roomID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Get returns the grant row for (userID, roomID) whether or not it is still
// active, so callers can tell an expired grant from a missing one.
func (r *GrantRepo) Get(ctx context.Context, userID, roomID uint64) (model.AccessGrant, error) {
	var (
		g                    model.AccessGrant
		expiresMs, createdMs int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, room_id, user_id, checkin_id, expires_at_ms, created_at_ms
		   FROM chat_grants WHERE user_id = ? AND room_id = ?`, userID, roomID,
	).Scan(&g.ID, &g.RoomID, &g.UserID, &g.CheckinID, &expiresMs, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AccessGrant{}, ErrNotFound
	}
	if err != nil {
		return model.AccessGrant{}, err
	}
	g.ExpiresAt = fromMillis(expiresMs)
	g.CreatedAt = fromMillis(createdMs)
	return g, nil
}

// IsValid reports whether userID holds an active grant for roomID at now.
func (r *GrantRepo) IsValid(ctx context.Context, userID, roomID uint64, now time.Time) (bool, error) {
	g, err := r.Get(ctx, userID, roomID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return g.ActiveAt(now), nil
}

// CountValid counts the active grants of a room.
func (r *GrantRepo) CountValid(ctx context.Context, roomID uint64, now time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_grants WHERE room_id = ? AND expires_at_ms > ?`,
		roomID, toMillis(now)).Scan(&n)
	return n, err
}

// ListValidByRoom returns the active participants of a room, most recent
// joiners first.
func (r *GrantRepo) ListValidByRoom(ctx context.Context, roomID uint64, now time.Time) ([]model.Participant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, expires_at_ms, created_at_ms FROM chat_grants
		  WHERE room_id = ? AND expires_at_ms > ?
		  ORDER BY created_at_ms DESC, id DESC`, roomID, toMillis(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []model.Participant{}
	for rows.Next() {
		var (
			p                    model.Participant
			expiresMs, createdMs int64
		)
		if err := rows.Scan(&p.UserID, &expiresMs, &createdMs); err != nil {
			return nil, err
		}
		p.ExpiresAt = fromMillis(expiresMs)
		p.JoinedAt = fromMillis(createdMs)
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// ListValidByUser returns the rooms a user can currently use, latest expiry
// first.
func (r *GrantRepo) ListValidByUser(ctx context.Context, userID uint64, now time.Time) ([]model.RoomAccess, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.id, r.establishment_id, e.name, r.active, r.created_at_ms, g.expires_at_ms
		   FROM chat_grants g
		   JOIN chat_rooms r ON r.id = g.room_id
		   JOIN establishments e ON e.id = r.establishment_id
		  WHERE g.user_id = ? AND g.expires_at_ms > ?
		  ORDER BY g.expires_at_ms DESC, r.id ASC`, userID, toMillis(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []model.RoomAccess{}
	for rows.Next() {
		var (
			a                 model.RoomAccess
			roomMs, expiresMs int64
		)
		if err := rows.Scan(&a.RoomID, &a.EstablishmentID, &a.EstablishmentName, &a.Active, &roomMs, &expiresMs); err != nil {
			return nil, err
		}
		a.RoomCreatedAt = fromMillis(roomMs)
		a.ExpiresAt = fromMillis(expiresMs)
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}
