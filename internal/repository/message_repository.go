package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/iliyamo/venue-chat/internal/model"
)

const (
	// DefaultPageSize is used when a caller passes no usable limit.
	DefaultPageSize = 20
	// MaxPageSize caps latest and before reads.
	MaxPageSize = 100
)

// Sealer encrypts message bodies.  *keyring.Keyring implements it.
type Sealer interface {
	Seal(plaintext string, additional []byte) (string, error)
	Open(sealed string, additional []byte) (string, error)
}

// MessageRepo stores chat messages encrypted and hands them back decrypted.
// The room id is bound into every ciphertext, so a row copied into another
// room fails to open.
type MessageRepo struct {
	db     *sql.DB
	sealer Sealer
}

// NewMessageRepo returns a new MessageRepo bound to db.
func NewMessageRepo(db *sql.DB, sealer Sealer) *MessageRepo {
	return &MessageRepo{db: db, sealer: sealer}
}

// NormalizeLimit maps anything outside 1..MaxPageSize to DefaultPageSize.
func NormalizeLimit(limit int) int {
	if limit < 1 || limit > MaxPageSize {
		return DefaultPageSize
	}
	return limit
}

func roomAD(roomID uint64) []byte {
	return []byte("room:" + strconv.FormatUint(roomID, 10))
}

// Append validates, encrypts and stores text.  The returned message carries
// the plaintext; the ciphertext never leaves this type.
func (r *MessageRepo) Append(ctx context.Context, roomID, userID uint64, text string, now time.Time) (model.Message, error) {
	if err := model.ValidateMessageText(text); err != nil {
		return model.Message{}, err
	}
	sealed, err := r.sealer.Seal(text, roomAD(roomID))
	if err != nil {
		return model.Message{}, err
	}
	ms := toMillis(now)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_messages (room_id, user_id, ciphertext, created_at_ms) VALUES (?, ?, ?, ?)`,
		roomID, userID, sealed, ms)
	if err != nil {
		return model.Message{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Message{}, err
	}
	return model.Message{
		ID:        uint64(id),
		RoomID:    roomID,
		UserID:    userID,
		Text:      text,
		CreatedAt: fromMillis(ms),
	}, nil
}

// Latest returns the newest limit messages of a room, oldest first.
func (r *MessageRepo) Latest(ctx context.Context, roomID uint64, limit int) ([]model.Message, error) {
	list, err := r.query(ctx,
		`SELECT `+messageColumns+` FROM chat_messages
		  WHERE room_id = ? ORDER BY id DESC LIMIT ?`,
		roomID, NormalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	reverse(list)
	return list, nil
}

// Before returns up to limit messages with id < beforeID, oldest first.
func (r *MessageRepo) Before(ctx context.Context, roomID, beforeID uint64, limit int) ([]model.Message, error) {
	list, err := r.query(ctx,
		`SELECT `+messageColumns+` FROM chat_messages
		  WHERE room_id = ? AND id < ? ORDER BY id DESC LIMIT ?`,
		roomID, beforeID, NormalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	reverse(list)
	return list, nil
}

// After returns every message with id > afterID, oldest first.  There is no
// limit: it is the catch-up read behind long polling.
func (r *MessageRepo) After(ctx context.Context, roomID, afterID uint64) ([]model.Message, error) {
	return r.query(ctx,
		`SELECT `+messageColumns+` FROM chat_messages
		  WHERE room_id = ? AND id > ? ORDER BY id ASC`,
		roomID, afterID)
}

// LastOf returns the most recent message of a room or nil.
func (r *MessageRepo) LastOf(ctx context.Context, roomID uint64) (*model.Message, error) {
	stored, err := scanStored(r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM chat_messages
		  WHERE room_id = ? ORDER BY id DESC LIMIT 1`, roomID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m := r.open(stored)
	return &m, nil
}

const messageColumns = `id, room_id, user_id, ciphertext, created_at_ms, edited_at_ms`

func scanStored(row interface{ Scan(...any) error }) (model.StoredMessage, error) {
	var (
		s         model.StoredMessage
		createdMs int64
		editedMs  sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.RoomID, &s.UserID, &s.Ciphertext, &createdMs, &editedMs); err != nil {
		return model.StoredMessage{}, err
	}
	s.CreatedAt = fromMillis(createdMs)
	if editedMs.Valid {
		t := fromMillis(editedMs.Int64)
		s.EditedAt = &t
	}
	return s, nil
}

func (r *MessageRepo) query(ctx context.Context, q string, args ...any) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []model.Message{}
	for rows.Next() {
		s, err := scanStored(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, r.open(s))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// open never fails: a row that cannot be decrypted is returned with a
// placeholder body so one bad row does not break the page.
func (r *MessageRepo) open(s model.StoredMessage) model.Message {
	m := model.Message{
		ID:        s.ID,
		RoomID:    s.RoomID,
		UserID:    s.UserID,
		CreatedAt: s.CreatedAt,
		EditedAt:  s.EditedAt,
	}
	text, err := r.sealer.Open(s.Ciphertext, roomAD(s.RoomID))
	if err != nil {
		m.Text = model.UndecryptablePlaceholder
		m.Undecryptable = true
		return m
	}
	m.Text = text
	return m
}

func reverse(list []model.Message) {
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
}
