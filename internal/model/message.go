package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxMessageRunes bounds the length of a chat message in characters.
const MaxMessageRunes = 1000

// UndecryptablePlaceholder replaces the text of a row that fails to decrypt.
const UndecryptablePlaceholder = "[message could not be decrypted]"

// StoredMessage is the persisted row.  Ciphertext is the only on-disk form
// of the message body.
type StoredMessage struct {
	ID         uint64     // chat_messages.id (pagination cursor)
	RoomID     uint64     // chat_messages.room_id
	UserID     uint64     // chat_messages.user_id
	Ciphertext string     // chat_messages.ciphertext
	CreatedAt  time.Time  // chat_messages.created_at_ms
	EditedAt   *time.Time // chat_messages.edited_at_ms (nullable, unused for now)
}

// Message is the decrypted view handed to callers.
type Message struct {
	ID            uint64     `json:"id"`
	RoomID        uint64     `json:"room_id"`
	UserID        uint64     `json:"user_id"`
	Text          string     `json:"message"`
	Undecryptable bool       `json:"undecryptable,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	EditedAt      *time.Time `json:"edited_at,omitempty"`
}

// RoomSummary is a "my rooms" entry with its latest activity.
type RoomSummary struct {
	RoomAccess
	LastMessage        *Message `json:"last_message,omitempty"`
	ActiveParticipants int      `json:"active_participants"`
}

var (
	// ErrEmptyMessage is returned for text that is empty after trimming.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrMessageTooLong is returned for text over MaxMessageRunes.
	ErrMessageTooLong = errors.New("message too long")
)

// ValidateMessageText checks the body of a message before it is sealed.  The
// text is stored as sent; trimming only decides emptiness.
func ValidateMessageText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageRunes {
		return ErrMessageTooLong
	}
	return nil
}
