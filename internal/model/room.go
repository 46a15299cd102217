package model

import "time"

// ChatRoom is the single chat room of an establishment.  It is created
// lazily by the first valid check-in (or the first enter) and is unique per
// establishment.
type ChatRoom struct {
	ID              uint64    `json:"id"`               // chat_rooms.id
	EstablishmentID uint64    `json:"establishment_id"` // chat_rooms.establishment_id (unique)
	Active          bool      `json:"active"`           // chat_rooms.active
	CreatedAt       time.Time `json:"created_at"`       // chat_rooms.created_at_ms
}
