// Package queue defines the domain events published to the message broker,
// the publisher used by the services and the consumer that records them.
package queue

import "time"

// Event types double as queue names.
const (
	CheckinRecorded = "checkin.recorded"
	ChatMessageSent = "chat.message.sent"
)

// Queues lists every queue the publisher writes and the consumer reads.
var Queues = []string{CheckinRecorded, ChatMessageSent}

// Event is the payload of every queue.  It carries identifiers and times
// only; message text never leaves the database, and only in encrypted form.
type Event struct {
	Type            string  `json:"type"`
	UserID          uint64  `json:"user_id"`
	EstablishmentID uint64  `json:"establishment_id,omitempty"`
	RoomID          uint64  `json:"room_id,omitempty"`
	CheckinID       uint64  `json:"checkin_id,omitempty"`
	MessageID       uint64  `json:"message_id,omitempty"`
	DistanceMeters  float64 `json:"distance_m,omitempty"`
	GrantExpiresAt  string  `json:"grant_expires_at,omitempty"`
	OccurredAt      string  `json:"occurred_at"`
}

// NewCheckinRecorded builds the event for an accepted check-in.  grantExpires
// is zero when the grant could not be written.
func NewCheckinRecorded(userID, establishmentID, roomID, checkinID uint64, distance float64, at, grantExpires time.Time) Event {
	ev := Event{
		Type:            CheckinRecorded,
		UserID:          userID,
		EstablishmentID: establishmentID,
		RoomID:          roomID,
		CheckinID:       checkinID,
		DistanceMeters:  distance,
		OccurredAt:      at.UTC().Format(time.RFC3339),
	}
	if !grantExpires.IsZero() {
		ev.GrantExpiresAt = grantExpires.UTC().Format(time.RFC3339)
	}
	return ev
}

// NewChatMessageSent builds the event for a stored message.
func NewChatMessageSent(userID, roomID, messageID uint64, at time.Time) Event {
	return Event{
		Type:       ChatMessageSent,
		UserID:     userID,
		RoomID:     roomID,
		MessageID:  messageID,
		OccurredAt: at.UTC().Format(time.RFC3339),
	}
}
