package model

import "time"

// AccessGrant lets one user read and write one room until ExpiresAt.
//
// There is no stored status.  A grant is active while now < ExpiresAt and
// expired afterwards; a new check-in moves ExpiresAt (active -> active,
// expired -> active).  Rows are never deleted, so there is at most one row
// per (UserID, RoomID) for the lifetime of the system.
//
// Fields:
//  ID        – primary key identifier.
//  RoomID    – room the grant opens.
//  UserID    – grantee.
//  CheckinID – check-in that last produced or refreshed the grant.
//  ExpiresAt – end of access.
//  CreatedAt – first time the user was granted this room.
type AccessGrant struct {
	ID        uint64    `json:"id"`         // chat_grants.id
	RoomID    uint64    `json:"room_id"`    // chat_grants.room_id
	UserID    uint64    `json:"user_id"`    // chat_grants.user_id
	CheckinID uint64    `json:"checkin_id"` // chat_grants.checkin_id
	ExpiresAt time.Time `json:"expires_at"` // chat_grants.expires_at_ms
	CreatedAt time.Time `json:"created_at"` // chat_grants.created_at_ms
}

// ActiveAt is the only freshness predicate for grants.  SQL queries that
// filter on validity use the same strict comparison (expires_at_ms > now).
func (g AccessGrant) ActiveAt(now time.Time) bool {
	return g.ExpiresAt.After(now)
}

// Participant is the public view of a valid grant in a room listing.
type Participant struct {
	UserID    uint64    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	JoinedAt  time.Time `json:"joined_at"`
}

// RoomAccess is a room the user can currently use, for "my rooms" views.
type RoomAccess struct {
	RoomID            uint64    `json:"room_id"`
	EstablishmentID   uint64    `json:"establishment_id"`
	EstablishmentName string    `json:"establishment_name"`
	Active            bool      `json:"active"`
	RoomCreatedAt     time.Time `json:"room_created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}
