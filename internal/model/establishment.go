package model

import "time"

// Establishment is a venue users can check in to.  Establishments are
// managed elsewhere; this service only reads them to locate the geofence
// centre and to decide whether a venue is still open for chat.
//
// Fields:
//  ID        – primary key identifier.
//  Name      – display name.
//  Latitude  – geofence centre latitude (decimal degrees).
//  Longitude – geofence centre longitude (decimal degrees).
//  Address   – free-form address, optional.
//  Active    – inactive establishments behave as not found.
//  CreatedAt – creation timestamp.
type Establishment struct {
	ID        uint64    // establishments.id
	Name      string    // establishments.name
	Latitude  float64   // establishments.latitude
	Longitude float64   // establishments.longitude
	Address   *string   // establishments.address (nullable)
	Active    bool      // establishments.active
	CreatedAt time.Time // establishments.created_at_ms
}

// EstablishmentStats summarises check-in activity for an establishment.
type EstablishmentStats struct {
	EstablishmentID uint64     `json:"establishment_id"`
	TotalCheckins   int64      `json:"total_checkins"`
	LastCheckinAt   *time.Time `json:"last_checkin_at,omitempty"`
}
