package model

import "time"

// Checkin is an immutable record that a user was physically near an
// establishment.  It is never updated or deleted; grants point at the
// check-in that produced them.
//
// Fields:
//  ID              – primary key identifier.
//  UserID          – user who checked in.
//  EstablishmentID – establishment checked in to.
//  DistanceMeters  – measured distance from the geofence centre.
//  CreatedAt       – server-assigned time of the check-in.
type Checkin struct {
	ID              uint64    `json:"id"`               // checkins.id
	UserID          uint64    `json:"user_id"`          // checkins.user_id
	EstablishmentID uint64    `json:"establishment_id"` // checkins.establishment_id
	DistanceMeters  float64   `json:"distance_meters"`  // checkins.distance_m
	CreatedAt       time.Time `json:"created_at"`       // checkins.created_at_ms
}
