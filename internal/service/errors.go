// Package service holds the check-in and chat use cases.  Handlers call
// these with an authenticated user id; every failure is one of the errors
// below so transports can map them without knowing about storage.
package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrAccessDenied     = errors.New("access denied")
	ErrNotFound         = errors.New("not found")
	ErrStorage          = errors.New("storage failure")
)

// ValidationError names the offending input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// GeofenceError rejects a check-in made too far from the establishment.
type GeofenceError struct {
	DistanceMeters float64
	RadiusMeters   float64
}

func (e *GeofenceError) Error() string {
	return fmt.Sprintf("too far from establishment: %.0fm (max %.0fm)", e.DistanceMeters, e.RadiusMeters)
}

func (e *GeofenceError) Is(target error) bool { return target == ErrAccessDenied }

// GrantError is returned by chat operations when the caller has no active
// grant.  Expired separates "check in again" from "check in first".
type GrantError struct {
	Expired   bool
	ExpiredAt time.Time
}

func (e *GrantError) Error() string {
	if e.Expired {
		return "chat access expired at " + e.ExpiredAt.UTC().Format(time.RFC3339)
	}
	return "check in at the establishment to join this chat"
}

func (e *GrantError) Is(target error) bool { return target == ErrAccessDenied }

// StorageError wraps an unexpected repository failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
