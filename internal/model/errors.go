package model

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced by the tracking core. Operations wrap these with a
// human-readable reason; callers match them with errors.Is.
var (
	ErrPermissionDenied     = errors.New("location permission denied")
	ErrNoActiveSession      = errors.New("no active tracking session")
	ErrSessionAlreadyActive = errors.New("tracking session already active")
	ErrNotFound             = errors.New("requested item not found")
	ErrEmptyTrack           = errors.New("track contains no points")
	ErrNoData               = errors.New("no track points recorded")
	ErrInvalidFormat        = errors.New("invalid track format")
	ErrOffline              = errors.New("no internet connection available")
	ErrPersistenceFailure   = errors.New("persistence failure")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrPermissionDenied, "PermissionDenied"},
	{ErrNoActiveSession, "NoActiveSession"},
	{ErrSessionAlreadyActive, "SessionAlreadyActive"},
	{ErrNotFound, "NotFound"},
	{ErrEmptyTrack, "EmptyTrack"},
	{ErrNoData, "NoData"},
	{ErrInvalidFormat, "InvalidFormat"},
	{ErrOffline, "Offline"},
	{ErrPersistenceFailure, "PersistenceFailure"},
}

// ErrorKind names the failure kind carried by err, or "Internal" when it has none.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}

// PersistenceError marks err as a storage failure while keeping it inspectable.
func PersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistenceFailure, err)
}

// NotFoundError reports a missing hike or point.
func NotFoundError(what, id string) error {
	return fmt.Errorf("%s %q: %w", what, id, ErrNotFound)
}
