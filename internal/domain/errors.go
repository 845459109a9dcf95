package domain

import "errors"

var (
	ErrValidation             = errors.New("validation failed")
	ErrConflict               = errors.New("room unavailable for these dates")
	ErrInvalidTransition      = errors.New("invalid state transition")
	ErrStorageUnavailable     = errors.New("storage unavailable")
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification")
)
