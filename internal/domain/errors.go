package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnknownRole       = errors.New("unknown canonical role")
	ErrSessionNotFound   = errors.New("review session not found")
	ErrInvalidCorrection = errors.New("invalid device correction")
)
