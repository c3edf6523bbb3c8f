package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input rejected at the boundary.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTimeWindow is returned for a window whose lower bound exceeds its upper bound.
	ErrInvalidTimeWindow = fmt.Errorf("%w: invalid time window", ErrValidation)
	// ErrInvalidCount is returned when fewer than one suggestion is requested.
	ErrInvalidCount = fmt.Errorf("%w: count must be >= 1", ErrValidation)
	// ErrInvalidEnergy is returned for an unknown energy level.
	ErrInvalidEnergy = fmt.Errorf("%w: unknown energy level", ErrValidation)
	// ErrInvalidContext is returned for an unknown social context.
	ErrInvalidContext = fmt.Errorf("%w: unknown social context", ErrValidation)

	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrFavoriteNotFound is returned when a favorite cannot be located.
	ErrFavoriteNotFound = errors.New("favorite not found")
)
