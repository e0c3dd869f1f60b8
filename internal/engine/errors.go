package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument rejects parameters outside their documented domain.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnknownService is returned when an outlook is requested for an unregistered service.
	ErrUnknownService = errors.New("unknown service")
)

// InsufficientHistoryError is returned when a forecast is requested with too few observations.
type InsufficientHistoryError struct {
	Have int
	Need int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history: have %d observations, need at least %d", e.Have, e.Need)
}

// LengthMismatchError is returned when samples and baseline are misaligned.
type LengthMismatchError struct {
	Samples  int
	Baseline int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("length mismatch: %d samples vs %d baseline values", e.Samples, e.Baseline)
}
