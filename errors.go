package aloop

import "errors"

var (
	// ErrInvalidParameter is returned for a non-positive byte rate, a zero capacity or
	// parameters outside the hardware limits.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrInvalidState is returned when an operation is not allowed in the current stream state.
	ErrInvalidState = errors.New("invalid stream state")
	// ErrAlreadyOpen is returned when opening a direction that is already open.
	ErrAlreadyOpen = errors.New("stream already open")
	// ErrNotOpen is returned when operating on a closed stream.
	ErrNotOpen = errors.New("stream not open")
)
