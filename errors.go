package goedxcore

import "errors"

var (
	// ErrInvalidInput is returned before any numeric work when the data or the
	// model handed to the engine cannot be refined.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownKind is returned when a record names a model kind or parameter
	// this package does not implement.
	ErrUnknownKind = errors.New("unknown kind")

	// ErrDegenerate is returned by setters that would put a model into a state
	// its functions cannot evaluate (non-positive sigma, empty domain, ...).
	ErrDegenerate = errors.New("degenerate parameter")
)
