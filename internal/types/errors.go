package types

import "errors"

// Error taxonomy shared across the engine. Adapter-level failures are logged
// and the offending message dropped; command-level failures surface to the
// caller. Neither stops snapshot serving.
var (
	// ErrMalformedInput marks an inbound feed payload that failed validation.
	ErrMalformedInput = errors.New("malformed input")

	// ErrNotActive is returned when a deactivate or direction-change command
	// names a vehicle that is not the current emergency vehicle.
	ErrNotActive = errors.New("vehicle is not the active emergency vehicle")

	// ErrInvalidApproach is returned when a target approach cannot be derived
	// from a heading.
	ErrInvalidApproach = errors.New("no approach derivable from heading")
)
