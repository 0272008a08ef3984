package device

import "errors"

// Device errors
var (
	// ErrOutOfMemory is returned when an allocation exceeds the device memory limit
	ErrOutOfMemory = errors.New("device out of memory")

	// ErrInvalidPointer is returned for nil, freed or unknown handles
	ErrInvalidPointer = errors.New("invalid device pointer")

	// ErrInvalidSize is returned for negative or zero sized allocations
	ErrInvalidSize = errors.New("invalid allocation size")

	// ErrOutOfRange is returned when a transfer crosses the end of an allocation
	ErrOutOfRange = errors.New("device access out of range")

	// ErrUnknownSymbol is returned when a constant memory symbol was never written
	ErrUnknownSymbol = errors.New("unknown device symbol")

	// ErrInjected is returned by Tracker for failures injected by tests
	ErrInjected = errors.New("injected device failure")
)
