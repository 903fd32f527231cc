package reactor

import "errors"

// Refused operations. None of these leave a partial mutation behind.
var (
	// ErrSlotFull is returned when every rod slot is occupied.
	ErrSlotFull = errors.New("no empty rod slot")
	// ErrPipeOccupied is returned when a pipe is inserted into an occupied pipe slot.
	ErrPipeOccupied = errors.New("pipe slot already occupied")
	// ErrStarterNotReady is returned when a starter rod is inserted with no console connected.
	ErrStarterNotReady = errors.New("starter rod needs a connected control console")
	// ErrInvalidOperation covers every other refused request (empty slot, destroyed core, ...).
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrNotFound is returned by the Manager for an unknown reactor id.
	ErrNotFound = errors.New("reactor not found")
)
