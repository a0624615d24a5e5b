package app

import "errors"

var (
	// ErrValidation is returned for malformed or unbookable input.
	ErrValidation = errors.New("invalid booking request")

	// ErrSlotConflict is returned when another booking holds the slot.
	ErrSlotConflict = errors.New("slot is no longer available")

	// ErrServiceUnavailable is returned when the calendar dependency is
	// unreachable or not configured.
	ErrServiceUnavailable = errors.New("booking is temporarily unavailable")

	// ErrUnauthorized is returned when a manage token does not match the booking.
	ErrUnauthorized = errors.New("not authorized for this booking")

	// ErrBookingNotFound is returned when no booking exists for the id.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrAlreadyCancelled is returned when cancelling a cancelled booking.
	ErrAlreadyCancelled = errors.New("booking already cancelled")
)
