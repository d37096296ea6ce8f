package service

import (
	"errors"

	"salonbook/internal/database"
)

var (
	ErrInvalidSchedule     = errors.New("end time must be after start time")
	ErrSlotUnavailable     = errors.New("time slot is not available")
	ErrOutsideOpeningHours = errors.New("salon is closed at the requested time")
	ErrInvalidStatus       = errors.New("invalid reservation status")
	ErrInvalidTransition   = errors.New("a booked reservation cannot return to draft")
	ErrTerminalStatus      = errors.New("reservation is in a terminal status")
	ErrAddonNotFound       = errors.New("addon service not found or inactive")
	ErrInvalidQuantity     = errors.New("quantity must be at least 1")
	ErrPhoneRequired       = errors.New("phone number is required")
	ErrSessionRequired     = errors.New("session id is required")
	ErrIdentityRequired    = errors.New("client name and phone or email are required")
	ErrServiceUnavailable  = errors.New("service is inactive or cannot be booked")
	ErrInvalidVariant      = errors.New("variant does not belong to the service")
	ErrInvalidVerification = errors.New("invalid verification code")
	ErrTooManyAttempts     = errors.New("too many verification attempts")
	ErrPastDate            = errors.New("date is in the past")
	ErrDateTooFar          = errors.New("date is too far in the future")
	ErrInvalidRange        = errors.New("invalid date range")
	ErrInvalidService      = errors.New("invalid service")
)

// Data layer errors callers match on.
var (
	ErrNotFound         = database.ErrNotFound
	ErrDraftNotFound    = database.ErrDraftNotFound
	ErrAddonNotAttached = database.ErrAddonNotAttached
)

// outcome maps an operation error to a short metrics label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSlotUnavailable):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTooManyAttempts):
		return "rate_limited"
	case IsValidation(err):
		return "invalid"
	default:
		return "error"
	}
}

// IsValidation reports whether err was caused by bad caller input.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidSchedule, ErrOutsideOpeningHours, ErrInvalidStatus, ErrInvalidTransition,
		ErrInvalidQuantity, ErrPhoneRequired, ErrSessionRequired, ErrIdentityRequired,
		ErrServiceUnavailable, ErrInvalidVariant, ErrInvalidVerification, ErrPastDate,
		ErrDateTooFar, ErrInvalidRange, ErrInvalidService,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
