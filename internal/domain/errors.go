package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrInvalidState    = errors.New("operation is not allowed in the current state")
	ErrConflict        = errors.New("conflict")
	ErrValidation      = errors.New("validation failed")
	ErrExternalService = errors.New("external service error")

	ErrEditConflict           = fmt.Errorf("%w: edit conflict", ErrConflict)
	ErrSeatAlreadyReserved    = fmt.Errorf("%w: seat(s) are already reserved", ErrConflict)
	ErrDuplicateBookingNumber = fmt.Errorf("%w: booking number already exists", ErrConflict)

	ErrShowNotBookable    = fmt.Errorf("%w: show is not open for booking", ErrInvalidState)
	ErrMissingPriceTier   = fmt.Errorf("%w: seat category has no price tier", ErrInvalidState)
	ErrSeatLockExpired    = fmt.Errorf("%w: your selections have expired, please select your seats again", ErrInvalidState)
	ErrCheckInWindow      = fmt.Errorf("%w: check-in is only possible around the show time", ErrInvalidState)
	ErrPaymentRejected    = fmt.Errorf("%w: payment could not be verified", ErrExternalService)
	ErrPaymentUnavailable = fmt.Errorf("%w: payment gateway unavailable", ErrExternalService)
)

// ValidationError carries the offending fields and their issues. It matches
// ErrValidation with errors.Is.
type ValidationError struct {
	Issues map[string]string
}

func NewValidationError(field, issue string) *ValidationError {
	return &ValidationError{Issues: map[string]string{field: issue}}
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Issues))
	for field := range e.Issues {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, len(fields))
	for i, field := range fields {
		parts[i] = fmt.Sprintf("%s %s", field, e.Issues[field])
	}

	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
