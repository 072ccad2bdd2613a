package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/metinatakli/show-booking-engine/internal/domain"
)

const (
	ErrRequired       = "is required"
	ErrMinValue       = "must be at least %s"
	ErrMaxValue       = "must be at most %s"
	ErrMinLength      = "must contain at least %s item(s)"
	ErrMaxLength      = "must contain at most %s item(s)"
	ErrEmail          = "must be a valid email address"
	ErrUnique         = "must not contain duplicates"
	ErrSeatID         = "must be a valid seat identifier"
	ErrDefaultInvalid = "is invalid"
)

var seatIDRgx = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

func NewValidator() *validator.Validate {
	validator := validator.New(validator.WithRequiredStructEnabled())

	validator.RegisterValidation("seat_id", validateSeatID)

	return validator
}

func validateSeatID(fl validator.FieldLevel) bool {
	return seatIDRgx.MatchString(fl.Field().String())
}

// ValidationMessage converts validator errors into readable messages
func ValidationMessage(err validator.FieldError) string {
	isCollection := err.Kind() == reflect.Slice || err.Kind() == reflect.Map

	switch err.Tag() {
	case "required":
		return ErrRequired
	case "email":
		return ErrEmail
	case "min", "gte":
		if isCollection {
			return fmt.Sprintf(ErrMinLength, err.Param())
		}
		return fmt.Sprintf(ErrMinValue, err.Param())
	case "max", "lte":
		if isCollection {
			return fmt.Sprintf(ErrMaxLength, err.Param())
		}
		return fmt.Sprintf(ErrMaxValue, err.Param())
	case "unique":
		return ErrUnique
	case "seat_id":
		return ErrSeatID
	default:
		return ErrDefaultInvalid
	}
}

// Struct validates input and maps any field failures to a
// *domain.ValidationError.
func Struct(v *validator.Validate, input any) error {
	err := v.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	issues := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		issues[fe.Field()] = ValidationMessage(fe)
	}

	return &domain.ValidationError{Issues: issues}
}
