package services

import (
	"errors"
	"fmt"
)

// ValidationError marks operational bad-input failures so the HTTP layer
// can map them to 400 responses without string sniffing.
type ValidationError struct {
	msg string
}

func (e ValidationError) Error() string {
	return e.msg
}

// invalidf builds a ValidationError.
func invalidf(format string, args ...any) error {
	return ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}
