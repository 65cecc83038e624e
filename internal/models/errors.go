package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrProtectedAccount   = errors.New("administrator accounts cannot be removed")
	ErrForbidden          = errors.New("admins only")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// DateParseError reports a filter bound that is not a YYYY-MM-DD date.
type DateParseError struct {
	Param string
	Value string
	Err   error
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("invalid %s date %q: expected YYYY-MM-DD", e.Param, e.Value)
}

func (e *DateParseError) Unwrap() error {
	return e.Err
}
