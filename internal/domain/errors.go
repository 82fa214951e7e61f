package domain

import (
	"errors"
	"fmt"
)

// ErrValidation is the root of every input validation failure. Callers
// match it with errors.Is; nothing has been written when it is returned.
var ErrValidation = errors.New("validation failed")

// ValidationError carries a stable machine-readable code such as
// "invalid_message_type".
type ValidationError struct {
	Code   string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// UnsupportedAudienceError is returned for an audience type the resolver
// does not know. Unknown types are never silently ignored.
type UnsupportedAudienceError struct {
	Type string
}

func (e *UnsupportedAudienceError) Error() string {
	return "audience_not_supported:" + e.Type
}

func (e *UnsupportedAudienceError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for building a *ValidationError.
func Invalid(code, detail string) error {
	return &ValidationError{Code: code, Detail: detail}
}
