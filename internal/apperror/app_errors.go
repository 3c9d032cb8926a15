package apperror

import (
	"errors"
	"fmt"
)

// Error kinds. Concrete errors wrap exactly one of them so callers can branch
// with errors.Is without parsing messages.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrDuplicate  = errors.New("already exists")
)

const internalMessage = "internal server error"

type appError struct {
	kind error
	msg  string
}

func (e *appError) Error() string { return e.msg }

func (e *appError) Unwrap() error { return e.kind }

func NotFound(format string, args ...any) error {
	return &appError{kind: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error {
	return &appError{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

func Duplicate(format string, args ...any) error {
	return &appError{kind: ErrDuplicate, msg: fmt.Sprintf(format, args...)}
}

// IsDomain reports whether err belongs to the user-facing taxonomy.
func IsDomain(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) || errors.Is(err, ErrDuplicate)
}

// Public returns the message safe to show a client: the domain message for
// known kinds, an opaque string for everything else.
func Public(err error) string {
	if err == nil {
		return ""
	}

	var ae *appError
	if errors.As(err, &ae) {
		return ae.msg
	}

	return internalMessage
}
