package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrNoValidItems is returned when an upload or batch yields zero usable records.
	ErrNoValidItems = errors.New("no valid items")
	// ErrDuplicate indicates a unique constraint violation.
	ErrDuplicate = errors.New("already exists")
)

// Error pairs a failure class with a message that is safe to show to callers.
type Error struct {
	Kind    error
	Message string
	// Details holds per-row or per-field messages for batch failures.
	Details []string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" && e.Kind != nil {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Kind
}

// Validation builds an ErrValidation error with a formatted message.
func Validation(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds an ErrNotFound error.
func NotFound(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// Duplicate builds an ErrDuplicate error.
func Duplicate(format string, args ...any) error {
	return &Error{Kind: ErrDuplicate, Message: fmt.Sprintf(format, args...)}
}

// NoValidItems builds an ErrNoValidItems error carrying the rejected row messages.
func NoValidItems(message string, details []string) error {
	return &Error{Kind: ErrNoValidItems, Message: message, Details: details}
}

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// UserSafeMessage returns the message of a classified error, or a generic text.
func UserSafeMessage(err error) string {
	var se *Error
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrNoValidItems), errors.Is(err, ErrDuplicate):
		return err.Error()
	}
	return "Something went wrong!"
}

// Details extracts per-row messages from a classified error.
func Details(err error) []string {
	var se *Error
	if errors.As(err, &se) {
		return se.Details
	}
	return nil
}
