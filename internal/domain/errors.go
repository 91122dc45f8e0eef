package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by every NotFoundError through errors.Is.
var ErrNotFound = errors.New("not found")

// ValidationError is raised before any I/O when an input breaks a value rule.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return e.Message
}

// NotFoundError indicates the requested entity does not exist upstream.
type NotFoundError struct {
	Resource string
	ID       any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// TransportError wraps failures where no response reached the client.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: connection error, check your network connection: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError is returned for 5xx responses.
type ServerError struct {
	Op     string
	Status int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: server error (status %d), try again later", e.Op, e.Status)
}

// RemoteError covers any other unexpected non-2xx response.
type RemoteError struct {
	Op     string
	Status int
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: unexpected response status %d", e.Op, e.Status)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UserMessage turns an error into the short text shown next to an empty result.
func UserMessage(err error) string {
	var (
		te *TransportError
		se *ServerError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &te):
		return "Connection error. Check your network connection."
	case errors.As(err, &se):
		return "Server error. Try again later."
	case errors.Is(err, ErrNotFound):
		return "Resource not found."
	default:
		return err.Error()
	}
}
