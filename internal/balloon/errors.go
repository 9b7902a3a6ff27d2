package balloon

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidJSON is returned when an upstream body cannot be decoded.
	ErrInvalidJSON = errors.New("invalid JSON")

	// ErrNoSuccessfulHours is returned by Refresh when every hour failed.
	ErrNoSuccessfulHours = errors.New("no hour produced a snapshot")
)

// ErrorKind classifies a per-hour failure.
type ErrorKind string

const (
	KindFetch      ErrorKind = "fetch"
	KindParse      ErrorKind = "parse"
	KindEnrichment ErrorKind = "enrichment"
	KindAlignment  ErrorKind = "alignment"
)

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// Error is the error value stored in a failed Snapshot.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Hour    int       `json:"hour"`
	Status  int       `json:"status,omitempty"`
	Message string    `json:"message"`

	err error
}

// newError builds an hour error of the given kind from cause.
func newError(kind ErrorKind, hour int, cause error) *Error {
	e := &Error{Kind: kind, Hour: hour, err: cause}
	if cause != nil {
		e.Message = cause.Error()
	}
	var se *StatusError
	if errors.As(cause, &se) {
		e.Status = se.Code
	}
	return e
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s error for hour %02d (status %d): %s", e.Kind, e.Hour, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error for hour %02d: %s", e.Kind, e.Hour, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

// classifyFetchError maps a feed error to its kind.
func classifyFetchError(hour int, err error) *Error {
	var he *Error
	if errors.As(err, &he) {
		return he
	}
	if errors.Is(err, ErrInvalidJSON) {
		return newError(KindParse, hour, err)
	}
	return newError(KindFetch, hour, err)
}
