package edt

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRange is returned when the start date is after the end date,
	// or when only one bound of the range is given.
	ErrInvalidRange = errors.New("start and end dates do not form a valid range")
	// ErrInvalidDate is returned for a date that is not DD/MM/YYYY.
	ErrInvalidDate = errors.New("date must be formatted as DD/MM/YYYY")
	// ErrUnknownGroup is returned for a group outside the known set.
	ErrUnknownGroup = errors.New("unknown group")
	// ErrMalformedDescription is returned when an event description does not
	// carry the expected number of segments.
	ErrMalformedDescription = errors.New("malformed event description")
	// ErrMalformedEvent is returned when a raw record lacks a module or has
	// unparsable timestamps.
	ErrMalformedEvent = errors.New("malformed event")
)

// TransportKind classifies a failed call to the timetable endpoint.
type TransportKind string

const (
	KindHTTPStatus TransportKind = "http status"
	KindConnection TransportKind = "connection"
	KindTimeout    TransportKind = "timeout"
	KindRequest    TransportKind = "request"
)

// TransportError wraps any failure of the single request to the endpoint.
type TransportError struct {
	Kind       TransportKind
	StatusCode int // set for KindHTTPStatus
	Err        error
}

func (e *TransportError) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("edt %s error %d: %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("edt %s error: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
