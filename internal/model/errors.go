package model

import (
	"errors"
	"fmt"
)

// Kind classifies a domain error. Every rejection the reservation core
// produces carries exactly one Kind so callers can branch with errors.Is.
type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindNotBookable          Kind = "not_bookable"
	KindFull                 Kind = "full"
	KindDuplicateReservation Kind = "duplicate_reservation"
	KindInvalidTransition    Kind = "invalid_transition"
	KindForbidden            Kind = "forbidden"
	KindBelowHeldCount       Kind = "below_held_count"
	KindUnavailable          Kind = "unavailable"
	KindInvalidInput         Kind = "invalid_input"
)

// Error is the typed error returned by the ledger, the directory and the
// services around them.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "ledger.reserve"
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrNotBookable          = &Error{Kind: KindNotBookable}
	ErrFull                 = &Error{Kind: KindFull}
	ErrDuplicateReservation = &Error{Kind: KindDuplicateReservation}
	ErrInvalidTransition    = &Error{Kind: KindInvalidTransition}
	ErrForbidden            = &Error{Kind: KindForbidden}
	ErrBelowHeldCount       = &Error{Kind: KindBelowHeldCount}
	ErrUnavailable          = &Error{Kind: KindUnavailable}
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
)

// E builds an *Error of the given kind.
func E(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around cause.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// KindOf returns the Kind carried by err, or "" when err is not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
