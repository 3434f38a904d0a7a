// Package apperr defines the typed business errors returned by the scheduling core.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindInvalidSlot       Kind = "invalid_slot"
	KindSlotConflict      Kind = "slot_conflict"
	KindInvalidTransition Kind = "invalid_transition"
	KindInvalidState      Kind = "invalid_state"
	KindTooLate           Kind = "too_late"
	KindTooEarly          Kind = "too_early"
	KindForbidden         Kind = "forbidden"
	KindNotFound          Kind = "not_found"
)

// Error is a business-rule failure. Field names the offending input when there is one.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Field == "" || t.Field == e.Field)
}

var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrInvalidSlot       = &Error{Kind: KindInvalidSlot}
	ErrSlotConflict      = &Error{Kind: KindSlotConflict}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrTooLate           = &Error{Kind: KindTooLate}
	ErrTooEarly          = &Error{Kind: KindTooEarly}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrNotFound          = &Error{Kind: KindNotFound}
)

func New(kind Kind, field, message string) *Error {
	return &Error{Kind: kind, Field: field, Message: message}
}

func Validation(field, message string) *Error {
	return New(KindValidation, field, message)
}

func InvalidSlot(field, message string) *Error {
	return New(KindInvalidSlot, field, message)
}

func SlotConflict(message string) *Error {
	return New(KindSlotConflict, "", message)
}

func InvalidTransition(message string) *Error {
	return New(KindInvalidTransition, "status", message)
}

func InvalidState(message string) *Error {
	return New(KindInvalidState, "status", message)
}

func TooLate(field, message string) *Error {
	return New(KindTooLate, field, message)
}

func Forbidden(message string) *Error {
	return New(KindForbidden, "", message)
}

func NotFound(field, message string) *Error {
	return New(KindNotFound, field, message)
}

// KindOf returns the kind of the first *Error in err's chain, or "" for infrastructure errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// FieldOf returns the offending field of the first *Error in err's chain.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}
