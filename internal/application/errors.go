package application

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/courtboard/internal/guard"
)

// Reason is the stable code attached to every rejected request.
type Reason string

const (
	ReasonDuplicatePlaying     Reason = "duplicate-playing"
	ReasonDuplicateQueued      Reason = "duplicate-queued"
	ReasonPriorityViolation    Reason = "priority-violation"
	ReasonTargetUnavailable    Reason = "target-unavailable"
	ReasonActiveSessionPresent Reason = "active-session-present"
	ReasonInvalidInput         Reason = "invalid-input"
	ReasonNotOccupied          Reason = "not-occupied"
	ReasonCourtAvailable       Reason = "court-available"
	ReasonNotFound             Reason = "not-found"
	ReasonWriteRefused         Reason = "write-refused"
	ReasonStaleSnapshot        Reason = "stale-snapshot"
	ReasonUnexpected           Reason = "unexpected"
)

// RejectionError is a typed refusal. Court and Position locate the conflict
// when relevant (Position is 1-based).
type RejectionError struct {
	Reason   Reason
	Detail   string
	Court    int
	Position int
}

// Error implements the error interface.
func (e *RejectionError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("application: ")
	b.WriteString(string(e.Reason))
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Court > 0 {
		fmt.Fprintf(&b, " (court %d)", e.Court)
	}
	if e.Position > 0 {
		fmt.Fprintf(&b, " (position %d)", e.Position)
	}
	return b.String()
}

// Is matches any RejectionError with the same reason, so callers can use
// errors.Is(err, ErrPriorityViolation).
func (e *RejectionError) Is(target error) bool {
	t, ok := target.(*RejectionError)
	return ok && e != nil && t.Reason == e.Reason
}

var (
	ErrDuplicatePlaying     = &RejectionError{Reason: ReasonDuplicatePlaying}
	ErrDuplicateQueued      = &RejectionError{Reason: ReasonDuplicateQueued}
	ErrPriorityViolation    = &RejectionError{Reason: ReasonPriorityViolation}
	ErrTargetUnavailable    = &RejectionError{Reason: ReasonTargetUnavailable}
	ErrActiveSessionPresent = &RejectionError{Reason: ReasonActiveSessionPresent}
	ErrInvalidInput         = &RejectionError{Reason: ReasonInvalidInput}
	ErrNotOccupied          = &RejectionError{Reason: ReasonNotOccupied}
	ErrCourtAvailable       = &RejectionError{Reason: ReasonCourtAvailable}
	// ErrNotFound is returned when the requested waitlist entry or block does not exist.
	ErrNotFound      = &RejectionError{Reason: ReasonNotFound}
	ErrWriteRefused  = &RejectionError{Reason: ReasonWriteRefused}
	ErrStaleSnapshot = &RejectionError{Reason: ReasonStaleSnapshot}
)

func reject(reason Reason, detail string) *RejectionError {
	return &RejectionError{Reason: reason, Detail: detail}
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// Is lets validation failures satisfy errors.Is(err, ErrInvalidInput).
func (v *ValidationError) Is(target error) bool {
	t, ok := target.(*RejectionError)
	return ok && t.Reason == ReasonInvalidInput
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries into the receiver.
func (v *ValidationError) merge(fields map[string]string) {
	for field, msg := range fields {
		v.add(field, msg)
	}
}

// ReasonOf returns the stable reason code for err.
func ReasonOf(err error) Reason {
	if err == nil {
		return ""
	}
	var rErr *RejectionError
	if errors.As(err, &rErr) {
		return rErr.Reason
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return ReasonInvalidInput
	}
	switch {
	case errors.Is(err, guard.ErrWriteRefused):
		return ReasonWriteRefused
	case errors.Is(err, guard.ErrStaleSnapshot):
		return ReasonStaleSnapshot
	}
	return ReasonUnexpected
}

// mapGuardError turns guard refusals into rejections; other errors pass through.
func mapGuardError(err error) error {
	switch {
	case errors.Is(err, guard.ErrWriteRefused):
		return reject(ReasonWriteRefused, "a newer snapshot with live sessions is stored; reload and retry")
	case errors.Is(err, guard.ErrStaleSnapshot):
		return reject(ReasonStaleSnapshot, "snapshot changed since it was read; reload and retry")
	}
	return err
}
