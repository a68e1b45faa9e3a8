// Package common defines shared constants and the closed error taxonomy used
// across the groupware server. Callers should use errors.Is against the
// sentinels below to branch on the kind of failure; the concrete *Error value
// carries the diagnostic context (tenant, user, folder, object).
package common

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure. The set is closed: every error leaving a
// component boundary is translated into one of these kinds.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindConcurrentModification
	KindTransient
	KindMalformed
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindConcurrentModification:
		return "concurrent modification"
	case KindTransient:
		return "transient store failure"
	case KindMalformed:
		return "malformed input"
	case KindNotification:
		return "notification failed"
	default:
		return "internal error"
	}
}

var (
	// Repository-level errors.
	ErrorNotFound  = &Error{Kind: KindNotFound}
	ErrorTransient = &Error{Kind: KindTransient}

	// Service-level errors.
	ErrorInternal      = &Error{Kind: KindInternal}
	ErrorConflict      = &Error{Kind: KindConflict}
	ErrVersionConflict = &Error{Kind: KindConcurrentModification}

	// Validation errors, raised before any store access.
	ErrorMalformed = &Error{Kind: KindMalformed}

	// ErrNotificationFailed marks a mutation that committed but whose event
	// could not be delivered.
	ErrNotificationFailed = &Error{Kind: KindNotification}

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Error is the single error type of the taxonomy. Zero-valued context fields
// are omitted from the message.
type Error struct {
	Kind      Kind
	Op        string
	ContextID int
	UserID    int
	FolderID  int
	ObjectID  int
	Reason    string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}

	var ctx []string
	if e.ContextID != 0 {
		ctx = append(ctx, fmt.Sprintf("context=%d", e.ContextID))
	}
	if e.UserID != 0 {
		ctx = append(ctx, fmt.Sprintf("user=%d", e.UserID))
	}
	if e.FolderID != 0 {
		ctx = append(ctx, fmt.Sprintf("folder=%d", e.FolderID))
	}
	if e.ObjectID != 0 {
		ctx = append(ctx, fmt.Sprintf("object=%d", e.ObjectID))
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, ", "))
		b.WriteString(")")
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the package sentinels work with
// errors.Is regardless of the context fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf reports the kind of err. Errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// NotFound, Conflict, Malformed and friends build a taxonomy error for op.

func NotFound(op, reason string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Reason: reason}
}

func Conflict(op, reason string) *Error {
	return &Error{Kind: KindConflict, Op: op, Reason: reason}
}

func Malformed(op, reason string) *Error {
	return &Error{Kind: KindMalformed, Op: op, Reason: reason}
}

func ConcurrentModification(op string) *Error {
	return &Error{Kind: KindConcurrentModification, Op: op, Reason: "object was modified by another writer"}
}

// With returns a copy of e carrying the given diagnostic context.
func (e *Error) With(contextID, userID, folderID, objectID int) *Error {
	c := *e
	c.ContextID, c.UserID, c.FolderID, c.ObjectID = contextID, userID, folderID, objectID
	return &c
}

// Annotate attaches op and context to err. Taxonomy errors keep their kind and
// only fill context fields that are still empty; anything else is wrapped as
// internal.
func Annotate(err error, op string, contextID, userID, folderID, objectID int) error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		return &Error{Kind: KindInternal, Op: op, ContextID: contextID, UserID: userID, FolderID: folderID, ObjectID: objectID, Err: err}
	}
	c := *e
	if c.Op == "" {
		c.Op = op
	}
	if c.ContextID == 0 {
		c.ContextID = contextID
	}
	if c.UserID == 0 {
		c.UserID = userID
	}
	if c.FolderID == 0 {
		c.FolderID = folderID
	}
	if c.ObjectID == 0 {
		c.ObjectID = objectID
	}
	return &c
}
