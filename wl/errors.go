package wl

import (
	"errors"
	"fmt"
)

// ConflictError reports an optimistic concurrency failure. Actual carries
// the stream's current highest sequence number so callers can reload and
// retry.
type ConflictError struct {
	Stream   StreamID
	Expected ExpectedVersion
	Actual   uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s: expected %s, stream is at %d", e.Stream, e.Expected, e.Actual)
}

func Conflict(stream StreamID, expected ExpectedVersion, actual uint64) error {
	return &ConflictError{Stream: stream, Expected: expected, Actual: actual}
}

func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}

// DomainError reports a business rule violation. It is permanent for the
// given input and is never retried.
type DomainError struct {
	Rule   string
	Detail string
}

func (e *DomainError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("domain rule violated: %s", e.Rule)
	}
	return fmt.Sprintf("domain rule violated: %s: %s", e.Rule, e.Detail)
}

func Violation(rule string, format string, args ...any) error {
	return &DomainError{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}

func IsDomainError(err error) bool {
	var domain *DomainError
	return errors.As(err, &domain)
}

// UnknownEventTypeError indicates schema drift: a stream contains an event
// type the runtime has no reducer for. Reconstruction aborts rather than
// silently skipping the event.
type UnknownEventTypeError struct {
	Stream StreamID
	Type   EventType
}

func (e *UnknownEventTypeError) Error() string {
	return fmt.Sprintf("no reducer registered for event type %s on stream %s", e.Type, e.Stream)
}

func IsUnknownEventType(err error) bool {
	var unknown *UnknownEventTypeError
	return errors.As(err, &unknown)
}

type StreamNotFoundError struct {
	Stream StreamID
}

func (e *StreamNotFoundError) Error() string {
	return fmt.Sprintf("stream %s does not exist", e.Stream)
}

func IsStreamNotFound(err error) bool {
	var notFound *StreamNotFoundError
	return errors.As(err, &notFound)
}

type CommandNotFoundError struct {
	Command CommandName
}

func (e *CommandNotFoundError) Error() string {
	return fmt.Sprintf("unknown command: %s", e.Command)
}

func UnexpectedCommand(command Command) error {
	return fmt.Errorf("unexpected command %s", CommandNameOf(command))
}
