package cmn

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds raised by the core, mirroring SPEC_FULL.md §5's error-kind
// table. Each kind is a distinct sentinel checkable with errors.Is; the
// constructors below wrap an optional underlying cause with errors.Wrap so
// the original stack is preserved for the caller.
type Kind int

const (
	KindInvalidParameter Kind = iota
	KindIO
	KindNotFound
	KindCapacityExceeded
	KindCapabilityMissing
	KindJoinPrecondition
	KindIterationState
	KindSerialization
)

func (k Kind) String() string {
	switch k {
	case KindInvalidParameter:
		return "invalid-parameter"
	case KindIO:
		return "io"
	case KindNotFound:
		return "not-found"
	case KindCapacityExceeded:
		return "capacity-exceeded"
	case KindCapabilityMissing:
		return "capability-missing"
	case KindJoinPrecondition:
		return "join-precondition"
	case KindIterationState:
		return "iteration-state"
	case KindSerialization:
		return "serialization"
	default:
		return "unknown"
	}
}

// Error is the concrete type behind every error this module raises.
type Error struct {
	Kind Kind
	Op   string // what was being attempted, e.g. "blockfile.Select"
	msg  string
	err  error // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// Is reports whether target is an *Error with the same Kind, so callers can
// do errors.Is(err, cmn.NewNotFoundError("", "")) or compare against one of
// the Is* helpers below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, op, msg string, cause error) *Error {
	var err error
	if cause != nil {
		err = errors.Wrap(cause, msg)
	}
	return &Error{Kind: kind, Op: op, msg: msg, err: err}
}

func NewInvalidParameterError(op, msg string) error {
	return newError(KindInvalidParameter, op, msg, nil)
}

func NewIOError(op, msg string, cause error) error {
	return newError(KindIO, op, msg, cause)
}

func NewNotFoundError(op, msg string) error {
	return newError(KindNotFound, op, msg, nil)
}

func NewCapacityExceededError(op, msg string) error {
	return newError(KindCapacityExceeded, op, msg, nil)
}

func NewCapabilityMissingError(op, msg string) error {
	return newError(KindCapabilityMissing, op, msg, nil)
}

func NewJoinPreconditionError(op, msg string) error {
	return newError(KindJoinPrecondition, op, msg, nil)
}

func NewIterationStateError(op, msg string) error {
	return newError(KindIterationState, op, msg, nil)
}

func NewSerializationError(op, msg string, cause error) error {
	return newError(KindSerialization, op, msg, cause)
}

// IsKind reports whether err (or any error in its chain) is a *cmn.Error of
// the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
