package handler

import (
	"errors"
	"fmt"
)

// ///////////////////////////////////////////////
// Error Taxonomy
// ///////////////////////////////////////////////

// ErrorKind classifies a [HandleError].
type ErrorKind uint8

const (
	// AsyncRequired means a suspending callback was bound but the blocking
	// entry point was used. Returned before any registration.
	AsyncRequired ErrorKind = iota + 1
	// RegisterFailed means the registration primitive failed for some
	// signal. Returned before any worker starts.
	RegisterFailed
	// Other is reserved for caller-defined escalation.
	Other
)

func (k ErrorKind) String() string {
	switch k {
	case AsyncRequired:
		return "async required"
	case RegisterFailed:
		return "register failed"
	case Other:
		return "other"
	default:
		return fmt.Sprintf("ErrorKind(%d)", uint8(k))
	}
}

// Sentinels matched by [HandleError.Is].
var (
	ErrAsyncRequired  = errors.New("suspending callback requires HandleAsync")
	ErrRegisterFailed = errors.New("signal registration failed")
	ErrOther          = errors.New("handler error")
)

// ErrHandlerUsed is wrapped in an [Other] error when a [Handler] is run a
// second time.
var ErrHandlerUsed = errors.New("handler already used")

// HandleError is returned by [Handler.Handle] and [Handler.HandleAsync].
// Callback panics are never converted into a HandleError.
type HandleError struct {
	// Kind classifies the failure.
	Kind ErrorKind
	// Err is the underlying cause, if any.
	Err error
}

// NewOtherError wraps err as a caller-defined [Other] failure.
func NewOtherError(err error) *HandleError {
	return &HandleError{Kind: Other, Err: err}
}

func (e *HandleError) Error() string {
	var base error
	switch e.Kind {
	case AsyncRequired:
		base = ErrAsyncRequired
	case RegisterFailed:
		base = ErrRegisterFailed
	default:
		base = ErrOther
	}
	if e.Err == nil {
		return "handler: " + base.Error()
	}
	return "handler: " + base.Error() + ": " + e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *HandleError) Unwrap() error { return e.Err }

// Is matches the sentinel for e's kind.
func (e *HandleError) Is(target error) bool {
	switch target {
	case ErrAsyncRequired:
		return e.Kind == AsyncRequired
	case ErrRegisterFailed:
		return e.Kind == RegisterFailed
	case ErrOther:
		return e.Kind == Other
	}
	return false
}
