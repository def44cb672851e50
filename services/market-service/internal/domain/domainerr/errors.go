// Package domainerr holds the error taxonomy shared by the market domain.
package domainerr

import "errors"

// Kind classifies a domain failure
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindForbidden
	KindInvalidState
	KindInvalidArgument
	KindConflict
	KindBusy
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindInvalidState:
		return "invalid_state"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindConflict:
		return "conflict"
	case KindBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Message is the stable user-facing text for the kind
func (k Kind) Message() string {
	switch k {
	case KindNotFound:
		return "the requested resource does not exist"
	case KindForbidden:
		return "you are not allowed to perform this action"
	case KindInvalidState:
		return "the action is not allowed in the current state"
	case KindInvalidArgument:
		return "the request contains invalid values"
	case KindConflict:
		return "the request conflicts with existing data"
	case KindBusy:
		return "the resource is busy, please retry"
	default:
		return "internal error"
	}
}

// Error is a classified domain error
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.Message()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes every error of a kind match the bare kind sentinel
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// New declares a domain error of the given kind
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap classifies an underlying error without losing it
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Kind sentinels: errors.Is(err, domainerr.ErrNotFound) matches any not-found error.
var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrInvalidState    = &Error{Kind: KindInvalidState}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrBusy            = &Error{Kind: KindBusy}
)

// KindOf returns the kind of the first domain error in err's chain
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether the caller may retry automatically
func IsRetryable(err error) bool {
	return KindOf(err) == KindBusy
}
