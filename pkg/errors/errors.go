// Package errors defines the error taxonomy shared by every subsystem of the
// agent mesh core: storage, graph, transport, and memory all report failures
// through this package's Kind rather than ad-hoc sentinel values, so callers
// can branch on errors.Is / the Kind of a failure regardless of which
// subsystem produced it.
package errors

import "fmt"

// Kind classifies why an operation failed. It is deliberately small and
// stable; new failure modes should map onto one of these rather than grow
// the set.
type Kind uint8

const (
	// KindUnknown is never set by New or Wrap; GetKind reports it for an error
	// that carries no Kind, and it catches zero-value Kind misuse.
	KindUnknown Kind = iota
	KindNotFound
	KindCapacity
	KindConflict
	KindInvalid
	KindCrypto
	KindTransport
	KindStorage
	KindTimeout
	KindCancelled
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindCapacity:
		return "capacity"
	case KindConflict:
		return "conflict"
	case KindInvalid:
		return "invalid"
	case KindCrypto:
		return "crypto"
	case KindTransport:
		return "transport"
	case KindStorage:
		return "storage"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Error is the concrete error type produced by this codebase. Op names the
// failing operation (e.g. "storage.put_action") for log correlation; Err, if
// set, is the underlying cause and participates in errors.Is/As via Unwrap.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error whose cause is a plain error carrying msg.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Err: fmtError(msg)}
}

// Wrap attaches Kind and Op to an existing error. Returns nil if err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == kind {
				return true
			}
			err = e.Err
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// GetKind extracts the Kind from err, or KindUnknown if err does not carry one.
func GetKind(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return KindUnknown
		}
		err = u.Unwrap()
	}
	return KindUnknown
}

type simpleError string

func (s simpleError) Error() string { return string(s) }

func fmtError(msg string) error { return simpleError(msg) }
