package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error by how the caller is expected to react to it.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindDuplicateKey
	KindNotFound
	KindCorruption
	KindIO
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindDuplicateKey:
		return "duplicate key"
	case KindNotFound:
		return "not found"
	case KindCorruption:
		return "corruption"
	case KindIO:
		return "io"
	case KindInvalidArgument:
		return "invalid argument"
	default:
		return "unknown"
	}
}

// Error is the structured error returned by every storage layer.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "records.GetRecord"
	Msg  string
	Err  error // underlying cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind so that errors.Is(err, &Error{Kind: KindNotFound}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// New creates an error of the given kind.
func New(kind Kind, op, msg string, cause error) *Error {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &Error{Kind: kind, Op: op, Msg: msg, Err: cause}
}

// DuplicateKey reports an insert of a key that is already indexed.
func DuplicateKey(op string, key any) *Error {
	return New(KindDuplicateKey, op, fmt.Sprintf("%s %v", MsgDuplicateKey, key), nil)
}

// NotFound reports an address that does not resolve to a live record or node.
func NotFound(op string, address int64) *Error {
	return New(KindNotFound, op, fmt.Sprintf("address %d %s", address, MsgNotFound), nil)
}

// Corruption reports a violated structural invariant.
func Corruption(op, format string, args ...any) *Error {
	return New(KindCorruption, op, fmt.Sprintf(format, args...), nil)
}

// IO wraps a failure of the underlying storage.
func IO(op string, err error, msg string) *Error {
	return New(KindIO, op, msg, err)
}

// InvalidArgument reports a caller error.
func InvalidArgument(op, format string, args ...any) *Error {
	return New(KindInvalidArgument, op, fmt.Sprintf(format, args...), nil)
}

func kindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsDuplicateKey reports whether err is a duplicate key error.
func IsDuplicateKey(err error) bool { return kindOf(err) == KindDuplicateKey }

// IsNotFound reports whether err is a not found error.
func IsNotFound(err error) bool { return kindOf(err) == KindNotFound }

// IsCorruption reports whether err is a corruption error.
func IsCorruption(err error) bool { return kindOf(err) == KindCorruption }

// IsIO reports whether err is an I/O error.
func IsIO(err error) bool { return kindOf(err) == KindIO }

// IsInvalidArgument reports whether err is an invalid argument error.
func IsInvalidArgument(err error) bool { return kindOf(err) == KindInvalidArgument }
