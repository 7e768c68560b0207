package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can branch on it without parsing messages.
type Kind string

const (
	KindIO                    Kind = "IO_ERROR"
	KindNotAReparsePoint      Kind = "NOT_A_REPARSE_POINT"
	KindUnsupportedReparseTag Kind = "UNSUPPORTED_REPARSE_TAG"
	KindMissingDirectorySet   Kind = "MISSING_DIRECTORY_SET"
	KindDestinationExists     Kind = "DESTINATION_EXISTS"
	KindInsufficientSpace     Kind = "INSUFFICIENT_SPACE"
	KindSizeCalculation       Kind = "SIZE_CALCULATION_ERROR"
	KindRelocationInProgress  Kind = "RELOCATION_IN_PROGRESS"
	KindLinkTargetImmutable   Kind = "LINK_TARGET_IMMUTABLE"
)

// Sentinels for errors.Is. Matching is by Kind only.
var (
	ErrIO                    = &Error{Kind: KindIO}
	ErrNotAReparsePoint      = &Error{Kind: KindNotAReparsePoint}
	ErrUnsupportedReparseTag = &Error{Kind: KindUnsupportedReparseTag}
	ErrMissingDirectorySet   = &Error{Kind: KindMissingDirectorySet}
	ErrDestinationExists     = &Error{Kind: KindDestinationExists}
	ErrInsufficientSpace     = &Error{Kind: KindInsufficientSpace}
	ErrSizeCalculation       = &Error{Kind: KindSizeCalculation}
	ErrRelocationInProgress  = &Error{Kind: KindRelocationInProgress}
	ErrLinkTargetImmutable   = &Error{Kind: KindLinkTargetImmutable}
)

// Error is a failure attached to a path.
type Error struct {
	Kind    Kind
	Path    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Path)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an error without a cause.
func New(kind Kind, path, message string) *Error {
	return &Error{Kind: kind, Path: path, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(kind Kind, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and path to err. A nil err stays nil.
func Wrap(err error, kind Kind, path, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Path: path, Message: message, Err: err}
}

// IO wraps a raw filesystem failure, keeping its message.
func IO(err error, path string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindIO, Path: path, Message: "filesystem access failed", Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
