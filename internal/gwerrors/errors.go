// Package gwerrors declares the gateway's error taxonomy, the codes an
// HTTP front end would map onto status codes; the package itself does no
// status mapping.
package gwerrors

import "errors"

// Code classifies an error for the purposes of the gateway's error
// propagation policy.
type Code int

const (
	// Unknown is the zero value: an error not produced by this package.
	Unknown Code = iota
	// NotFound: no such account/bucket/object/volume/OID.
	NotFound
	// AlreadyExists: bucket create on existing name, or a create-
	// exclusive OID that is already present.
	AlreadyExists
	// Invalid: malformed request, size mismatch.
	Invalid
	// NoSpace: probe exhausted, or the extent allocator cannot satisfy
	// a request.
	NoSpace
	// Conflict: slot taken by a different name (recovered locally by
	// continuing to probe; callers outside the probe loop should not
	// normally observe this).
	Conflict
	// BackendIO: the ObjectStore propagated a failure.
	BackendIO
	// Corrupt: magic mismatch, impossible tree depth, length
	// inconsistency.
	Corrupt
)

func (c Code) String() string {
	switch c {
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case Invalid:
		return "Invalid"
	case NoSpace:
		return "NoSpace"
	case Conflict:
		return "Conflict"
	case BackendIO:
		return "BackendIO"
	case Corrupt:
		return "Corrupt"
	default:
		return "Unknown"
	}
}

type codedError struct {
	code Code
	msg  string
	err  error
}

func (e *codedError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *codedError) Unwrap() error { return e.err }

// New returns an error of the given code with a fixed message.
func New(code Code, msg string) error {
	return &codedError{code: code, msg: msg}
}

// Wrap attaches code to err, preserving err as the wrapped cause so
// errors.Is/errors.As against err still work.
func Wrap(code Code, msg string, err error) error {
	return &codedError{code: code, msg: msg, err: err}
}

// CodeOf returns the Code attached to err via New or Wrap, or Unknown if
// err was not produced by this package.
func CodeOf(err error) Code {
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	return Unknown
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
