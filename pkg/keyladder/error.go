package keyladder

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific client Error.
const (
	// ErrNoKeySource indicates an operation that reads known keys was
	// called on a client without a key source.
	ErrNoKeySource = ErrorKind("ErrNoKeySource")

	// ErrKeyUnavailable indicates the key source has no row for an index,
	// or the row lacks the solved key or the address the operation needs.
	ErrKeyUnavailable = ErrorKind("ErrKeyUnavailable")

	// ErrKeyTooWide indicates a key with bytes above the modelled lanes
	// where the model must reproduce the whole key.
	ErrKeyTooWide = ErrorKind("ErrKeyTooWide")

	// ErrModelMismatch indicates a calibration set whose lane count differs
	// from the model configuration.
	ErrModelMismatch = ErrorKind("ErrModelMismatch")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies a client error.
type Error struct {
	Err         error
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// makeError creates an Error given a set of arguments.
func makeError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}
