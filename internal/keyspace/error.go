package keyspace

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

const (
	// ErrInvalidKey indicates a key could not be constructed because the
	// input is malformed, negative or wider than 256 bits.
	ErrInvalidKey = ErrorKind("ErrInvalidKey")

	// ErrInvalidIndex indicates a sequence index outside [1, 256].
	ErrInvalidIndex = ErrorKind("ErrInvalidIndex")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies a keyspace related error.
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
