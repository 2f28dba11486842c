package keystore

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific keystore Error.
const (
	// ErrMalformedRow indicates a datastore row that cannot be used: a
	// missing or out of range puzzle index, an unparsable key, a key outside
	// its puzzle's range, an invalid address or a duplicate index.
	ErrMalformedRow = ErrorKind("ErrMalformedRow")

	// ErrStore indicates a failure of the underlying storage, including a
	// corrupted stored row.
	ErrStore = ErrorKind("ErrStore")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies a keystore error.
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
