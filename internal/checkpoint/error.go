package checkpoint

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific checkpoint Error.
const (
	// ErrWriterConflict indicates an attempt to acquire a task record that
	// already has a writer, or to write through a lease that is no longer
	// current.
	ErrWriterConflict = ErrorKind("ErrWriterConflict")

	// ErrCorruptRecord indicates a stored record that could not be decoded
	// or a corrupted underlying database.
	ErrCorruptRecord = ErrorKind("ErrCorruptRecord")

	// ErrStore indicates a failure of the underlying storage.
	ErrStore = ErrorKind("ErrStore")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies a checkpoint store error.  RawErr holds the underlying
// storage error, if any.
type Error struct {
	Err         error
	Description string
	RawErr      error
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
