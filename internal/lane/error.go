package lane

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

const (
	// ErrMalformedLaneVector indicates a lane vector whose length does not
	// match the codec's lane count.  Short vectors are never zero padded.
	ErrMalformedLaneVector = ErrorKind("ErrMalformedLaneVector")

	// ErrInvalidLaneCount indicates a codec was requested with a lane count
	// that does not fit in a key.
	ErrInvalidLaneCount = ErrorKind("ErrInvalidLaneCount")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies a lane codec error.
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

// MalformedVectorError returns an ErrMalformedLaneVector error for callers
// outside this package that validate lane vectors against another length.
func MalformedVectorError(desc string) error {
	return makeError(ErrMalformedLaneVector, desc)
}
