package verifier

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific verifier Error.
const (
	// ErrInvalidScalar indicates a private key scalar that is zero or not
	// less than the secp256k1 group order.
	ErrInvalidScalar = ErrorKind("ErrInvalidScalar")

	// ErrInvalidAddress indicates an address string that is not a valid
	// base58check encoded pay-to-pubkey-hash address.  This covers invalid
	// characters, bad checksums, unexpected versions and payload lengths.
	ErrInvalidAddress = ErrorKind("ErrInvalidAddress")

	// ErrAddressMismatch indicates a candidate whose derived addresses do
	// not match the expected address.  It is only produced by Result.Err.
	ErrAddressMismatch = ErrorKind("ErrAddressMismatch")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies a verifier error.
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
