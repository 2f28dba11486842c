package affine

import (
	"fmt"
	"strings"
)

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific affine model Error.
const (
	// ErrNonInvertibleMultiplier indicates a backward step was attempted
	// through a lane whose multiplier is even and therefore has no inverse
	// modulo 256.
	ErrNonInvertibleMultiplier = ErrorKind("ErrNonInvertibleMultiplier")

	// ErrNoCalibrationSolution indicates that at least one lane's drift
	// congruence has no solution, meaning the two keys are inconsistent with
	// the supplied multipliers.
	ErrNoCalibrationSolution = ErrorKind("ErrNoCalibrationSolution")

	// ErrAmbiguousCalibration indicates that at least one lane admits more
	// than one drift value.  The accompanying AmbiguityError carries every
	// candidate so the caller can disambiguate externally.
	ErrAmbiguousCalibration = ErrorKind("ErrAmbiguousCalibration")

	// ErrMissingDrift indicates the drift table has no entry for a requested
	// block, lane or occurrence.
	ErrMissingDrift = ErrorKind("ErrMissingDrift")

	// ErrInvalidStepCount indicates a calibration was requested over zero
	// steps.
	ErrInvalidStepCount = ErrorKind("ErrInvalidStepCount")

	// ErrInvalidCalibration indicates a calibration set or artifact is
	// malformed, for example a value outside [0, 256) or a multiplier vector
	// of the wrong length.
	ErrInvalidCalibration = ErrorKind("ErrInvalidCalibration")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies an affine model error.
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

// AmbiguityError is returned when a calibration has lanes with several
// consistent drift values.  Lanes lists only the lanes that are not uniquely
// determined, each with its full candidate set.
type AmbiguityError struct {
	Lanes []LaneSolution
}

// Error satisfies the error interface and prints human-readable errors.
func (e *AmbiguityError) Error() string {
	parts := make([]string, 0, len(e.Lanes))
	for _, l := range e.Lanes {
		parts = append(parts, fmt.Sprintf("lane %d: %d candidates (%s)",
			l.Lane, len(l.Candidates), l.Kind))
	}
	return "ambiguous calibration: " + strings.Join(parts, ", ")
}

// Unwrap returns ErrAmbiguousCalibration.
func (e *AmbiguityError) Unwrap() error {
	return ErrAmbiguousCalibration
}
