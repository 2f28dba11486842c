package bruteforce

import (
	"fmt"

	"github.com/mahdiidarabi/keyladder/internal/checkpoint"
)

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific search Error.
const (
	// ErrInvalidRange indicates a search range that cannot be partitioned:
	// low greater than high, a non-positive bound, a bound wider than 256
	// bits or fewer than one worker.
	ErrInvalidRange = ErrorKind("ErrInvalidRange")

	// ErrCheckpointWrite indicates progress could not be persisted after
	// every retry.  The scan continues in memory.
	ErrCheckpointWrite = ErrorKind("ErrCheckpointWrite")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies a search error.
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

// CheckpointWriteError records a store write that failed after every retry.
// It matches both ErrCheckpointWrite and the last store error.
type CheckpointWriteError struct {
	Task     checkpoint.TaskID
	Attempts int
	Err      error
}

// Error satisfies the error interface and prints human-readable errors.
func (e *CheckpointWriteError) Error() string {
	return fmt.Sprintf("checkpoint write for task %s failed after %d "+
		"attempts: %v", e.Task, e.Attempts, e.Err)
}

// Unwrap returns ErrCheckpointWrite and the underlying store error.
func (e *CheckpointWriteError) Unwrap() []error {
	return []error{ErrCheckpointWrite, e.Err}
}
