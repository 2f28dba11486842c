// Package checkpoint persists search progress so an interrupted search can
// resume where it stopped.
//
// Every task record has at most one writer.  A writer obtains a Lease with
// Acquire and passes it to Save; a second Acquire of the same record fails
// with ErrWriterConflict until the lease is released.  Reads (Load and
// Snapshot) never take a lease and are safe at any time.
package checkpoint

import (
	"fmt"
	"sync"

	"github.com/mahdiidarabi/keyladder/internal/keyspace"
)

// Store is the checkpoint persistence interface used by the search
// coordinator.  Implementations must be safe for concurrent use.
type Store interface {
	// Acquire grants exclusive write access to the task record.
	Acquire(id TaskID) (*Lease, error)

	// Release gives up a lease.  Releasing a stale lease is a no-op.
	Release(lease *Lease) error

	// Save persists task progress through a current lease.
	Save(lease *Lease, p *Progress) error

	// Load returns the stored progress of a task, or nil when there is
	// none.
	Load(id TaskID) (*Progress, error)

	// Begin moves a puzzle to in progress unless it is already solved and
	// returns its state after the transition.
	Begin(puzzle uint) (*PuzzleState, error)

	// SetStatus records a puzzle status.  Solved is terminal; attempts to
	// move a solved puzzle to another status are ignored.
	SetStatus(puzzle uint, status Status) error

	// MarkSolved records the key that solved the puzzle.
	MarkSolved(puzzle uint, key keyspace.Key) error

	// Snapshot returns the puzzle state and every task record.
	Snapshot(puzzle uint) (*Snapshot, error)

	// Reset removes every record of a puzzle.
	Reset(puzzle uint) error

	// Close releases the store's resources.
	Close() error
}

// Lease is exclusive write access to one task record.
type Lease struct {
	id    TaskID
	token uint64
}

// ID returns the task the lease covers.
func (l *Lease) ID() TaskID {
	return l.id
}

// leaseTable tracks the current writer of each task record.
type leaseTable struct {
	mtx  sync.Mutex
	next uint64
	held map[TaskID]uint64
}

func (t *leaseTable) acquire(id TaskID) (*Lease, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if _, ok := t.held[id]; ok {
		str := fmt.Sprintf("task %s already has a writer", id)
		return nil, makeError(ErrWriterConflict, str)
	}
	if t.held == nil {
		t.held = make(map[TaskID]uint64)
	}
	t.next++
	t.held[id] = t.next
	return &Lease{id: id, token: t.next}, nil
}

func (t *leaseTable) release(l *Lease) {
	t.mtx.Lock()
	if token, ok := t.held[l.id]; ok && token == l.token {
		delete(t.held, l.id)
	}
	t.mtx.Unlock()
}

func (t *leaseTable) check(l *Lease, id TaskID) error {
	if l == nil {
		str := fmt.Sprintf("write to task %s without a lease", id)
		return makeError(ErrWriterConflict, str)
	}
	if l.id != id {
		str := fmt.Sprintf("lease for task %s used to write task %s", l.id, id)
		return makeError(ErrWriterConflict, str)
	}
	t.mtx.Lock()
	token, ok := t.held[id]
	t.mtx.Unlock()
	if !ok || token != l.token {
		str := fmt.Sprintf("lease for task %s is no longer current", id)
		return makeError(ErrWriterConflict, str)
	}
	return nil
}

// nextStatus applies the solved-is-terminal rule.
func nextStatus(current, requested Status) Status {
	if current == StatusSolved {
		return StatusSolved
	}
	return requested
}
