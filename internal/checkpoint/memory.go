package checkpoint

import (
	"sort"
	"sync"
	"time"

	"github.com/mahdiidarabi/keyladder/internal/keyspace"
)

// Memory is a Store that keeps records in memory.  It is used by tests and
// by searches that do not need to survive a restart.
type Memory struct {
	leases leaseTable

	mtx     sync.RWMutex
	tasks   map[TaskID]Progress
	puzzles map[uint]PuzzleState
}

// Ensure Memory implements the Store interface.
var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tasks:   make(map[TaskID]Progress),
		puzzles: make(map[uint]PuzzleState),
	}
}

// Acquire grants exclusive write access to the task record.
func (m *Memory) Acquire(id TaskID) (*Lease, error) {
	return m.leases.acquire(id)
}

// Release gives up a lease.
func (m *Memory) Release(lease *Lease) error {
	m.leases.release(lease)
	return nil
}

// Save persists task progress through a current lease.
func (m *Memory) Save(lease *Lease, p *Progress) error {
	if err := m.leases.check(lease, p.ID); err != nil {
		return err
	}
	rec := *p
	rec.UpdatedAt = time.Now()
	m.mtx.Lock()
	m.tasks[p.ID] = rec
	m.mtx.Unlock()
	return nil
}

// Load returns the stored progress of a task, or nil when there is none.
func (m *Memory) Load(id TaskID) (*Progress, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	p, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) puzzleState(puzzle uint) PuzzleState {
	s, ok := m.puzzles[puzzle]
	if !ok {
		return PuzzleState{Puzzle: puzzle, Status: StatusPending}
	}
	return s
}

// Begin moves a puzzle to in progress unless it is already solved.
func (m *Memory) Begin(puzzle uint) (*PuzzleState, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	s := m.puzzleState(puzzle)
	if s.Status != StatusSolved {
		s.Status = StatusInProgress
		s.UpdatedAt = time.Now()
		m.puzzles[puzzle] = s
	}
	return &s, nil
}

// SetStatus records a puzzle status.
func (m *Memory) SetStatus(puzzle uint, status Status) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	s := m.puzzleState(puzzle)
	s.Status = nextStatus(s.Status, status)
	s.UpdatedAt = time.Now()
	m.puzzles[puzzle] = s
	return nil
}

// MarkSolved records the key that solved the puzzle.
func (m *Memory) MarkSolved(puzzle uint, key keyspace.Key) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	s := m.puzzleState(puzzle)
	s.Status = StatusSolved
	s.FoundKey = &key
	s.UpdatedAt = time.Now()
	m.puzzles[puzzle] = s
	return nil
}

// Snapshot returns the puzzle state and every task record.
func (m *Memory) Snapshot(puzzle uint) (*Snapshot, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	snap := &Snapshot{PuzzleState: m.puzzleState(puzzle)}
	for id, p := range m.tasks {
		if id.Puzzle == puzzle {
			snap.Tasks = append(snap.Tasks, p)
		}
	}
	sort.Slice(snap.Tasks, func(i, j int) bool {
		return snap.Tasks[i].ID.Task < snap.Tasks[j].ID.Task
	})
	return snap, nil
}

// Reset removes every record of a puzzle.
func (m *Memory) Reset(puzzle uint) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	delete(m.puzzles, puzzle)
	for id := range m.tasks {
		if id.Puzzle == puzzle {
			delete(m.tasks, id)
		}
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error {
	return nil
}
