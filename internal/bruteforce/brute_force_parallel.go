// Package bruteforce scans a key range for the key whose address matches a
// target, splitting the range over concurrent workers and checkpointing
// progress so an interrupted search resumes where it stopped.
package bruteforce

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mahdiidarabi/keyladder/internal/checkpoint"
	"github.com/mahdiidarabi/keyladder/internal/keyspace"
	"github.com/mahdiidarabi/keyladder/internal/verifier"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultCheckpointInterval is the default number of keys a worker
	// checks between checkpoints.
	DefaultCheckpointInterval = 100000

	// DefaultRetryAttempts is the default number of attempts for a store
	// write.
	DefaultRetryAttempts = 5

	// DefaultRetryBackoff is the default wait after the first failed store
	// write.  It doubles after each further failure.
	DefaultRetryBackoff = 100 * time.Millisecond

	// DefaultLogInterval is the default period of the progress log.
	DefaultLogInterval = 10 * time.Second
)

// Config configures a Coordinator.  Zero values select the defaults.
type Config struct {
	// Verifier checks candidates.  Defaults to the secp256k1 backend.
	Verifier *verifier.Verifier

	// Store persists checkpoints.  Defaults to an in-memory store.
	Store checkpoint.Store

	CheckpointInterval uint64
	RetryAttempts      int
	RetryBackoff       time.Duration

	// LogInterval is the period of the progress log.  A negative value
	// disables it.
	LogInterval time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Verifier:           verifier.New().WithBackend(verifier.Secp256k1Backend{}),
		Store:              checkpoint.NewMemory(),
		CheckpointInterval: DefaultCheckpointInterval,
		RetryAttempts:      DefaultRetryAttempts,
		RetryBackoff:       DefaultRetryBackoff,
		LogInterval:        DefaultLogInterval,
	}
}

// Coordinator runs searches.  It is safe for concurrent use, although
// Snapshot only reports the most recently started search.
type Coordinator struct {
	cfg    Config
	active atomic.Pointer[searchState]
}

// New returns a coordinator for cfg.
func New(cfg Config) *Coordinator {
	def := DefaultConfig()
	if cfg.Verifier == nil {
		cfg.Verifier = def.Verifier
	}
	if cfg.Store == nil {
		cfg.Store = def.Store
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = def.CheckpointInterval
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = def.RetryAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	if cfg.LogInterval == 0 {
		cfg.LogInterval = def.LogInterval
	}
	return &Coordinator{cfg: cfg}
}

// Store returns the checkpoint store in use.
func (c *Coordinator) Store() checkpoint.Store {
	return c.cfg.Store
}

// Stats is a point in time view of a search.
type Stats struct {
	Puzzle  uint
	Running bool
	Found   bool

	// Checked counts keys verified by this run.  Searched adds the keys
	// covered by resumed checkpoints.
	Checked  uint64
	Searched uint64

	// Remaining is the number of keys not yet searched.
	Remaining *big.Int

	Elapsed time.Duration

	// Rate is keys checked per second by this run.  ETA is the time to
	// exhaust the remaining keys at that rate, or zero when unknown.
	Rate float64
	ETA  time.Duration
}

// TaskOutcome is the result of one task.
type TaskOutcome struct {
	Task     Task
	Status   checkpoint.Status
	Checked  uint64
	Searched uint64
	Rate     float64
}

// Outcome is the result of a search.  Solved and exhausted are both normal
// outcomes; paused means the search was cancelled and can be resumed.
type Outcome struct {
	Stats

	Target   string
	Status   checkpoint.Status
	Key      *keyspace.Key
	Encoding verifier.Encoding
	Tasks    []TaskOutcome

	// CheckpointErrors lists store writes that failed after every retry.
	// Each matches ErrCheckpointWrite.
	CheckpointErrors []error
}

// searchState is the shared state of a running search.
type searchState struct {
	puzzle  uint
	target  string
	total   *big.Int
	tasks   []*taskState
	started time.Time

	found    atomic.Bool
	finished atomic.Int64

	mtx      sync.Mutex
	key      *keyspace.Key
	enc      verifier.Encoding
	ckptErrs []error
}

func newSearchState(puzzle uint, target string, low, high *big.Int,
	tasks []Task) *searchState {

	total := new(big.Int).Sub(high, low)
	total.Add(total, big.NewInt(1))
	s := &searchState{
		puzzle:  puzzle,
		target:  target,
		total:   total,
		tasks:   make([]*taskState, len(tasks)),
		started: time.Now(),
	}
	for i := range tasks {
		tasks[i].Target = target
		s.tasks[i] = &taskState{task: tasks[i]}
		s.tasks[i].setStatus(checkpoint.StatusPending)
	}
	return s
}

// solve records the first match and marks the puzzle solved in the store.
// Later matches are ignored.
func (s *searchState) solve(c *Coordinator, id checkpoint.TaskID,
	key keyspace.Key, enc verifier.Encoding) {

	if !s.found.CompareAndSwap(false, true) {
		return
	}
	s.mtx.Lock()
	s.key = &key
	s.enc = enc
	s.mtx.Unlock()

	log.Infof("Found key %s for puzzle %d (%s address %s)", key.Hex(),
		s.puzzle, enc, s.target)
	desc := fmt.Sprintf("solution record of puzzle %d", s.puzzle)
	err := c.retry(desc, func() error {
		return c.cfg.Store.MarkSolved(s.puzzle, key)
	})
	if err != nil {
		s.recordCheckpointErr(&CheckpointWriteError{
			Task:     id,
			Attempts: c.cfg.RetryAttempts,
			Err:      err,
		})
	}
}

func (s *searchState) recordCheckpointErr(err error) {
	s.mtx.Lock()
	s.ckptErrs = append(s.ckptErrs, err)
	s.mtx.Unlock()
}

// elapsed returns the run time, frozen once the search finishes.
func (s *searchState) elapsed() time.Duration {
	if end := s.finished.Load(); end != 0 {
		return time.Duration(end - s.started.UnixNano())
	}
	return time.Since(s.started)
}

// rate returns keys per second, or zero when no time has passed.
func rate(checked uint64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(checked) / elapsed.Seconds()
}

// eta returns the time to check remaining keys at keysPerSec, saturating at
// the largest duration.
func eta(remaining *big.Int, keysPerSec float64) time.Duration {
	if keysPerSec <= 0 || remaining.Sign() <= 0 {
		return 0
	}
	rem, _ := new(big.Float).SetInt(remaining).Float64()
	secs := rem / keysPerSec
	if secs >= float64(math.MaxInt64)/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(secs * float64(time.Second))
}

// stats reads the live counters without locking.
func (s *searchState) stats() Stats {
	var checked, searched uint64
	for _, ts := range s.tasks {
		n := ts.checked.Load()
		checked += n
		searched += n + ts.resumed.Load()
	}
	remaining := new(big.Int).SetUint64(searched)
	remaining.Sub(s.total, remaining)
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}
	elapsed := s.elapsed()
	r := rate(checked, elapsed)
	return Stats{
		Puzzle:    s.puzzle,
		Running:   s.finished.Load() == 0,
		Found:     s.found.Load(),
		Checked:   checked,
		Searched:  searched,
		Remaining: remaining,
		Elapsed:   elapsed,
		Rate:      r,
		ETA:       eta(remaining, r),
	}
}

// Snapshot returns a live view of the most recent search, or the zero Stats
// when no search has started.
func (c *Coordinator) Snapshot() Stats {
	s := c.active.Load()
	if s == nil {
		return Stats{}
	}
	return s.stats()
}

// validateRange rejects bounds that are not valid scalars.
func validateRange(low, high *big.Int) error {
	if low == nil || high == nil {
		return makeError(ErrInvalidRange, "missing range bound")
	}
	if low.Sign() <= 0 {
		str := fmt.Sprintf("range low %s is not positive", low)
		return makeError(ErrInvalidRange, str)
	}
	if high.Cmp(verifier.GroupOrder()) >= 0 {
		str := fmt.Sprintf("range high %s is not less than the group order",
			high.Text(16))
		return makeError(ErrInvalidRange, str)
	}
	return nil
}

// Search scans [low, high] for the key of target using workers concurrent
// tasks.  A workers value of zero or less selects one per CPU.  Progress of
// each task is checkpointed, and a later search of the same puzzle and range
// resumes after the last checkpointed key.  Cancelling ctx pauses the search
// after a final checkpoint.
func (c *Coordinator) Search(ctx context.Context, puzzle uint, target string,
	low, high *big.Int, workers int) (*Outcome, error) {

	addr, err := verifier.DecodeAddress(target)
	if err != nil {
		return nil, err
	}
	if err := validateRange(low, high); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	tasks, err := Partition(low, high, workers)
	if err != nil {
		return nil, err
	}

	state, err := c.cfg.Store.Begin(puzzle)
	if err != nil {
		return nil, err
	}
	if state.Status == checkpoint.StatusSolved {
		log.Infof("Puzzle %d is already solved", puzzle)
		return &Outcome{
			Stats:  Stats{Puzzle: puzzle, Found: true, Remaining: new(big.Int)},
			Target: target,
			Status: checkpoint.StatusSolved,
			Key:    state.FoundKey,
		}, nil
	}

	s := newSearchState(puzzle, target, low, high, tasks)
	c.active.Store(s)
	log.Infof("Searching puzzle %d for %s over [%s, %s] with %d workers",
		puzzle, target, low.Text(16), high.Text(16), len(tasks))

	stopLogger := c.startProgressLogger(s)
	g, gctx := errgroup.WithContext(ctx)
	for _, ts := range s.tasks {
		ts := ts
		g.Go(func() error {
			return c.runTask(gctx, s, ts, addr)
		})
	}
	err = g.Wait()
	s.finished.Store(time.Now().UnixNano())
	stopLogger()

	status := checkpoint.StatusExhausted
	switch {
	case s.found.Load():
		status = checkpoint.StatusSolved
	case err != nil:
		status = checkpoint.StatusPaused
	default:
		for _, ts := range s.tasks {
			if ts.getStatus() != checkpoint.StatusExhausted {
				status = checkpoint.StatusPaused
				break
			}
		}
	}
	if status != checkpoint.StatusSolved {
		desc := fmt.Sprintf("status record of puzzle %d", puzzle)
		serr := c.retry(desc, func() error {
			return c.cfg.Store.SetStatus(puzzle, status)
		})
		if serr != nil {
			s.recordCheckpointErr(&CheckpointWriteError{
				Task:     checkpoint.TaskID{Puzzle: puzzle},
				Attempts: c.cfg.RetryAttempts,
				Err:      serr,
			})
		}
	}
	if err != nil {
		return nil, err
	}

	out := s.outcome(status)
	log.Infof("Search of puzzle %d %s: %d keys checked in %s (%.0f keys/s)",
		puzzle, status, out.Checked, out.Elapsed.Round(time.Millisecond),
		out.Rate)
	return out, nil
}

// outcome assembles the final result of a finished search.
func (s *searchState) outcome(status checkpoint.Status) *Outcome {
	elapsed := s.elapsed()
	out := &Outcome{
		Stats:  s.stats(),
		Target: s.target,
		Status: status,
		Tasks:  make([]TaskOutcome, len(s.tasks)),
	}
	for i, ts := range s.tasks {
		checked := ts.checked.Load()
		out.Tasks[i] = TaskOutcome{
			Task:     ts.task,
			Status:   ts.getStatus(),
			Checked:  checked,
			Searched: checked + ts.resumed.Load(),
			Rate:     rate(checked, elapsed),
		}
	}

	s.mtx.Lock()
	out.Key = s.key
	out.Encoding = s.enc
	out.CheckpointErrors = append([]error(nil), s.ckptErrs...)
	s.mtx.Unlock()
	return out
}
