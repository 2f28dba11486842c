package bruteforce

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/mahdiidarabi/keyladder/internal/checkpoint"
	"github.com/mahdiidarabi/keyladder/internal/keyspace"
	"github.com/mahdiidarabi/keyladder/internal/verifier"
)

// Task is one worker's share of a search: the inclusive range [Low, High]
// scanned for Target.  Tasks are not modified once created.
type Task struct {
	ID     int
	Low    *big.Int
	High   *big.Int
	Target string
}

// Size returns the number of keys in the task.
func (t *Task) Size() *big.Int {
	size := new(big.Int).Sub(t.High, t.Low)
	return size.Add(size, big.NewInt(1))
}

// Partition splits [low, high] into contiguous, disjoint sub-ranges of equal
// size, the last one absorbing the remainder.  Task IDs are 0..workers-1.
// When the range holds fewer keys than workers, one task per key is created.
func Partition(low, high *big.Int, workers int) ([]Task, error) {
	if low == nil || high == nil {
		return nil, makeError(ErrInvalidRange, "missing range bound")
	}
	if low.Cmp(high) > 0 {
		str := fmt.Sprintf("range low %s is greater than high %s", low, high)
		return nil, makeError(ErrInvalidRange, str)
	}
	if workers < 1 {
		str := fmt.Sprintf("worker count %d is less than one", workers)
		return nil, makeError(ErrInvalidRange, str)
	}

	size := new(big.Int).Sub(high, low)
	size.Add(size, big.NewInt(1))
	if size.Cmp(big.NewInt(int64(workers))) < 0 {
		workers = int(size.Int64())
	}
	chunk := new(big.Int).Div(size, big.NewInt(int64(workers)))

	tasks := make([]Task, workers)
	start := new(big.Int).Set(low)
	for i := range tasks {
		end := new(big.Int).Add(start, chunk)
		end.Sub(end, big.NewInt(1))
		if i == workers-1 {
			end.Set(high)
		}
		tasks[i] = Task{ID: i, Low: new(big.Int).Set(start), High: end}
		start = new(big.Int).Add(end, big.NewInt(1))
	}
	return tasks, nil
}

// taskState is the live state of a running task.  Every field is read by
// Coordinator.Snapshot without locking.
type taskState struct {
	task Task

	// checked counts keys verified by this run and resumed the keys
	// covered by a prior run's checkpoint.
	checked atomic.Uint64
	resumed atomic.Uint64

	status atomic.Uint32
}

func (ts *taskState) setStatus(s checkpoint.Status) {
	ts.status.Store(uint32(s))
}

func (ts *taskState) getStatus() checkpoint.Status {
	return checkpoint.Status(ts.status.Load())
}

// taskRun carries what a worker needs while scanning one task.
type taskRun struct {
	c      *Coordinator
	search *searchState
	state  *taskState
	id     checkpoint.TaskID
	lease  *checkpoint.Lease
	target *verifier.Address

	low, high keyspace.Key
}

// resumePoint returns the first key to check and the number of keys already
// covered by a matching checkpoint.  A checkpoint for a different range is
// ignored so the task is re-scanned rather than skipped.
func (r *taskRun) resumePoint() (*big.Int, uint64, bool) {
	start := new(big.Int).Set(r.state.task.Low)
	prev, err := r.c.cfg.Store.Load(r.id)
	if err != nil {
		log.Warnf("Unable to load checkpoint for task %s, scanning from "+
			"the start: %v", r.id, err)
		return start, 0, false
	}
	if prev == nil {
		return start, 0, false
	}
	if prev.Low.Cmp(r.low) != 0 || prev.High.Cmp(r.high) != 0 {
		log.Warnf("Ignoring checkpoint for task %s: range [%s, %s] does not "+
			"match [%s, %s]", r.id, prev.Low, prev.High, r.low, r.high)
		return start, 0, false
	}
	if prev.Status == checkpoint.StatusExhausted {
		return nil, prev.Searched, true
	}
	if prev.Searched == 0 {
		return start, 0, false
	}
	start = prev.Position.Big()
	start.Add(start, big.NewInt(1))
	if start.Cmp(r.state.task.High) > 0 {
		return nil, prev.Searched, true
	}
	log.Debugf("Resuming task %s at %s with %d keys already searched",
		r.id, start.Text(16), prev.Searched)
	return start, prev.Searched, false
}

// save persists the task's progress with position as the last key checked.
// Every attempt builds a fresh record from the task's counters.
func (r *taskRun) save(position *big.Int, status checkpoint.Status) {
	pos, err := keyspace.FromBig(position)
	if err != nil {
		pos = r.low
	}
	desc := fmt.Sprintf("checkpoint of task %s", r.id)
	err = r.c.retry(desc, func() error {
		return r.c.cfg.Store.Save(r.lease, &checkpoint.Progress{
			ID:        r.id,
			Low:       r.low,
			High:      r.high,
			Position:  pos,
			Searched:  r.state.resumed.Load() + r.state.checked.Load(),
			Status:    status,
			UpdatedAt: time.Now(),
		})
	})
	if err != nil {
		r.search.recordCheckpointErr(&CheckpointWriteError{
			Task:     r.id,
			Attempts: r.c.cfg.RetryAttempts,
			Err:      err,
		})
	}
}

// scan enumerates the task's keys in ascending order until a match, the
// shared found flag, cancellation or the end of the range.
func (r *taskRun) scan(ctx context.Context) error {
	start, resumed, done := r.resumePoint()
	r.state.resumed.Store(resumed)
	if done {
		r.state.setStatus(checkpoint.StatusExhausted)
		return nil
	}
	r.state.setStatus(checkpoint.StatusInProgress)

	var (
		one       = big.NewInt(1)
		high      = r.state.task.High
		cur       = new(big.Int).Set(start)
		buf       [keyspace.Width]byte
		sinceSave uint64
	)
	lastChecked := func() *big.Int {
		if cur.Cmp(start) == 0 {
			if resumed == 0 {
				return new(big.Int).Set(start)
			}
			return new(big.Int).Sub(start, one)
		}
		return new(big.Int).Sub(cur, one)
	}

	for cur.Cmp(high) <= 0 {
		if r.search.found.Load() || ctx.Err() != nil {
			r.state.setStatus(checkpoint.StatusPaused)
			r.save(lastChecked(), checkpoint.StatusPaused)
			return nil
		}

		cur.FillBytes(buf[:])
		enc, match, err := r.c.cfg.Verifier.Match(&buf, r.target)
		if err != nil {
			return err
		}
		r.state.checked.Add(1)

		if match {
			key, err := keyspace.FromBytes(buf[:])
			if err != nil {
				return err
			}
			r.search.solve(r.c, r.id, key, enc)
			r.state.setStatus(checkpoint.StatusSolved)
			r.save(cur, checkpoint.StatusSolved)
			return nil
		}

		sinceSave++
		if sinceSave >= r.c.cfg.CheckpointInterval {
			r.save(cur, checkpoint.StatusInProgress)
			sinceSave = 0
		}
		cur.Add(cur, one)
	}

	r.state.setStatus(checkpoint.StatusExhausted)
	r.save(high, checkpoint.StatusExhausted)
	log.Debugf("Task %s exhausted after %d keys", r.id, r.state.checked.Load())
	return nil
}

// runTask acquires the task's checkpoint lease and scans it.
func (c *Coordinator) runTask(ctx context.Context, s *searchState,
	ts *taskState, target *verifier.Address) error {

	id := checkpoint.TaskID{Puzzle: s.puzzle, Task: ts.task.ID}
	low, err := keyspace.FromBig(ts.task.Low)
	if err != nil {
		return err
	}
	high, err := keyspace.FromBig(ts.task.High)
	if err != nil {
		return err
	}

	lease, err := c.cfg.Store.Acquire(id)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.cfg.Store.Release(lease); err != nil {
			log.Warnf("Unable to release lease of task %s: %v", id, err)
		}
	}()

	r := &taskRun{
		c:      c,
		search: s,
		state:  ts,
		id:     id,
		lease:  lease,
		target: target,
		low:    low,
		high:   high,
	}
	return r.scan(ctx)
}

// retry runs fn until it succeeds or RetryAttempts is reached, doubling the
// wait after each failure.  Writer conflicts are not retried.
func (c *Coordinator) retry(desc string, fn func() error) error {
	backoff := c.cfg.RetryBackoff
	var err error
	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, checkpoint.ErrWriterConflict) {
			break
		}
		if attempt < c.cfg.RetryAttempts {
			log.Warnf("Attempt %d of %s failed, retrying in %s: %v", attempt,
				desc, backoff, err)
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	log.Errorf("Giving up on %s: %v", desc, err)
	return err
}
