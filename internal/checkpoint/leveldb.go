package checkpoint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/mahdiidarabi/keyladder/internal/keyspace"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// -----------------------------------------------------------------------------
// Keys in the checkpoint database start with a one byte key set identifier:
//
//   Key set    Key                          Value
//   'p'        <puzzle uint64><task uint32> progress record
//   's'        <puzzle uint64>              puzzle state record
//
// All integers are big endian so that iteration visits tasks in order.
// -----------------------------------------------------------------------------

var (
	progressKeySet = []byte{'p'}
	puzzleKeySet   = []byte{'s'}
)

func puzzlePrefix(keySet []byte, puzzle uint) []byte {
	k := make([]byte, len(keySet)+8)
	copy(k, keySet)
	binary.BigEndian.PutUint64(k[len(keySet):], uint64(puzzle))
	return k
}

func progressKey(id TaskID) []byte {
	prefix := puzzlePrefix(progressKeySet, id.Puzzle)
	k := make([]byte, len(prefix)+4)
	copy(k, prefix)
	binary.BigEndian.PutUint32(k[len(prefix):], uint32(id.Task))
	return k
}

// LevelDB is a Store backed by a leveldb database.  leveldb holds a lock file
// on the database directory, so only one process can open it at a time;
// within the process, leases enforce one writer per task record.
type LevelDB struct {
	leases leaseTable
	db     *leveldb.DB

	// puzzleMtx serializes read-modify-write cycles of puzzle records.
	puzzleMtx sync.Mutex
}

// Ensure LevelDB implements the Store interface.
var _ Store = (*LevelDB)(nil)

// convertLdbErr converts the passed leveldb error into a checkpoint error
// with an equivalent error kind and the passed description.
func convertLdbErr(ldbErr error, desc string) Error {
	kind := ErrStore
	if ldberrors.IsCorrupted(ldbErr) {
		kind = ErrCorruptRecord
	}
	err := makeError(kind, fmt.Sprintf("%s: %v", desc, ldbErr))
	err.RawErr = ldbErr
	return err
}

// OpenLevelDB opens (or creates when needed) the checkpoint database at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// leveldb.OpenFile fails below if the directory could not be
		// created.
		_ = os.MkdirAll(path, 0700)
	}

	log.Infof("Loading checkpoint database from '%s'", path)
	opts := opt.Options{
		Strict:      opt.DefaultStrict,
		Compression: opt.NoCompression,
		Filter:      filter.NewBloomFilter(10),
	}
	db, err := leveldb.OpenFile(path, &opts)
	if err != nil {
		return nil, convertLdbErr(err, "failed to open checkpoint database")
	}
	return &LevelDB{db: db}, nil
}

// get returns the value for key, or nil when the key does not exist.
func (l *LevelDB) get(key []byte) ([]byte, error) {
	v, err := l.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, nil
		}
		return nil, convertLdbErr(err, fmt.Sprintf("failed to get key %x", key))
	}
	return v, nil
}

func (l *LevelDB) put(key, value []byte) error {
	if err := l.db.Put(key, value, nil); err != nil {
		return convertLdbErr(err, fmt.Sprintf("failed to put key %x", key))
	}
	return nil
}

// Acquire grants exclusive write access to the task record.
func (l *LevelDB) Acquire(id TaskID) (*Lease, error) {
	return l.leases.acquire(id)
}

// Release gives up a lease.
func (l *LevelDB) Release(lease *Lease) error {
	l.leases.release(lease)
	return nil
}

// Save persists task progress through a current lease.
func (l *LevelDB) Save(lease *Lease, p *Progress) error {
	if err := l.leases.check(lease, p.ID); err != nil {
		return err
	}
	rec := *p
	rec.UpdatedAt = time.Now()
	return l.put(progressKey(p.ID), serializeProgress(&rec))
}

// Load returns the stored progress of a task, or nil when there is none.
func (l *LevelDB) Load(id TaskID) (*Progress, error) {
	v, err := l.get(progressKey(id))
	if err != nil || v == nil {
		return nil, err
	}
	return deserializeProgress(id, v)
}

func (l *LevelDB) puzzleState(puzzle uint) (*PuzzleState, error) {
	v, err := l.get(puzzlePrefix(puzzleKeySet, puzzle))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return &PuzzleState{Puzzle: puzzle, Status: StatusPending}, nil
	}
	return deserializePuzzleState(puzzle, v)
}

func (l *LevelDB) putPuzzleState(s *PuzzleState) error {
	s.UpdatedAt = time.Now()
	return l.put(puzzlePrefix(puzzleKeySet, s.Puzzle), serializePuzzleState(s))
}

// Begin moves a puzzle to in progress unless it is already solved.
func (l *LevelDB) Begin(puzzle uint) (*PuzzleState, error) {
	l.puzzleMtx.Lock()
	defer l.puzzleMtx.Unlock()

	s, err := l.puzzleState(puzzle)
	if err != nil {
		return nil, err
	}
	if s.Status == StatusSolved {
		return s, nil
	}
	s.Status = StatusInProgress
	if err := l.putPuzzleState(s); err != nil {
		return nil, err
	}
	return s, nil
}

// SetStatus records a puzzle status.
func (l *LevelDB) SetStatus(puzzle uint, status Status) error {
	l.puzzleMtx.Lock()
	defer l.puzzleMtx.Unlock()

	s, err := l.puzzleState(puzzle)
	if err != nil {
		return err
	}
	s.Status = nextStatus(s.Status, status)
	return l.putPuzzleState(s)
}

// MarkSolved records the key that solved the puzzle.
func (l *LevelDB) MarkSolved(puzzle uint, key keyspace.Key) error {
	l.puzzleMtx.Lock()
	defer l.puzzleMtx.Unlock()

	s := &PuzzleState{Puzzle: puzzle, Status: StatusSolved, FoundKey: &key}
	return l.putPuzzleState(s)
}

// Snapshot returns the puzzle state and every task record.
func (l *LevelDB) Snapshot(puzzle uint) (*Snapshot, error) {
	dbSnap, err := l.db.GetSnapshot()
	if err != nil {
		return nil, convertLdbErr(err, "failed to take database snapshot")
	}
	defer dbSnap.Release()

	snap := &Snapshot{PuzzleState: PuzzleState{Puzzle: puzzle, Status: StatusPending}}
	v, err := dbSnap.Get(puzzlePrefix(puzzleKeySet, puzzle), nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
	case err != nil:
		return nil, convertLdbErr(err, "failed to read puzzle state")
	default:
		state, err := deserializePuzzleState(puzzle, v)
		if err != nil {
			return nil, err
		}
		snap.PuzzleState = *state
	}

	prefix := puzzlePrefix(progressKeySet, puzzle)
	iter := dbSnap.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		key := iter.Key()
		if len(key) != len(prefix)+4 {
			str := fmt.Sprintf("malformed progress key %x", key)
			return nil, makeError(ErrCorruptRecord, str)
		}
		id := TaskID{
			Puzzle: puzzle,
			Task:   int(binary.BigEndian.Uint32(key[len(prefix):])),
		}
		p, err := deserializeProgress(id, iter.Value())
		if err != nil {
			return nil, err
		}
		snap.Tasks = append(snap.Tasks, *p)
	}
	if err := iter.Error(); err != nil {
		return nil, convertLdbErr(err, "failed to iterate progress records")
	}
	sort.Slice(snap.Tasks, func(i, j int) bool {
		return snap.Tasks[i].ID.Task < snap.Tasks[j].ID.Task
	})
	return snap, nil
}

// Reset removes every record of a puzzle.
func (l *LevelDB) Reset(puzzle uint) error {
	batch := new(leveldb.Batch)
	batch.Delete(puzzlePrefix(puzzleKeySet, puzzle))
	iter := l.db.NewIterator(util.BytesPrefix(puzzlePrefix(progressKeySet, puzzle)), nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return convertLdbErr(err, "failed to iterate progress records")
	}
	if err := l.db.Write(batch, nil); err != nil {
		return convertLdbErr(err, "failed to reset puzzle")
	}
	return nil
}

// Close closes the database.
func (l *LevelDB) Close() error {
	if err := l.db.Close(); err != nil {
		return convertLdbErr(err, "failed to close checkpoint database")
	}
	return nil
}
