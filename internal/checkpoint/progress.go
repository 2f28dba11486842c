package checkpoint

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/mahdiidarabi/keyladder/internal/keyspace"
)

// Status is the lifecycle state of a puzzle or one of its tasks.
type Status uint8

// A puzzle moves from pending to in progress and from there to exactly one of
// solved, exhausted or paused.  Paused puzzles return to in progress when the
// search resumes.  Solved is terminal.
const (
	StatusPending Status = iota
	StatusInProgress
	StatusSolved
	StatusExhausted
	StatusPaused
)

var statusStrings = map[Status]string{
	StatusPending:    "pending",
	StatusInProgress: "in_progress",
	StatusSolved:     "solved",
	StatusExhausted:  "exhausted",
	StatusPaused:     "paused",
}

// String returns the Status in human-readable form.
func (s Status) String() string {
	if str, ok := statusStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("Unknown Status (%d)", uint8(s))
}

// TaskID identifies the checkpoint record of one search task.
type TaskID struct {
	Puzzle uint
	Task   int
}

// String returns the id as puzzle/task.
func (id TaskID) String() string {
	return fmt.Sprintf("%d/%d", id.Puzzle, id.Task)
}

// Progress is the persisted state of one search task.  Position is the last
// key checked and is only meaningful when Searched is non-zero.
type Progress struct {
	ID        TaskID
	Low       keyspace.Key
	High      keyspace.Key
	Position  keyspace.Key
	Searched  uint64
	Status    Status
	UpdatedAt time.Time
}

// PuzzleState is the persisted puzzle level state.
type PuzzleState struct {
	Puzzle    uint
	Status    Status
	FoundKey  *keyspace.Key
	UpdatedAt time.Time
}

// Snapshot is a point in time view of a puzzle and all of its tasks.
type Snapshot struct {
	PuzzleState
	Tasks []Progress
}

// Searched returns the total number of keys checked across all tasks.
func (s *Snapshot) Searched() uint64 {
	var total uint64
	for i := range s.Tasks {
		total += s.Tasks[i].Searched
	}
	return total
}

// -----------------------------------------------------------------------------
// The serialized format of a task progress record is:
//
//   <version><low><high><position><searched><status><updated>
//
//   Field      Type     Size
//   version    uint8    1 byte
//   low        [32]byte 32 bytes (big endian)
//   high       [32]byte 32 bytes (big endian)
//   position   [32]byte 32 bytes (big endian)
//   searched   uint64   8 bytes
//   status     uint8    1 byte
//   updated    int64    8 bytes (unix nanoseconds)
//
// The serialized format of a puzzle state record is:
//
//   <version><status><found flag><found key><updated>
//
//   Field      Type     Size
//   version    uint8    1 byte
//   status     uint8    1 byte
//   found flag uint8    1 byte
//   found key  [32]byte 32 bytes (big endian, zero when not found)
//   updated    int64    8 bytes (unix nanoseconds)
// -----------------------------------------------------------------------------

const (
	recordVersion = 1

	progressRecordLen = 1 + 3*keyspace.Width + 8 + 1 + 8
	puzzleRecordLen   = 1 + 1 + 1 + keyspace.Width + 8
)

func putKey(b []byte, k keyspace.Key) {
	raw := k.Bytes()
	copy(b, raw[:])
}

func getKey(b []byte) keyspace.Key {
	var raw [keyspace.Width]byte
	copy(raw[:], b)
	k, _ := keyspace.FromBytes(raw[:])
	return k
}

func checkStatus(b byte) (Status, error) {
	s := Status(b)
	if _, ok := statusStrings[s]; !ok {
		return 0, makeError(ErrCorruptRecord, fmt.Sprintf("unknown status %d", b))
	}
	return s, nil
}

func serializeProgress(p *Progress) []byte {
	b := make([]byte, progressRecordLen)
	b[0] = recordVersion
	off := 1
	putKey(b[off:], p.Low)
	off += keyspace.Width
	putKey(b[off:], p.High)
	off += keyspace.Width
	putKey(b[off:], p.Position)
	off += keyspace.Width
	binary.BigEndian.PutUint64(b[off:], p.Searched)
	off += 8
	b[off] = byte(p.Status)
	off++
	binary.BigEndian.PutUint64(b[off:], uint64(p.UpdatedAt.UnixNano()))
	return b
}

func deserializeProgress(id TaskID, b []byte) (*Progress, error) {
	if len(b) != progressRecordLen || b[0] != recordVersion {
		str := fmt.Sprintf("task %s: malformed progress record (len %d)", id,
			len(b))
		return nil, makeError(ErrCorruptRecord, str)
	}
	p := &Progress{ID: id}
	off := 1
	p.Low = getKey(b[off:])
	off += keyspace.Width
	p.High = getKey(b[off:])
	off += keyspace.Width
	p.Position = getKey(b[off:])
	off += keyspace.Width
	p.Searched = binary.BigEndian.Uint64(b[off:])
	off += 8
	status, err := checkStatus(b[off])
	if err != nil {
		return nil, err
	}
	p.Status = status
	off++
	p.UpdatedAt = time.Unix(0, int64(binary.BigEndian.Uint64(b[off:])))
	if p.Low.Cmp(p.High) > 0 {
		str := fmt.Sprintf("task %s: low %s above high %s", id, p.Low, p.High)
		return nil, makeError(ErrCorruptRecord, str)
	}
	return p, nil
}

func serializePuzzleState(s *PuzzleState) []byte {
	b := make([]byte, puzzleRecordLen)
	b[0] = recordVersion
	b[1] = byte(s.Status)
	if s.FoundKey != nil {
		b[2] = 1
		putKey(b[3:], *s.FoundKey)
	}
	off := 3 + keyspace.Width
	binary.BigEndian.PutUint64(b[off:], uint64(s.UpdatedAt.UnixNano()))
	return b
}

func deserializePuzzleState(puzzle uint, b []byte) (*PuzzleState, error) {
	if len(b) != puzzleRecordLen || b[0] != recordVersion || b[2] > 1 {
		str := fmt.Sprintf("puzzle %d: malformed state record (len %d)",
			puzzle, len(b))
		return nil, makeError(ErrCorruptRecord, str)
	}
	status, err := checkStatus(b[1])
	if err != nil {
		return nil, err
	}
	s := &PuzzleState{Puzzle: puzzle, Status: status}
	if b[2] == 1 {
		k := getKey(b[3:])
		s.FoundKey = &k
	}
	off := 3 + keyspace.Width
	s.UpdatedAt = time.Unix(0, int64(binary.BigEndian.Uint64(b[off:])))
	return s, nil
}
