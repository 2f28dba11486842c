package affine

import (
	"fmt"

	"github.com/mahdiidarabi/keyladder/internal/lane"
)

// Occurrences is the number of drift values each lane carries per block.
const Occurrences = 2

// CalibrationSet is a multiplier vector plus a drift table indexed by block,
// lane and occurrence.  RangeLow and RangeHigh record the span of known keys
// the set was built from and are informational.
type CalibrationSet struct {
	Multipliers []byte
	Drift       map[int]map[int][Occurrences]byte
	RangeLow    uint
	RangeHigh   uint
}

// NewCalibrationSet returns a set with the given multipliers and an empty
// drift table.
func NewCalibrationSet(multipliers []byte) *CalibrationSet {
	return &CalibrationSet{
		Multipliers: append([]byte(nil), multipliers...),
		Drift:       make(map[int]map[int][Occurrences]byte),
	}
}

// Lanes returns the number of lanes the set covers.
func (s *CalibrationSet) Lanes() int {
	return len(s.Multipliers)
}

// SetDrift installs a solved drift vector for every lane of the given block
// and occurrence.
func (s *CalibrationSet) SetDrift(block, occ int, drift []byte) error {
	if occ < 0 || occ >= Occurrences {
		str := fmt.Sprintf("occurrence %d outside [0, %d)", occ, Occurrences)
		return makeError(ErrInvalidCalibration, str)
	}
	if len(drift) != len(s.Multipliers) {
		str := fmt.Sprintf("drift vector has %d lanes, want %d", len(drift),
			len(s.Multipliers))
		return lane.MalformedVectorError(str)
	}
	if s.Drift == nil {
		s.Drift = make(map[int]map[int][Occurrences]byte)
	}
	lanes, ok := s.Drift[block]
	if !ok {
		lanes = make(map[int][Occurrences]byte, len(drift))
		s.Drift[block] = lanes
	}
	for l, c := range drift {
		entry := lanes[l]
		entry[occ] = c
		lanes[l] = entry
	}
	return nil
}

// driftVector returns the drift of every lane for a block and occurrence.
func (s *CalibrationSet) driftVector(block, occ int) ([]byte, error) {
	if occ < 0 || occ >= Occurrences {
		str := fmt.Sprintf("occurrence %d outside [0, %d)", occ, Occurrences)
		return nil, makeError(ErrMissingDrift, str)
	}
	lanes, ok := s.Drift[block]
	if !ok {
		str := fmt.Sprintf("no drift for block %d", block)
		return nil, makeError(ErrMissingDrift, str)
	}
	out := make([]byte, len(s.Multipliers))
	for l := range out {
		entry, ok := lanes[l]
		if !ok {
			str := fmt.Sprintf("no drift for block %d lane %d", block, l)
			return nil, makeError(ErrMissingDrift, str)
		}
		out[l] = entry[occ]
	}
	return out, nil
}

func (s *CalibrationSet) checkVector(v lane.Vector) error {
	if len(v) != len(s.Multipliers) {
		str := fmt.Sprintf("lane vector has %d entries, calibration has %d",
			len(v), len(s.Multipliers))
		return lane.MalformedVectorError(str)
	}
	return nil
}

// StepForward advances v by one step: y = A·x + C[block][lane][occ].
func StepForward(v lane.Vector, cal *CalibrationSet, block, occ int) (lane.Vector, error) {
	if err := cal.checkVector(v); err != nil {
		return nil, err
	}
	drift, err := cal.driftVector(block, occ)
	if err != nil {
		return nil, err
	}
	out := make(lane.Vector, len(v))
	for l, x := range v {
		out[l] = cal.Multipliers[l]*x + drift[l]
	}
	return out, nil
}

// StepNForward advances v by n steps under a single drift using the closed
// form A^n·x + Γ_n(A)·C.
func StepNForward(v lane.Vector, cal *CalibrationSet, block, occ int, n uint64) (lane.Vector, error) {
	if err := cal.checkVector(v); err != nil {
		return nil, err
	}
	drift, err := cal.driftVector(block, occ)
	if err != nil {
		return nil, err
	}
	out := make(lane.Vector, len(v))
	for l, x := range v {
		a := cal.Multipliers[l]
		out[l] = PowMod256(a, n)*x + GeomSum(a, n)*drift[l]
	}
	return out, nil
}

// StepBackward inverts StepForward: x = A^-1·(y − C).  Every multiplier must
// be odd.
func StepBackward(v lane.Vector, cal *CalibrationSet, block, occ int) (lane.Vector, error) {
	if err := cal.checkVector(v); err != nil {
		return nil, err
	}
	inverses := make([]byte, len(cal.Multipliers))
	for l, a := range cal.Multipliers {
		inv, ok := Inverse256(a)
		if !ok {
			str := fmt.Sprintf("lane %d multiplier %d is even", l, a)
			return nil, makeError(ErrNonInvertibleMultiplier, str)
		}
		inverses[l] = inv
	}
	drift, err := cal.driftVector(block, occ)
	if err != nil {
		return nil, err
	}
	out := make(lane.Vector, len(v))
	for l, y := range v {
		out[l] = inverses[l] * (y - drift[l])
	}
	return out, nil
}

// Schedule maps a sequence index to the block and occurrence whose drift
// governs the step from that index to the next.  Blocks are BlockSize indices
// wide starting at Base; the first half of a block uses occurrence 0 and the
// second half occurrence 1.
type Schedule struct {
	Base      uint
	BlockSize uint
}

// DefaultBlockSize is the block width of the default schedule.
const DefaultBlockSize = 32

// DefaultSchedule returns the schedule with DefaultBlockSize blocks anchored
// at base.
func DefaultSchedule(base uint) Schedule {
	return Schedule{Base: base, BlockSize: DefaultBlockSize}
}

// Locate returns the block and occurrence for index.  Indices below Base map
// to negative blocks.
func (s Schedule) Locate(index uint) (block, occ int) {
	size := int64(s.BlockSize)
	if size < Occurrences {
		size = DefaultBlockSize
	}
	d := int64(index) - int64(s.Base)
	b := d / size
	off := d % size
	if off < 0 {
		b--
		off += size
	}
	if off >= size/Occurrences {
		occ = 1
	}
	return int(b), occ
}
