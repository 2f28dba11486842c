package affine

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
)

// artifact is the on-disk JSON layout of a calibration set:
//
//	{
//	  "range": [29, 70],
//	  "lanes": [0, 1, ..., 15],
//	  "A":     {"0": 1, "1": 91, ...},
//	  "Cstar": {"0": {"0": [c0, c1], ...}, ...}
//	}
//
// Values are decoded as plain integers so out of range entries can be
// rejected instead of silently truncated.
type artifact struct {
	Range []int                       `json:"range,omitempty"`
	Lanes []int                       `json:"lanes"`
	A     map[string]int              `json:"A"`
	Cstar map[string]map[string][]int `json:"Cstar"`
}

// MarshalJSON encodes the set in the artifact layout.
func (s *CalibrationSet) MarshalJSON() ([]byte, error) {
	art := artifact{
		Lanes: make([]int, len(s.Multipliers)),
		A:     make(map[string]int, len(s.Multipliers)),
		Cstar: make(map[string]map[string][]int, len(s.Drift)),
	}
	if s.RangeLow != 0 || s.RangeHigh != 0 {
		art.Range = []int{int(s.RangeLow), int(s.RangeHigh)}
	}
	for l, a := range s.Multipliers {
		art.Lanes[l] = l
		art.A[strconv.Itoa(l)] = int(a)
	}
	for block, lanes := range s.Drift {
		out := make(map[string][]int, len(lanes))
		for l, occ := range lanes {
			vals := make([]int, Occurrences)
			for i, c := range occ {
				vals[i] = int(c)
			}
			out[strconv.Itoa(l)] = vals
		}
		art.Cstar[strconv.Itoa(block)] = out
	}
	return json.Marshal(art)
}

func invalid(format string, args ...interface{}) error {
	return makeError(ErrInvalidCalibration, fmt.Sprintf(format, args...))
}

func checkByte(what string, v int) (byte, error) {
	if v < 0 || v > 255 {
		return 0, invalid("%s value %d outside [0, 256)", what, v)
	}
	return byte(v), nil
}

// UnmarshalJSON decodes and validates a set in the artifact layout.
func (s *CalibrationSet) UnmarshalJSON(data []byte) error {
	var art artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return invalid("malformed calibration artifact: %v", err)
	}

	if len(art.A) == 0 {
		return invalid("calibration artifact has no multipliers")
	}
	multipliers := make([]byte, len(art.A))
	seen := make([]bool, len(art.A))
	for key, v := range art.A {
		l, err := strconv.Atoi(key)
		if err != nil || l < 0 || l >= len(multipliers) {
			return invalid("multiplier lane %q outside [0, %d)", key,
				len(multipliers))
		}
		a, err := checkByte(fmt.Sprintf("multiplier for lane %d", l), v)
		if err != nil {
			return err
		}
		multipliers[l] = a
		seen[l] = true
	}
	for l, ok := range seen {
		if !ok {
			return invalid("missing multiplier for lane %d", l)
		}
	}
	if art.Lanes != nil && len(art.Lanes) != len(multipliers) {
		return invalid("artifact lists %d lanes but has %d multipliers",
			len(art.Lanes), len(multipliers))
	}
	for _, l := range art.Lanes {
		if l < 0 || l >= len(multipliers) {
			return invalid("lane %d outside [0, %d)", l, len(multipliers))
		}
	}

	var low, high uint
	switch len(art.Range) {
	case 0:
	case 2:
		if art.Range[0] < 0 || art.Range[1] < art.Range[0] {
			return invalid("invalid range %v", art.Range)
		}
		low, high = uint(art.Range[0]), uint(art.Range[1])
	default:
		return invalid("range must have two entries, got %d", len(art.Range))
	}

	drift := make(map[int]map[int][Occurrences]byte, len(art.Cstar))
	for bkey, lanes := range art.Cstar {
		block, err := strconv.Atoi(bkey)
		if err != nil {
			return invalid("malformed block id %q", bkey)
		}
		table := make(map[int][Occurrences]byte, len(lanes))
		for lkey, vals := range lanes {
			l, err := strconv.Atoi(lkey)
			if err != nil || l < 0 || l >= len(multipliers) {
				return invalid("block %d: drift lane %q outside [0, %d)",
					block, lkey, len(multipliers))
			}
			if len(vals) != Occurrences {
				return invalid("block %d lane %d: %d drift values, want %d",
					block, l, len(vals), Occurrences)
			}
			var entry [Occurrences]byte
			for i, v := range vals {
				what := fmt.Sprintf("block %d lane %d drift", block, l)
				if entry[i], err = checkByte(what, v); err != nil {
					return err
				}
			}
			table[l] = entry
		}
		drift[block] = table
	}

	*s = CalibrationSet{
		Multipliers: multipliers,
		Drift:       drift,
		RangeLow:    low,
		RangeHigh:   high,
	}
	return nil
}

// Blocks returns the block ids present in the drift table in ascending
// order.
func (s *CalibrationSet) Blocks() []int {
	blocks := make([]int, 0, len(s.Drift))
	for b := range s.Drift {
		blocks = append(blocks, b)
	}
	sort.Ints(blocks)
	return blocks
}

// LoadCalibrationSet reads a calibration artifact from path.
func LoadCalibrationSet(path string) (*CalibrationSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration artifact: %w", err)
	}
	s := new(CalibrationSet)
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	log.Debugf("Loaded calibration %s: %d lanes, %d blocks", path,
		s.Lanes(), len(s.Drift))
	return s, nil
}

// WriteFile writes the set to path in the artifact layout.
func (s *CalibrationSet) WriteFile(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode calibration artifact: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write calibration artifact: %w", err)
	}
	return nil
}
