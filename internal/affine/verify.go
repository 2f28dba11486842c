package affine

import (
	"errors"
	"sort"

	"github.com/mahdiidarabi/keyladder/internal/lane"
)

// Known is a key with a known sequence index, already decoded into lanes.
type Known struct {
	Index uint
	Lanes lane.Vector
}

// Mismatch records one lane whose prediction differed from the known value.
// Index is the index of the predicted key.
type Mismatch struct {
	Index     uint
	Lane      int
	Predicted byte
	Actual    byte
}

// Report summarises a verification pass over known keys.
type Report struct {
	TotalChecks        int
	TotalMatches       int
	Mismatches         []Mismatch
	SkippedPairs       int
	NonInvertibleLanes []int
}

// Accuracy returns the fraction of lane checks that matched, or 0 when
// nothing was checked.
func (r *Report) Accuracy() float64 {
	if r.TotalChecks == 0 {
		return 0
	}
	return float64(r.TotalMatches) / float64(r.TotalChecks)
}

// Perfect reports whether every lane check matched.
func (r *Report) Perfect() bool {
	return r.TotalMatches == r.TotalChecks
}

// pairFunc predicts one side of an adjacent pair from the other and returns
// the predicted index together with the predicted and actual vectors.
type pairFunc func(prev, next Known, block, occ int) (index uint, predicted, actual lane.Vector, err error)

// walkPairs calls fn for every pair of known keys with consecutive indices
// and accumulates lane comparisons into r.  Pairs that are not adjacent, or
// whose drift is missing from the table, are counted as skipped.
func walkPairs(known []Known, sched Schedule, lanes []int, r *Report, fn pairFunc) error {
	sorted := append([]Known(nil), known...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Index < sorted[j].Index
	})

	for i := 0; i+1 < len(sorted); i++ {
		prev, next := sorted[i], sorted[i+1]
		if next.Index != prev.Index+1 {
			r.SkippedPairs++
			continue
		}
		block, occ := sched.Locate(prev.Index)
		index, predicted, actual, err := fn(prev, next, block, occ)
		if errors.Is(err, ErrMissingDrift) {
			log.Debugf("Skipping pair %d -> %d: %v", prev.Index, next.Index, err)
			r.SkippedPairs++
			continue
		}
		if err != nil {
			return err
		}
		for _, l := range lanes {
			r.TotalChecks++
			if predicted[l] == actual[l] {
				r.TotalMatches++
				continue
			}
			r.Mismatches = append(r.Mismatches, Mismatch{
				Index:     index,
				Lane:      l,
				Predicted: predicted[l],
				Actual:    actual[l],
			})
		}
	}
	return nil
}

// VerifyRange predicts every known key whose predecessor index is also known
// by stepping the predecessor forward, and compares each lane exactly.
func VerifyRange(known []Known, cal *CalibrationSet, sched Schedule) (*Report, error) {
	lanes := make([]int, cal.Lanes())
	for l := range lanes {
		lanes[l] = l
	}

	r := new(Report)
	err := walkPairs(known, sched, lanes, r, func(prev, next Known, block, occ int) (uint, lane.Vector, lane.Vector, error) {
		if err := cal.checkVector(next.Lanes); err != nil {
			return 0, nil, nil, err
		}
		predicted, err := StepForward(prev.Lanes, cal, block, occ)
		return next.Index, predicted, next.Lanes, err
	})
	if err != nil {
		return nil, err
	}
	log.Debugf("Forward verification: %d/%d lanes matched, %d pairs skipped",
		r.TotalMatches, r.TotalChecks, r.SkippedPairs)
	return r, nil
}

// VerifyReverse predicts every known key whose successor index is also known
// by stepping the successor backward.  Lanes whose multiplier is even cannot
// be inverted; they are listed in NonInvertibleLanes and not checked.
func VerifyReverse(known []Known, cal *CalibrationSet, sched Schedule) (*Report, error) {
	r := new(Report)
	inverses := make([]byte, cal.Lanes())
	var lanes []int
	for l, a := range cal.Multipliers {
		inv, ok := Inverse256(a)
		if !ok {
			r.NonInvertibleLanes = append(r.NonInvertibleLanes, l)
			continue
		}
		inverses[l] = inv
		lanes = append(lanes, l)
	}

	err := walkPairs(known, sched, lanes, r, func(prev, next Known, block, occ int) (uint, lane.Vector, lane.Vector, error) {
		if err := cal.checkVector(prev.Lanes); err != nil {
			return 0, nil, nil, err
		}
		if err := cal.checkVector(next.Lanes); err != nil {
			return 0, nil, nil, err
		}
		drift, err := cal.driftVector(block, occ)
		if err != nil {
			return 0, nil, nil, err
		}
		predicted := make(lane.Vector, len(next.Lanes))
		for _, l := range lanes {
			predicted[l] = inverses[l] * (next.Lanes[l] - drift[l])
		}
		return prev.Index, predicted, prev.Lanes, nil
	})
	if err != nil {
		return nil, err
	}
	log.Debugf("Reverse verification: %d/%d lanes matched, %d pairs "+
		"skipped, %d lanes not invertible", r.TotalMatches, r.TotalChecks,
		r.SkippedPairs, len(r.NonInvertibleLanes))
	return r, nil
}
