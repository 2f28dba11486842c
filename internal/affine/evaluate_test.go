package affine

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/mahdiidarabi/keyladder/internal/lane"
)

// testSet returns a 16 lane calibration set with random multipliers and a
// full drift table for blocks 0 and 1.  When odd is set every multiplier is
// odd.
func testSet(rng *rand.Rand, odd bool) *CalibrationSet {
	multipliers := make([]byte, lane.DefaultLanes)
	for l := range multipliers {
		multipliers[l] = byte(rng.Intn(256))
		if odd {
			multipliers[l] |= 1
		}
	}
	set := NewCalibrationSet(multipliers)
	for block := 0; block < 2; block++ {
		for occ := 0; occ < Occurrences; occ++ {
			drift := make([]byte, lane.DefaultLanes)
			rng.Read(drift)
			if err := set.SetDrift(block, occ, drift); err != nil {
				panic(err)
			}
		}
	}
	return set
}

func randomVector(rng *rand.Rand) lane.Vector {
	v := make(lane.Vector, lane.DefaultLanes)
	rng.Read(v)
	return v
}

// sequence generates count consecutive known keys starting at index start by
// stepping forward under sched.
func sequence(t *testing.T, set *CalibrationSet, sched Schedule, start uint, count int, first lane.Vector) []Known {
	t.Helper()
	known := []Known{{Index: start, Lanes: first}}
	v := first
	for i := 1; i < count; i++ {
		idx := start + uint(i) - 1
		block, occ := sched.Locate(idx)
		next, err := StepForward(v, set, block, occ)
		if err != nil {
			t.Fatalf("Failed to generate index %d: %v", idx+1, err)
		}
		known = append(known, Known{Index: idx + 1, Lanes: next})
		v = next
	}
	return known
}

func TestStepBackward_InvertsForward(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	set := testSet(rng, true)
	for i := 0; i < 500; i++ {
		v := randomVector(rng)
		block, occ := rng.Intn(2), rng.Intn(Occurrences)
		fwd, err := StepForward(v, set, block, occ)
		if err != nil {
			t.Fatalf("Failed to step forward: %v", err)
		}
		back, err := StepBackward(fwd, set, block, occ)
		if err != nil {
			t.Fatalf("Failed to step backward: %v", err)
		}
		if !back.Equal(v) {
			t.Fatalf("Backward step mismatch. Got: %v, Expected: %v", back, v)
		}
	}
}

func TestStepBackward_EvenMultiplier(t *testing.T) {
	set := NewCalibrationSet([]byte{3, 4, 5})
	if err := set.SetDrift(0, 0, []byte{1, 1, 1}); err != nil {
		t.Fatalf("Failed to set drift: %v", err)
	}
	_, err := StepBackward(lane.Vector{1, 2, 3}, set, 0, 0)
	if !errors.Is(err, ErrNonInvertibleMultiplier) {
		t.Fatalf("Expected ErrNonInvertibleMultiplier, got %v", err)
	}
}

func TestStepNForward_MatchesIteration(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	set := testSet(rng, false)
	for i := 0; i < 100; i++ {
		v := randomVector(rng)
		n := uint64(rng.Intn(300))
		want := v.Clone()
		for k := uint64(0); k < n; k++ {
			var err error
			if want, err = StepForward(want, set, 1, 0); err != nil {
				t.Fatalf("Failed to step: %v", err)
			}
		}
		got, err := StepNForward(v, set, 1, 0, n)
		if err != nil {
			t.Fatalf("Failed to jump: %v", err)
		}
		if !got.Equal(want) {
			t.Fatalf("n=%d: got %v, want %v", n, got, want)
		}
	}
}

func TestStep_Errors(t *testing.T) {
	set := NewCalibrationSet([]byte{1, 3})
	if err := set.SetDrift(0, 0, []byte{1, 2}); err != nil {
		t.Fatalf("Failed to set drift: %v", err)
	}

	if _, err := StepForward(lane.Vector{1, 2}, set, 5, 0); !errors.Is(err, ErrMissingDrift) {
		t.Errorf("Missing block: expected ErrMissingDrift, got %v", err)
	}
	if _, err := StepForward(lane.Vector{1, 2}, set, 0, 2); !errors.Is(err, ErrMissingDrift) {
		t.Errorf("Bad occurrence: expected ErrMissingDrift, got %v", err)
	}
	if _, err := StepForward(lane.Vector{1}, set, 0, 0); !errors.Is(err, lane.ErrMalformedLaneVector) {
		t.Errorf("Short vector: expected ErrMalformedLaneVector, got %v", err)
	}
	if err := set.SetDrift(0, 0, []byte{1}); !errors.Is(err, lane.ErrMalformedLaneVector) {
		t.Errorf("Short drift: expected ErrMalformedLaneVector, got %v", err)
	}
	if err := set.SetDrift(0, Occurrences, []byte{1, 2}); !errors.Is(err, ErrInvalidCalibration) {
		t.Errorf("Bad occurrence: expected ErrInvalidCalibration, got %v", err)
	}
}

func TestSchedule_Locate(t *testing.T) {
	sched := DefaultSchedule(29)
	tests := []struct {
		index uint
		block int
		occ   int
	}{
		{29, 0, 0},
		{44, 0, 0},
		{45, 0, 1},
		{60, 0, 1},
		{61, 1, 0},
		{77, 1, 1},
		{28, -1, 1},
		{0, -1, 0},
	}
	for _, test := range tests {
		block, occ := sched.Locate(test.index)
		if block != test.block || occ != test.occ {
			t.Errorf("Locate(%d) = (%d, %d), want (%d, %d)", test.index,
				block, occ, test.block, test.occ)
		}
	}
}

func TestVerifyRange(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	set := testSet(rng, false)
	sched := DefaultSchedule(29)
	known := sequence(t, set, sched, 29, 30, randomVector(rng))

	report, err := VerifyRange(known, set, sched)
	if err != nil {
		t.Fatalf("Failed to verify: %v", err)
	}
	if !report.Perfect() || report.TotalChecks != 29*lane.DefaultLanes {
		t.Fatalf("Unexpected report: %s", spew.Sdump(report))
	}
	if report.Accuracy() != 1 {
		t.Errorf("Accuracy = %f, want 1", report.Accuracy())
	}

	// Drop index 40 so the pairs 39->40 and 40->41 collapse into one
	// non-adjacent pair, and corrupt lane 5 of index 50.
	var edited []Known
	for _, k := range known {
		switch k.Index {
		case 40:
			continue
		case 50:
			k.Lanes = k.Lanes.Clone()
			k.Lanes[5]++
		}
		edited = append(edited, k)
	}
	report, err = VerifyRange(edited, set, sched)
	if err != nil {
		t.Fatalf("Failed to verify: %v", err)
	}
	if report.SkippedPairs != 1 {
		t.Errorf("SkippedPairs = %d, want 1", report.SkippedPairs)
	}
	// The first mismatch is lane 5 of index 50.  Predicting 51 from the
	// corrupted value may add more.
	if len(report.Mismatches) < 1 || report.Mismatches[0].Index != 50 ||
		report.Mismatches[0].Lane != 5 {

		t.Fatalf("Unexpected mismatches: %s", spew.Sdump(report.Mismatches))
	}
	if report.Perfect() {
		t.Error("Report with mismatches reported perfect")
	}
}

func TestVerifyRange_MissingDrift(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	set := testSet(rng, false)
	sched := DefaultSchedule(0)

	// Blocks 0 and 1 are calibrated, block 2 starts at index 64.
	known := sequence(t, set, sched, 60, 4, randomVector(rng))
	known = append(known, Known{Index: 64, Lanes: randomVector(rng)},
		Known{Index: 65, Lanes: randomVector(rng)})

	report, err := VerifyRange(known, set, sched)
	if err != nil {
		t.Fatalf("Failed to verify: %v", err)
	}
	if report.SkippedPairs != 1 {
		t.Errorf("SkippedPairs = %d, want 1", report.SkippedPairs)
	}
	if report.TotalChecks != 4*lane.DefaultLanes {
		t.Errorf("TotalChecks = %d, want %d", report.TotalChecks,
			4*lane.DefaultLanes)
	}
}

func TestVerifyReverse(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	set := testSet(rng, true)
	set.Multipliers[2] = 4
	set.Multipliers[9] = 0
	sched := DefaultSchedule(29)
	known := sequence(t, set, sched, 29, 20, randomVector(rng))

	report, err := VerifyReverse(known, set, sched)
	if err != nil {
		t.Fatalf("Failed to verify: %v", err)
	}
	if len(report.NonInvertibleLanes) != 2 ||
		report.NonInvertibleLanes[0] != 2 || report.NonInvertibleLanes[1] != 9 {

		t.Fatalf("NonInvertibleLanes = %v, want [2 9]", report.NonInvertibleLanes)
	}
	if !report.Perfect() || report.TotalChecks != 19*(lane.DefaultLanes-2) {
		t.Fatalf("Unexpected report: %s", spew.Sdump(report))
	}
}

func TestReport_Empty(t *testing.T) {
	var r Report
	if r.Accuracy() != 0 {
		t.Errorf("Accuracy of empty report = %f", r.Accuracy())
	}
	if !r.Perfect() {
		t.Error("Empty report should be perfect")
	}
}
