// Package affine implements the byte-wise affine ladder model.
//
// Each lane of a key evolves independently modulo 256:
//
//	X_{i+1} = A·X_i + C   (mod 256)
//
// so that n steps collapse to
//
//	X_{i+n} = A^n·X_i + Γ_n(A)·C   (mod 256),  Γ_n(a) = 1 + a + ... + a^(n-1)
//
// 256 is not prime, so a lane's drift C is recovered by solving a linear
// congruence that may have one, many, or no solutions.  Every outcome is
// reported to the caller; nothing is resolved heuristically.
package affine

import (
	"fmt"

	"github.com/mahdiidarabi/keyladder/internal/lane"
)

// SolutionKind classifies the solution set of one lane's drift congruence.
type SolutionKind uint8

const (
	// Unique means Γ is odd and exactly one drift satisfies the lane.
	Unique SolutionKind = iota

	// Ambiguous means Γ is even and non-zero and several drifts satisfy
	// the lane.
	Ambiguous

	// Unconstrained means Γ is zero and the target is zero, so every drift
	// satisfies the lane.
	Unconstrained

	// Inconsistent means no drift satisfies the lane.
	Inconsistent
)

var solutionKindStrings = map[SolutionKind]string{
	Unique:        "unique",
	Ambiguous:     "ambiguous",
	Unconstrained: "unconstrained",
	Inconsistent:  "inconsistent",
}

// String returns the SolutionKind in human-readable form.
func (k SolutionKind) String() string {
	if s, ok := solutionKindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("Unknown SolutionKind (%d)", uint8(k))
}

// LaneSolution is the solution set of Γ·C ≡ Target (mod 256) for one lane.
// Candidates is sorted ascending and empty for Inconsistent lanes.
type LaneSolution struct {
	Lane       int
	Kind       SolutionKind
	Gamma      byte
	Target     byte
	Candidates []byte
}

// SolveDrift solves gamma·c ≡ target (mod 256) for c.
func SolveDrift(target, gamma byte) LaneSolution {
	sol := LaneSolution{Gamma: gamma, Target: target}

	if inv, ok := Inverse256(gamma); ok {
		sol.Kind = Unique
		sol.Candidates = []byte{inv * target}
		return sol
	}

	// Even gamma: solutions exist iff target is divisible by
	// gcd(gamma, 256), and there are exactly that many of them.  The space
	// is small enough to enumerate, which yields them already sorted.
	for c := 0; c < 256; c++ {
		if gamma*byte(c) == target {
			sol.Candidates = append(sol.Candidates, byte(c))
		}
	}
	switch {
	case len(sol.Candidates) == 0:
		sol.Kind = Inconsistent
	case gamma == 0:
		sol.Kind = Unconstrained
	default:
		sol.Kind = Ambiguous
	}
	return sol
}

// Calibration is the per-lane result of calibrating a drift vector from two
// keys n steps apart.
type Calibration struct {
	Step        uint64
	Multipliers []byte
	Lanes       []LaneSolution
}

// Calibrate solves, for every lane, the drift C in
//
//	xj ≡ A^n·xi + Γ_n(A)·C   (mod 256)
//
// xi, xj and multipliers must all have the same length.  The returned
// Calibration holds every lane's solution set regardless of outcome; use
// Drift to obtain a usable drift vector.
func Calibrate(xi, xj lane.Vector, n uint64, multipliers []byte) (*Calibration, error) {
	if len(xi) != len(multipliers) || len(xj) != len(multipliers) {
		str := fmt.Sprintf("lane vectors of length %d and %d do not match "+
			"%d multipliers", len(xi), len(xj), len(multipliers))
		return nil, lane.MalformedVectorError(str)
	}
	if n == 0 {
		return nil, makeError(ErrInvalidStepCount, "calibration requires "+
			"at least one step")
	}

	cal := &Calibration{
		Step:        n,
		Multipliers: append([]byte(nil), multipliers...),
		Lanes:       make([]LaneSolution, len(multipliers)),
	}
	for l, a := range multipliers {
		gamma := GeomSum(a, n)
		target := xj[l] - PowMod256(a, n)*xi[l]
		sol := SolveDrift(target, gamma)
		sol.Lane = l
		cal.Lanes[l] = sol
	}
	log.Tracef("Calibrated %d lanes over %d steps", len(cal.Lanes), n)
	return cal, nil
}

// Drift returns the drift vector when every lane has a unique solution.
// When any lane is inconsistent the error is ErrNoCalibrationSolution.
// Otherwise, when any lane has several solutions, the error is an
// *AmbiguityError listing the full candidate sets.
func (c *Calibration) Drift() ([]byte, error) {
	var inconsistent []int
	var ambiguous []LaneSolution
	drift := make([]byte, len(c.Lanes))
	for i, sol := range c.Lanes {
		switch sol.Kind {
		case Unique:
			drift[i] = sol.Candidates[0]
		case Inconsistent:
			inconsistent = append(inconsistent, sol.Lane)
		default:
			ambiguous = append(ambiguous, sol)
		}
	}
	if len(inconsistent) > 0 {
		str := fmt.Sprintf("no drift satisfies lanes %v over %d steps",
			inconsistent, c.Step)
		return nil, makeError(ErrNoCalibrationSolution, str)
	}
	if len(ambiguous) > 0 {
		return nil, &AmbiguityError{Lanes: ambiguous}
	}
	return drift, nil
}
