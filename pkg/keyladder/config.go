package keyladder

import (
	"time"

	"github.com/mahdiidarabi/keyladder/internal/affine"
	"github.com/mahdiidarabi/keyladder/internal/bruteforce"
	"github.com/mahdiidarabi/keyladder/internal/lane"
)

// DefaultScheduleBase is the first sequence index of block zero in the
// default schedule.
const DefaultScheduleBase = 29

// DefaultMultipliers returns the per-lane multipliers of the default model.
// Lanes 1, 5, 9 and 13 carry the non-trivial multipliers; every other lane
// is a pure drift.
func DefaultMultipliers() []byte {
	a := make([]byte, lane.DefaultLanes)
	for i := range a {
		a[i] = 1
	}
	a[1] = 91
	a[5] = 169
	a[9] = 32
	a[13] = 182
	return a
}

// ModelConfig configures the affine model.
type ModelConfig struct {
	// Lanes is the number of low-order key bytes modelled.
	Lanes int

	// Multipliers holds one multiplier per lane.
	Multipliers []byte

	// Schedule maps sequence indices to drift blocks and occurrences.
	Schedule affine.Schedule
}

// DefaultModelConfig returns the default model: 16 lanes, the default
// multipliers and 32-wide blocks starting at DefaultScheduleBase.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Lanes:       lane.DefaultLanes,
		Multipliers: DefaultMultipliers(),
		Schedule:    affine.DefaultSchedule(DefaultScheduleBase),
	}
}

// SearchConfig configures brute-force searches.
type SearchConfig struct {
	// Workers is the number of concurrent tasks (0 = one per CPU).
	Workers int

	// CheckpointInterval is the number of keys a worker checks between
	// checkpoints.
	CheckpointInterval uint64

	// RetryAttempts and RetryBackoff bound the retries of a failed
	// checkpoint write.  The backoff doubles after each failure.
	RetryAttempts int
	RetryBackoff  time.Duration

	// LogInterval is the period of the progress log (negative disables).
	LogInterval time.Duration
}

// DefaultSearchConfig returns a sensible default configuration.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Workers:            0, // Auto-detect
		CheckpointInterval: bruteforce.DefaultCheckpointInterval,
		RetryAttempts:      bruteforce.DefaultRetryAttempts,
		RetryBackoff:       bruteforce.DefaultRetryBackoff,
		LogInterval:        bruteforce.DefaultLogInterval,
	}
}
