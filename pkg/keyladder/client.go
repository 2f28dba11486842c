package keyladder

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/mahdiidarabi/keyladder/internal/affine"
	"github.com/mahdiidarabi/keyladder/internal/bruteforce"
	"github.com/mahdiidarabi/keyladder/internal/checkpoint"
	"github.com/mahdiidarabi/keyladder/internal/keyspace"
	"github.com/mahdiidarabi/keyladder/internal/keystore"
	"github.com/mahdiidarabi/keyladder/internal/lane"
	"github.com/mahdiidarabi/keyladder/internal/verifier"
)

// Client is the main entry point for calibrating, evaluating and searching
// keys.  Configure it with the With methods before use; after that it is
// safe for concurrent use.
type Client struct {
	model    ModelConfig
	search   SearchConfig
	verifier *verifier.Verifier
	keys     keystore.Source
	store    checkpoint.Store

	mtx         sync.Mutex
	set         *affine.CalibrationSet
	coordinator *bruteforce.Coordinator
}

// NewClient creates a new client with default settings: the default model,
// the secp256k1 backend and an in-memory checkpoint store.
func NewClient() *Client {
	return &Client{
		model:    DefaultModelConfig(),
		search:   DefaultSearchConfig(),
		verifier: verifier.New().WithBackend(verifier.Secp256k1Backend{}),
		store:    checkpoint.NewMemory(),
	}
}

// WithModelConfig sets the affine model configuration.  Any calibration set
// built for the previous model is discarded.
func (c *Client) WithModelConfig(config ModelConfig) *Client {
	c.model = config
	c.set = nil
	return c
}

// WithSearchConfig sets the brute-force search configuration.
func (c *Client) WithSearchConfig(config SearchConfig) *Client {
	c.search = config
	c.coordinator = nil
	return c
}

// WithBackend sets the point multiplication backend of the verifier.
func (c *Client) WithBackend(b verifier.Backend) *Client {
	c.verifier = verifier.New().WithBackend(b)
	c.coordinator = nil
	return c
}

// WithKeySource sets the source of known keys and target addresses.
func (c *Client) WithKeySource(src keystore.Source) *Client {
	c.keys = src
	return c
}

// WithCheckpointStore sets the store search progress is persisted to.
func (c *Client) WithCheckpointStore(store checkpoint.Store) *Client {
	c.store = store
	c.coordinator = nil
	return c
}

// WithCalibrationSet sets the calibration used for evaluation, typically one
// loaded with affine.LoadCalibrationSet.
func (c *Client) WithCalibrationSet(set *affine.CalibrationSet) *Client {
	c.set = set
	return c
}

// CalibrationSet returns the client's calibration set, creating an empty one
// with the model's multipliers when none is set.
func (c *Client) CalibrationSet() *affine.CalibrationSet {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.set == nil {
		c.set = affine.NewCalibrationSet(c.model.Multipliers)
	}
	return c.set
}

func (c *Client) codec() (*lane.Codec, error) {
	codec, err := lane.NewCodec(c.model.Lanes)
	if err != nil {
		return nil, err
	}
	if len(c.model.Multipliers) != codec.Lanes() {
		str := fmt.Sprintf("model has %d multipliers for %d lanes",
			len(c.model.Multipliers), codec.Lanes())
		return nil, makeError(ErrModelMismatch, str)
	}
	return codec, nil
}

// calibrationSet returns the calibration set after checking it matches the
// model.
func (c *Client) calibrationSet(codec *lane.Codec) (*affine.CalibrationSet, error) {
	set := c.CalibrationSet()
	if set.Lanes() != codec.Lanes() {
		str := fmt.Sprintf("calibration set has %d lanes, model has %d",
			set.Lanes(), codec.Lanes())
		return nil, makeError(ErrModelMismatch, str)
	}
	return set, nil
}

// knownKey returns the solved key of index n from the key source.
func (c *Client) knownKey(n uint) (keyspace.Key, error) {
	row, err := c.row(n)
	if err != nil {
		return keyspace.Key{}, err
	}
	if !row.Solved {
		str := fmt.Sprintf("puzzle %d is not solved", n)
		return keyspace.Key{}, makeError(ErrKeyUnavailable, str)
	}
	return row.Key, nil
}

func (c *Client) row(n uint) (keyspace.Entry, error) {
	if c.keys == nil {
		return keyspace.Entry{}, makeError(ErrNoKeySource, "no key source configured")
	}
	row, ok, err := c.keys.Get(n)
	if err != nil {
		return keyspace.Entry{}, err
	}
	if !ok {
		str := fmt.Sprintf("no row for puzzle %d", n)
		return keyspace.Entry{}, makeError(ErrKeyUnavailable, str)
	}
	return row, nil
}

// Calibrate solves the drift that carries keyA to keyB in step applications
// of the recurrence.  A nil multipliers slice selects the model's.  The
// returned calibration reports each lane's solution kind; its Drift method
// yields the drift vector only when every lane is uniquely determined.
func (c *Client) Calibrate(keyA, keyB keyspace.Key, step uint64,
	multipliers []byte) (*affine.Calibration, error) {

	codec, err := c.codec()
	if err != nil {
		return nil, err
	}
	if multipliers == nil {
		multipliers = c.model.Multipliers
	}
	return affine.Calibrate(codec.Decode(keyA), codec.Decode(keyB), step,
		multipliers)
}

// CalibrateIndices calibrates from the known keys at indices a < b and, when
// the drift is unique, installs it in the calibration set at the block and
// occurrence of a.  An ambiguous or inconsistent calibration is returned
// together with the error from Calibration.Drift and nothing is installed.
func (c *Client) CalibrateIndices(a, b uint) (*affine.Calibration, error) {
	if b <= a {
		str := fmt.Sprintf("calibration from puzzle %d to %d does not step "+
			"forward", a, b)
		return nil, affine.Error{Err: affine.ErrInvalidStepCount, Description: str}
	}
	keyA, err := c.knownKey(a)
	if err != nil {
		return nil, err
	}
	keyB, err := c.knownKey(b)
	if err != nil {
		return nil, err
	}
	cal, err := c.Calibrate(keyA, keyB, uint64(b-a), nil)
	if err != nil {
		return nil, err
	}
	drift, err := cal.Drift()
	if err != nil {
		return cal, err
	}
	if err := c.PatchDrift(a, drift); err != nil {
		return cal, err
	}

	set := c.CalibrationSet()
	c.mtx.Lock()
	if set.RangeLow == 0 || a < set.RangeLow {
		set.RangeLow = a
	}
	if b > set.RangeHigh {
		set.RangeHigh = b
	}
	c.mtx.Unlock()
	return cal, nil
}

// PatchDrift installs drift for the block and occurrence that index belongs
// to under the model's schedule.
func (c *Client) PatchDrift(index uint, drift []byte) error {
	set := c.CalibrationSet()
	block, occ := c.model.Schedule.Locate(index)
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if err := set.SetDrift(block, occ, drift); err != nil {
		return err
	}
	log.Debugf("Installed drift for block %d occurrence %d (puzzle %d)",
		block, occ, index)
	return nil
}

// known returns the lane vectors of every solved key in [low, high].
func (c *Client) known(codec *lane.Codec, low, high uint) ([]affine.Known, error) {
	if c.keys == nil {
		return nil, makeError(ErrNoKeySource, "no key source configured")
	}
	rows, err := c.keys.List(low, high)
	if err != nil {
		return nil, err
	}
	known := make([]affine.Known, 0, len(rows))
	for _, row := range rows {
		if !row.Solved {
			continue
		}
		known = append(known, affine.Known{
			Index: row.Index,
			Lanes: codec.Decode(row.Key),
		})
	}
	return known, nil
}

// VerifyRange predicts every known key in [low, high] from its predecessor
// and compares the prediction lane by lane.
func (c *Client) VerifyRange(low, high uint) (*affine.Report, error) {
	codec, err := c.codec()
	if err != nil {
		return nil, err
	}
	set, err := c.calibrationSet(codec)
	if err != nil {
		return nil, err
	}
	known, err := c.known(codec, low, high)
	if err != nil {
		return nil, err
	}
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return affine.VerifyRange(known, set, c.model.Schedule)
}

// VerifyReverse predicts every known key in [low, high] from its successor.
// Lanes with even multipliers are excluded and listed in the report.
func (c *Client) VerifyReverse(low, high uint) (*affine.Report, error) {
	codec, err := c.codec()
	if err != nil {
		return nil, err
	}
	set, err := c.calibrationSet(codec)
	if err != nil {
		return nil, err
	}
	known, err := c.known(codec, low, high)
	if err != nil {
		return nil, err
	}
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return affine.VerifyReverse(known, set, c.model.Schedule)
}

// Predict evaluates the recurrence one step from the known key at n-1 to
// produce the candidate key for n.  Both keys must fit in the model's lanes.
func (c *Client) Predict(n uint) (keyspace.Key, error) {
	if n < 2 {
		str := fmt.Sprintf("puzzle %d has no predecessor", n)
		return keyspace.Key{}, makeError(ErrKeyUnavailable, str)
	}
	codec, err := c.codec()
	if err != nil {
		return keyspace.Key{}, err
	}
	set, err := c.calibrationSet(codec)
	if err != nil {
		return keyspace.Key{}, err
	}
	prev, err := c.knownKey(n - 1)
	if err != nil {
		return keyspace.Key{}, err
	}
	if !codec.Fits(prev) {
		str := fmt.Sprintf("key of puzzle %d has %d bits, the model covers %d",
			n-1, prev.BitLen(), codec.Lanes()*8)
		return keyspace.Key{}, makeError(ErrKeyTooWide, str)
	}

	block, occ := c.model.Schedule.Locate(n - 1)
	c.mtx.Lock()
	next, err := affine.StepForward(codec.Decode(prev), set, block, occ)
	c.mtx.Unlock()
	if err != nil {
		return keyspace.Key{}, err
	}
	return codec.Encode(next)
}

// Check predicts the key for n and verifies it against the address stored
// for n.  A wrong prediction is a normal result with Match false.
func (c *Client) Check(n uint) (verifier.Result, error) {
	row, err := c.row(n)
	if err != nil {
		return verifier.Result{}, err
	}
	if row.Address == "" {
		str := fmt.Sprintf("puzzle %d has no address", n)
		return verifier.Result{}, makeError(ErrKeyUnavailable, str)
	}
	candidate, err := c.Predict(n)
	if err != nil {
		return verifier.Result{}, err
	}
	return c.verifier.Verify(candidate, row.Address)
}

// DeriveAddress returns the address of scalar in the given encoding.
func (c *Client) DeriveAddress(scalar keyspace.Key, enc verifier.Encoding) (string, error) {
	return c.verifier.DeriveAddress(scalar, enc)
}

// searcher returns the coordinator for the current configuration.
func (c *Client) searcher() *bruteforce.Coordinator {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.coordinator == nil {
		c.coordinator = bruteforce.New(bruteforce.Config{
			Verifier:           c.verifier,
			Store:              c.store,
			CheckpointInterval: c.search.CheckpointInterval,
			RetryAttempts:      c.search.RetryAttempts,
			RetryBackoff:       c.search.RetryBackoff,
			LogInterval:        c.search.LogInterval,
		})
	}
	return c.coordinator
}

// Search scans [low, high] for the key of address.  A workers value of zero
// or less selects the configured worker count.
func (c *Client) Search(ctx context.Context, puzzle uint, address string,
	low, high *big.Int, workers int) (*bruteforce.Outcome, error) {

	if workers <= 0 {
		workers = c.search.Workers
	}
	return c.searcher().Search(ctx, puzzle, address, low, high, workers)
}

// SearchPuzzle scans the whole range of puzzle for the address stored in the
// key source.
func (c *Client) SearchPuzzle(ctx context.Context, puzzle uint) (*bruteforce.Outcome, error) {
	row, err := c.row(puzzle)
	if err != nil {
		return nil, err
	}
	if row.Address == "" {
		str := fmt.Sprintf("puzzle %d has no address", puzzle)
		return nil, makeError(ErrKeyUnavailable, str)
	}
	low, high, err := SearchRange(puzzle)
	if err != nil {
		return nil, err
	}
	return c.Search(ctx, puzzle, row.Address, low, high, 0)
}

// SearchRange returns the range of puzzle n limited to valid scalars.  Only
// the range of puzzle 256 reaches past the group order.
func SearchRange(n uint) (low, high *big.Int, err error) {
	low, high, err = keyspace.PuzzleRange(n)
	if err != nil {
		return nil, nil, err
	}
	maxScalar := verifier.GroupOrder()
	maxScalar.Sub(maxScalar, big.NewInt(1))
	if high.Cmp(maxScalar) > 0 {
		high = maxScalar
	}
	return low, high, nil
}

// Progress returns a live view of the most recent search.
func (c *Client) Progress() bruteforce.Stats {
	return c.searcher().Snapshot()
}

// Status returns the persisted state of a puzzle's search.
func (c *Client) Status(puzzle uint) (*checkpoint.Snapshot, error) {
	return c.store.Snapshot(puzzle)
}
