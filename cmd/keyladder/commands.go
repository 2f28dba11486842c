package main

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/mahdiidarabi/keyladder/internal/affine"
	"github.com/mahdiidarabi/keyladder/internal/bruteforce"
	"github.com/mahdiidarabi/keyladder/internal/checkpoint"
	"github.com/mahdiidarabi/keyladder/internal/keyspace"
	"github.com/mahdiidarabi/keyladder/internal/keystore"
	"github.com/mahdiidarabi/keyladder/internal/verifier"
	"github.com/mahdiidarabi/keyladder/pkg/keyladder"
)

// maxMismatchesShown limits the mismatches printed by the verify command.
const maxMismatchesShown = 20

func printCalibration(cal *affine.Calibration) {
	fmt.Printf("Calibration over %d steps:\n", cal.Step)
	for _, l := range cal.Lanes {
		fmt.Printf("  lane %2d  A=%3d  gamma=%3d  %-13s", l.Lane,
			cal.Multipliers[l.Lane], l.Gamma, l.Kind)
		switch l.Kind {
		case affine.Unique:
			fmt.Printf("  C=%d\n", l.Candidates[0])
		case affine.Ambiguous:
			fmt.Printf("  C in %v\n", l.Candidates)
		case affine.Unconstrained:
			fmt.Printf("  C is any value\n")
		default:
			fmt.Println()
		}
	}
}

// loadArtifact loads the calibration artifact at path.  A missing file
// yields nil when allowMissing is set.
func loadArtifact(path string, allowMissing bool) (*affine.CalibrationSet, error) {
	set, err := affine.LoadCalibrationSet(path)
	if err != nil {
		if allowMissing && errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return set, nil
}

// calibrateCmd solves the drift between two known keys.
type calibrateCmd struct {
	cfg *config

	KeyA     string `long:"keya" description:"First key in hex; use with --keyb and --step"`
	KeyB     string `long:"keyb" description:"Second key in hex"`
	Step     uint64 `long:"step" description:"Number of recurrence steps from keya to keyb"`
	From     uint   `long:"from" description:"Index of the first known key in the datastore"`
	To       uint   `long:"to" description:"Index of the second known key in the datastore"`
	Artifact string `short:"o" long:"artifact" description:"Calibration artifact to update with the solved drift (created when missing)"`
}

func (c *calibrateCmd) Execute(args []string) error {
	client, err := c.cfg.newClient()
	if err != nil {
		return err
	}

	if c.KeyA != "" || c.KeyB != "" {
		keyA, err := keyspace.FromHex(c.KeyA)
		if err != nil {
			return err
		}
		keyB, err := keyspace.FromHex(c.KeyB)
		if err != nil {
			return err
		}
		cal, err := client.Calibrate(keyA, keyB, c.Step, nil)
		if err != nil {
			return err
		}
		printCalibration(cal)
		_, err = cal.Drift()
		return err
	}

	if c.From == 0 || c.To == 0 {
		return errors.New("calibrate needs --keya/--keyb/--step or --from/--to")
	}
	keys, closeKeys, err := c.cfg.openKeySource()
	if err != nil {
		return err
	}
	defer closeKeys()
	client.WithKeySource(keys)

	if c.Artifact != "" {
		set, err := loadArtifact(c.Artifact, true)
		if err != nil {
			return err
		}
		if set != nil {
			client.WithCalibrationSet(set)
		}
	}

	cal, err := client.CalibrateIndices(c.From, c.To)
	if cal != nil {
		printCalibration(cal)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Installed drift for puzzle %d (%d blocks calibrated)\n", c.From,
		len(client.CalibrationSet().Blocks()))

	if c.Artifact == "" {
		return nil
	}
	if err := client.CalibrationSet().WriteFile(c.Artifact); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", c.Artifact)
	return nil
}

// verifyCmd checks a calibration against the known keys.
type verifyCmd struct {
	cfg *config

	Artifact string `short:"a" long:"artifact" description:"Calibration artifact" required:"true"`
	Low      uint   `long:"low" description:"First index to verify (defaults to the artifact range)"`
	High     uint   `long:"high" description:"Last index to verify (defaults to the artifact range)"`
	Reverse  bool   `long:"reverse" description:"Predict each key from its successor instead"`
	Predict  uint   `long:"predict" description:"Predict the key of this index from its predecessor and check it against the stored address"`
}

func (c *verifyCmd) Execute(args []string) error {
	set, err := loadArtifact(c.Artifact, false)
	if err != nil {
		return err
	}
	client, err := c.cfg.newClient()
	if err != nil {
		return err
	}
	keys, closeKeys, err := c.cfg.openKeySource()
	if err != nil {
		return err
	}
	defer closeKeys()
	client.WithKeySource(keys).WithCalibrationSet(set)

	if c.Predict != 0 {
		result, err := client.Check(c.Predict)
		if err != nil {
			return err
		}
		fmt.Printf("Candidate for puzzle %d: %s\n", c.Predict, result.Candidate.Hex())
		fmt.Printf("  %s address %s, expected %s, match %v\n",
			result.Encoding, result.Address, result.Expected, result.Match)
		return nil
	}

	low, high := c.Low, c.High
	if low == 0 {
		low = set.RangeLow
	}
	if high == 0 {
		high = set.RangeHigh
	}
	var report *affine.Report
	if c.Reverse {
		report, err = client.VerifyReverse(low, high)
	} else {
		report, err = client.VerifyRange(low, high)
	}
	if err != nil {
		return err
	}

	direction := "Forward"
	if c.Reverse {
		direction = "Reverse"
	}
	fmt.Printf("%s verification of [%d, %d]: %d/%d lanes match (%.2f%%), "+
		"%d pairs skipped\n", direction, low, high, report.TotalMatches,
		report.TotalChecks, report.Accuracy()*100, report.SkippedPairs)
	if len(report.NonInvertibleLanes) > 0 {
		fmt.Printf("  Lanes excluded (even multiplier): %v\n",
			report.NonInvertibleLanes)
	}
	for i, m := range report.Mismatches {
		if i == maxMismatchesShown {
			fmt.Printf("  ... %d more\n", len(report.Mismatches)-i)
			break
		}
		fmt.Printf("  puzzle %d lane %d: predicted %d, actual %d\n", m.Index,
			m.Lane, m.Predicted, m.Actual)
	}
	return nil
}

// searchCmd scans a key range for an address.
type searchCmd struct {
	cfg *config

	Puzzle             uint          `short:"p" long:"puzzle" description:"Puzzle index the search belongs to" required:"true"`
	Address            string        `short:"t" long:"address" description:"Target address (defaults to the datastore row of the puzzle)"`
	Low                string        `long:"low" description:"First key of the range in hex (defaults to the puzzle range)"`
	High               string        `long:"high" description:"Last key of the range in hex (defaults to the puzzle range)"`
	Workers            int           `short:"w" long:"workers" description:"Number of parallel workers (0 = one per CPU)"`
	CheckpointInterval uint64        `long:"checkpointinterval" description:"Keys each worker checks between checkpoints"`
	RetryAttempts      int           `long:"retryattempts" description:"Attempts per checkpoint write"`
	RetryBackoff       time.Duration `long:"retrybackoff" description:"Wait after the first failed checkpoint write"`
	LogInterval        time.Duration `long:"loginterval" description:"Period of the progress log"`
	Reset              bool          `long:"reset" description:"Discard existing checkpoints of the puzzle first"`
}

func newSearchCmd(cfg *config) *searchCmd {
	def := keyladder.DefaultSearchConfig()
	return &searchCmd{
		cfg:                cfg,
		CheckpointInterval: def.CheckpointInterval,
		RetryAttempts:      def.RetryAttempts,
		RetryBackoff:       def.RetryBackoff,
		LogInterval:        def.LogInterval,
	}
}

// searchRange returns the range to scan, defaulting each bound to the
// puzzle's range.
func (c *searchCmd) searchRange() (*big.Int, *big.Int, error) {
	low, high, err := keyladder.SearchRange(c.Puzzle)
	if err != nil {
		return nil, nil, err
	}
	if c.Low != "" {
		k, err := keyspace.FromHex(c.Low)
		if err != nil {
			return nil, nil, err
		}
		low = k.Big()
	}
	if c.High != "" {
		k, err := keyspace.FromHex(c.High)
		if err != nil {
			return nil, nil, err
		}
		high = k.Big()
	}
	return low, high, nil
}

func (c *searchCmd) Execute(args []string) error {
	low, high, err := c.searchRange()
	if err != nil {
		return err
	}

	store, err := c.cfg.openCheckpoints()
	if err != nil {
		return err
	}
	defer store.Close()
	if c.Reset {
		if err := store.Reset(c.Puzzle); err != nil {
			return err
		}
	}

	client, err := c.cfg.newClient()
	if err != nil {
		return err
	}
	client.WithCheckpointStore(store).WithSearchConfig(keyladder.SearchConfig{
		Workers:            c.Workers,
		CheckpointInterval: c.CheckpointInterval,
		RetryAttempts:      c.RetryAttempts,
		RetryBackoff:       c.RetryBackoff,
		LogInterval:        c.LogInterval,
	})

	address := c.Address
	if address == "" {
		keys, closeKeys, err := c.cfg.openKeySource()
		if err != nil {
			return err
		}
		row, ok, err := keys.Get(c.Puzzle)
		closeKeys()
		if err != nil {
			return err
		}
		if !ok || row.Address == "" {
			return fmt.Errorf("no address for puzzle %d; pass --address",
				c.Puzzle)
		}
		address = row.Address
	}

	ctx := shutdownListener()
	out, err := client.Search(ctx, c.Puzzle, address, low, high, c.Workers)
	if err != nil {
		return err
	}
	printOutcome(out)
	return nil
}

func printOutcome(out *bruteforce.Outcome) {
	fmt.Printf("Puzzle %d: %s\n", out.Puzzle, out.Status)
	fmt.Printf("  %d keys checked (%d searched in total) in %s, %.0f keys/s\n",
		out.Checked, out.Searched, out.Elapsed.Round(time.Millisecond), out.Rate)
	if out.Status == checkpoint.StatusPaused && out.ETA > 0 {
		fmt.Printf("  %s keys remaining, ETA %s\n", out.Remaining,
			out.ETA.Round(time.Second))
	}
	if out.Key != nil {
		fmt.Printf("  Key: %s\n", out.Key.Hex())
		compressed := out.Encoding == verifier.Compressed
		if w, err := verifier.WIF(*out.Key, compressed); err == nil {
			fmt.Printf("  WIF: %s\n", w)
		}
	}
	for _, t := range out.Tasks {
		fmt.Printf("  task %d [%s, %s] %s: %d checked, %.0f keys/s\n",
			t.Task.ID, t.Task.Low.Text(16), t.Task.High.Text(16), t.Status,
			t.Checked, t.Rate)
	}
	for _, err := range out.CheckpointErrors {
		fmt.Printf("  checkpoint error: %v\n", err)
	}
}

// deriveCmd prints the address of a key.
type deriveCmd struct {
	cfg *config

	Uncompressed bool `short:"u" long:"uncompressed" description:"Use the uncompressed public key encoding"`
	WIF          bool `long:"wif" description:"Also print the key in wallet import format"`
	Args         struct {
		Key string `positional-arg-name:"key" description:"Key in hex"`
	} `positional-args:"yes" required:"yes"`
}

func (c *deriveCmd) Execute(args []string) error {
	key, err := keyspace.FromHex(c.Args.Key)
	if err != nil {
		return err
	}
	client, err := c.cfg.newClient()
	if err != nil {
		return err
	}
	enc := verifier.Compressed
	if c.Uncompressed {
		enc = verifier.Uncompressed
	}
	addr, err := client.DeriveAddress(key, enc)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s)\n", addr, enc)
	if c.WIF {
		w, err := verifier.WIF(key, !c.Uncompressed)
		if err != nil {
			return err
		}
		fmt.Printf("WIF: %s\n", w)
	}
	return nil
}

// statusCmd prints the checkpointed state of a search.
type statusCmd struct {
	cfg *config

	Puzzle uint `short:"p" long:"puzzle" description:"Puzzle index" required:"true"`
}

func (c *statusCmd) Execute(args []string) error {
	store, err := c.cfg.openCheckpoints()
	if err != nil {
		return err
	}
	defer store.Close()

	snap, err := store.Snapshot(c.Puzzle)
	if err != nil {
		return err
	}
	fmt.Printf("Puzzle %d: %s", c.Puzzle, snap.Status)
	if !snap.UpdatedAt.IsZero() {
		fmt.Printf(" (updated %s)", snap.UpdatedAt.Format(time.RFC3339))
	}
	fmt.Println()
	if snap.FoundKey != nil {
		fmt.Printf("  Key: %s\n", snap.FoundKey.Hex())
	}
	fmt.Printf("  %d keys searched across %d tasks\n", snap.Searched(),
		len(snap.Tasks))
	for _, t := range snap.Tasks {
		fmt.Printf("  task %d [%s, %s] %s: position %s, %d searched\n",
			t.ID.Task, t.Low.Hex(), t.High.Hex(), t.Status, t.Position.Hex(),
			t.Searched)
	}
	return nil
}

// importCmd loads a datastore file into the leveldb key store.
type importCmd struct {
	cfg *config

	Args struct {
		File string `positional-arg-name:"file" description:"CSV or JSON datastore file"`
	} `positional-args:"yes" required:"yes"`
}

func (c *importCmd) Execute(args []string) error {
	path := c.cfg.KeyFile
	if path == "" || filepath.Ext(path) != "" {
		path = filepath.Join(c.cfg.DataDir, keyStoreDirname)
	}
	db, err := keystore.OpenLevelDB(path, 0)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := db.ImportFile(cleanAndExpandPath(c.Args.File))
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d rows into %s\n", n, path)
	return nil
}
