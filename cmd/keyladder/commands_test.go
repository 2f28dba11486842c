package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mahdiidarabi/keyladder/internal/affine"
	"github.com/mahdiidarabi/keyladder/internal/checkpoint"
	"github.com/mahdiidarabi/keyladder/internal/keyspace"
	"github.com/mahdiidarabi/keyladder/internal/verifier"
)

const testDatastore = "../../internal/keystore/testdata/puzzles.csv"

// testArgs returns the global options that keep a run inside dir.
func testArgs(dir string, args ...string) []string {
	base := []string{
		"--configfile=" + filepath.Join(dir, "none.conf"),
		"--datadir=" + filepath.Join(dir, "data"),
		"--nofilelogging",
		"--debuglevel=off",
	}
	return append(base, args...)
}

// writeEmptyConfig creates the config file named by testArgs.
func writeEmptyConfig(t *testing.T, dir string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "none.conf"), nil, 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestRunDerive(t *testing.T) {
	dir := t.TempDir()
	writeEmptyConfig(t, dir)

	if err := run(testArgs(dir, "derive", "--wif", "1")); err != nil {
		t.Fatalf("derive: %v", err)
	}
	if err := run(testArgs(dir, "derive", "-u", "d2c55")); err != nil {
		t.Fatalf("derive uncompressed: %v", err)
	}
	if err := run(testArgs(dir, "derive", "zz")); err == nil {
		t.Fatal("expected error for invalid key")
	}
	if err := run(testArgs(dir, "--backend=gpu", "derive", "1")); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

// TestRunCalibrateVerify imports the datastore, calibrates a two lane model
// from puzzles 1 and 2 and verifies the artifact it writes.
func TestRunCalibrateVerify(t *testing.T) {
	dir := t.TempDir()
	writeEmptyConfig(t, dir)
	model := []string{"--lanes=2", "--multipliers=1,1", "--schedulebase=1"}

	if err := run(testArgs(dir, "import", testDatastore)); err != nil {
		t.Fatalf("import: %v", err)
	}

	artifact := filepath.Join(dir, "calibration.json")
	args := append(append([]string(nil), model...), "calibrate", "--from=1",
		"--to=2", "-o", artifact)
	if err := run(testArgs(dir, args...)); err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	set, err := affine.LoadCalibrationSet(artifact)
	if err != nil {
		t.Fatalf("LoadCalibrationSet: %v", err)
	}
	if set.RangeLow != 1 || set.RangeHigh != 2 {
		t.Fatalf("artifact range: got [%d, %d], want [1, 2]", set.RangeLow,
			set.RangeHigh)
	}
	if len(set.Blocks()) != 1 {
		t.Fatalf("artifact blocks: got %v", set.Blocks())
	}

	args = append(append([]string(nil), model...), "verify", "-a", artifact)
	if err := run(testArgs(dir, args...)); err != nil {
		t.Fatalf("verify: %v", err)
	}
	args = append(append([]string(nil), model...), "verify", "-a", artifact,
		"--reverse")
	if err := run(testArgs(dir, args...)); err != nil {
		t.Fatalf("verify reverse: %v", err)
	}

	// Raw keys need no datastore.
	args = append(append([]string(nil), model...), "calibrate", "--keya=1",
		"--keyb=3", "--step=1")
	if err := run(testArgs(dir, args...)); err != nil {
		t.Fatalf("calibrate raw keys: %v", err)
	}

	if err := run(testArgs(dir, "calibrate")); err == nil {
		t.Fatal("expected error without keys or indices")
	}
	if err := run(testArgs(dir, "verify", "-a", filepath.Join(dir, "missing.json"))); err == nil {
		t.Fatal("expected error for missing artifact")
	}
}

// TestRunSearchStatus searches puzzle 8 with checkpoints in the data
// directory and reads the result back.
func TestRunSearchStatus(t *testing.T) {
	dir := t.TempDir()
	writeEmptyConfig(t, dir)

	key := keyspace.FromUint64(0xe0)
	address, err := verifier.New().DeriveAddress(key, verifier.Compressed)
	if err != nil {
		t.Fatal(err)
	}

	err = run(testArgs(dir, "search", "-p", "8", "--address="+address,
		"--workers=2", "--checkpointinterval=16", "--loginterval=-1s"))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if err := run(testArgs(dir, "status", "-p", "8")); err != nil {
		t.Fatalf("status: %v", err)
	}

	store, err := checkpoint.OpenLevelDB(filepath.Join(dir, "data", checkpointDirname))
	if err != nil {
		t.Fatal(err)
	}
	snap, err := store.Snapshot(8)
	store.Close()
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != checkpoint.StatusSolved || snap.FoundKey == nil ||
		*snap.FoundKey != key {

		t.Fatalf("snapshot: status %v key %v", snap.Status, snap.FoundKey)
	}

	// Puzzle 9 has no datastore row and no address was given.
	if err := run(testArgs(dir, "--keys="+testDatastore, "search", "-p", "9")); err == nil {
		t.Fatal("expected error without an address")
	}
	if err := run(testArgs(dir, "search")); err == nil {
		t.Fatal("expected error without a puzzle")
	}
}
