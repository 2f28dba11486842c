package keyladder

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/mahdiidarabi/keyladder/internal/affine"
	"github.com/mahdiidarabi/keyladder/internal/checkpoint"
	"github.com/mahdiidarabi/keyladder/internal/keyspace"
	"github.com/mahdiidarabi/keyladder/internal/keystore"
	"github.com/mahdiidarabi/keyladder/internal/verifier"
)

// ladderKey returns key n of a two lane ladder that stays inside each
// puzzle range for n in [9, 16]: the high byte doubles (A=2, C=0) and the
// low byte grows by 7 (A=1, C=7).
func ladderKey(n uint) uint64 {
	return 1<<(n-1) + 7*uint64(n-9)
}

func ladderModel() ModelConfig {
	return ModelConfig{
		Lanes:       2,
		Multipliers: []byte{1, 2},
		Schedule:    affine.DefaultSchedule(9),
	}
}

// ladderClient returns a client over puzzles 9 to 16 of the ladder, with
// the address of each key stored alongside it.
func ladderClient(t *testing.T) *Client {
	t.Helper()
	client := NewClient().WithModelConfig(ladderModel())
	var entries []keyspace.Entry
	for n := uint(9); n <= 16; n++ {
		key := keyspace.FromUint64(ladderKey(n))
		addr, err := client.DeriveAddress(key, verifier.Compressed)
		if err != nil {
			t.Fatalf("Failed to derive address: %v", err)
		}
		entries = append(entries, keyspace.Entry{
			Index:   n,
			Address: addr,
			Key:     key,
			Solved:  true,
		})
	}
	mem, err := keystore.NewMemory(entries)
	if err != nil {
		t.Fatalf("Failed to build key source: %v", err)
	}
	return client.WithKeySource(mem)
}

func TestClient_DeriveAddress(t *testing.T) {
	client := NewClient()
	addr, err := client.DeriveAddress(keyspace.FromUint64(1), verifier.Compressed)
	if err != nil {
		t.Fatalf("DeriveAddress failed: %v", err)
	}
	if addr != "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH" {
		t.Errorf("Unexpected address %s", addr)
	}

	addr, err = client.WithBackend(verifier.AffineBackend{}).
		DeriveAddress(keyspace.FromUint64(863317), verifier.Compressed)
	if err != nil {
		t.Fatalf("DeriveAddress failed: %v", err)
	}
	if addr != "1HBtApAFA9B2YZw3G2YKSMCtb3dVnjuNe2" {
		t.Errorf("Unexpected address %s", addr)
	}
}

func TestClient_Calibrate(t *testing.T) {
	// Lane 1 carries 104 to 53 in five steps of A=91, which forces C=213.
	client := NewClient()
	cal, err := client.Calibrate(keyspace.FromUint64(104<<8),
		keyspace.FromUint64(53<<8), 5, nil)
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}
	drift, err := cal.Drift()
	if err != nil {
		t.Fatalf("Drift failed: %v", err)
	}
	if drift[1] != 213 {
		t.Errorf("Expected lane 1 drift 213, got %d", drift[1])
	}
	if cal.Lanes[1].Gamma != 73 {
		t.Errorf("Expected lane 1 gamma 73, got %d", cal.Lanes[1].Gamma)
	}
}

func TestClient_CalibrateAmbiguous(t *testing.T) {
	// Two steps of A=1 give an even gamma, leaving two drift candidates.
	client := NewClient().WithModelConfig(ModelConfig{
		Lanes:       1,
		Multipliers: []byte{1},
		Schedule:    affine.DefaultSchedule(1),
	})
	cal, err := client.Calibrate(keyspace.FromUint64(10),
		keyspace.FromUint64(30), 2, nil)
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}
	_, err = cal.Drift()
	var amb *affine.AmbiguityError
	if !errors.As(err, &amb) || !errors.Is(err, affine.ErrAmbiguousCalibration) {
		t.Fatalf("Expected an AmbiguityError, got %v", err)
	}
	want := []byte{10, 138}
	if got := amb.Lanes[0].Candidates; len(got) != 2 || got[0] != want[0] ||
		got[1] != want[1] {
		t.Errorf("Expected candidates %v, got %v", want, got)
	}

	_, err = client.Calibrate(keyspace.FromUint64(10), keyspace.FromUint64(31),
		2, nil)
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}
}

func TestClient_CalibrateAndVerify(t *testing.T) {
	client := ladderClient(t)
	if _, err := client.CalibrateIndices(9, 10); err != nil {
		t.Fatalf("CalibrateIndices failed: %v", err)
	}
	set := client.CalibrationSet()
	if set.RangeLow != 9 || set.RangeHigh != 10 {
		t.Errorf("Unexpected calibration range [%d, %d]", set.RangeLow,
			set.RangeHigh)
	}
	if drift := set.Drift[0]; drift[0][0] != 7 || drift[1][0] != 0 {
		t.Errorf("Unexpected drift table %s", spew.Sdump(set.Drift))
	}

	report, err := client.VerifyRange(9, 16)
	if err != nil {
		t.Fatalf("VerifyRange failed: %v", err)
	}
	if !report.Perfect() || report.TotalChecks != 14 {
		t.Errorf("Unexpected report %s", spew.Sdump(report))
	}

	reverse, err := client.VerifyReverse(9, 16)
	if err != nil {
		t.Fatalf("VerifyReverse failed: %v", err)
	}
	if !reverse.Perfect() || len(reverse.NonInvertibleLanes) != 1 ||
		reverse.NonInvertibleLanes[0] != 1 {
		t.Errorf("Unexpected reverse report %s", spew.Sdump(reverse))
	}
}

func TestClient_PredictAndCheck(t *testing.T) {
	client := ladderClient(t)
	if _, err := client.CalibrateIndices(9, 10); err != nil {
		t.Fatalf("CalibrateIndices failed: %v", err)
	}

	key, err := client.Predict(12)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if key.Cmp(keyspace.FromUint64(ladderKey(12))) != 0 {
		t.Errorf("Predicted %s, want %d", key, ladderKey(12))
	}

	result, err := client.Check(12)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !result.Match {
		t.Errorf("Expected a match, got %s", spew.Sdump(result))
	}

	if _, err := client.Predict(9); !errors.Is(err, ErrKeyUnavailable) {
		t.Errorf("Expected ErrKeyUnavailable without a predecessor, got %v", err)
	}
}

func TestClient_MissingDrift(t *testing.T) {
	client := ladderClient(t)
	if _, err := client.Predict(12); !errors.Is(err, affine.ErrMissingDrift) {
		t.Fatalf("Expected ErrMissingDrift, got %v", err)
	}
}

func TestClient_NoKeySource(t *testing.T) {
	client := NewClient()
	if _, err := client.CalibrateIndices(1, 2); !errors.Is(err, ErrNoKeySource) {
		t.Errorf("Expected ErrNoKeySource, got %v", err)
	}
	if _, err := client.VerifyRange(1, 2); !errors.Is(err, ErrNoKeySource) {
		t.Errorf("Expected ErrNoKeySource, got %v", err)
	}
	if _, err := client.CalibrateIndices(2, 2); !errors.Is(err, affine.ErrInvalidStepCount) {
		t.Errorf("Expected ErrInvalidStepCount, got %v", err)
	}
}

func TestClient_ModelMismatch(t *testing.T) {
	client := ladderClient(t).
		WithCalibrationSet(affine.NewCalibrationSet([]byte{1, 1, 1}))
	if _, err := client.VerifyRange(9, 16); !errors.Is(err, ErrModelMismatch) {
		t.Fatalf("Expected ErrModelMismatch, got %v", err)
	}
}

func TestClient_SearchPuzzle(t *testing.T) {
	client := NewClient().WithSearchConfig(SearchConfig{
		Workers:            3,
		CheckpointInterval: 100,
		RetryAttempts:      1,
		RetryBackoff:       time.Millisecond,
		LogInterval:        -1,
	})
	addr, err := client.DeriveAddress(keyspace.FromUint64(2683), verifier.Compressed)
	if err != nil {
		t.Fatalf("DeriveAddress failed: %v", err)
	}
	mem, err := keystore.NewMemory([]keyspace.Entry{{Index: 12, Address: addr}})
	if err != nil {
		t.Fatalf("Failed to build key source: %v", err)
	}
	client.WithKeySource(mem)

	out, err := client.SearchPuzzle(context.Background(), 12)
	if err != nil {
		t.Fatalf("SearchPuzzle failed: %v", err)
	}
	if out.Status != checkpoint.StatusSolved || out.Key == nil ||
		out.Key.Cmp(keyspace.FromUint64(2683)) != 0 {
		t.Fatalf("Unexpected outcome %s", spew.Sdump(out))
	}
	if len(out.Tasks) != 3 {
		t.Errorf("Expected 3 tasks, got %d", len(out.Tasks))
	}

	status, err := client.Status(12)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Status != checkpoint.StatusSolved {
		t.Errorf("Unexpected status %s", status.Status)
	}
	if progress := client.Progress(); progress.Running || !progress.Found {
		t.Errorf("Unexpected progress %s", spew.Sdump(progress))
	}

	if _, err := client.SearchPuzzle(context.Background(), 13); !errors.Is(err, ErrKeyUnavailable) {
		t.Errorf("Expected ErrKeyUnavailable, got %v", err)
	}
}

func TestClient_Search(t *testing.T) {
	client := NewClient().WithSearchConfig(SearchConfig{LogInterval: -1})
	addr, err := client.DeriveAddress(keyspace.FromUint64(224), verifier.Uncompressed)
	if err != nil {
		t.Fatalf("DeriveAddress failed: %v", err)
	}
	out, err := client.Search(context.Background(), 8, addr, big.NewInt(128),
		big.NewInt(255), 4)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if out.Status != checkpoint.StatusSolved || out.Encoding != verifier.Uncompressed {
		t.Fatalf("Unexpected outcome %s", spew.Sdump(out))
	}
}

func TestSearchRange(t *testing.T) {
	low, high, err := SearchRange(20)
	if err != nil {
		t.Fatalf("SearchRange(20): %v", err)
	}
	if low.Cmp(big.NewInt(0x80000)) != 0 || high.Cmp(big.NewInt(0xfffff)) != 0 {
		t.Fatalf("SearchRange(20) = [%x, %x]", low, high)
	}

	// The top puzzle's range ends at the largest valid scalar.
	_, high, err = SearchRange(keyspace.MaxIndex)
	if err != nil {
		t.Fatalf("SearchRange(%d): %v", keyspace.MaxIndex, err)
	}
	want := new(big.Int).Sub(verifier.GroupOrder(), big.NewInt(1))
	if high.Cmp(want) != 0 {
		t.Fatalf("SearchRange(%d) high = %x, want %x", keyspace.MaxIndex,
			high, want)
	}

	if _, _, err := SearchRange(0); !errors.Is(err, keyspace.ErrInvalidIndex) {
		t.Fatalf("SearchRange(0): expected ErrInvalidIndex, got %v", err)
	}
}
