// Package keyladder models a sequence of private keys as a byte-wise affine
// recurrence, calibrates it from known keys and searches unknown keys by
// enumeration when no calibration applies.  Every candidate is checked by
// deriving its address.
//
// # Quick Start
//
//	import "github.com/mahdiidarabi/keyladder/pkg/keyladder"
//
//	// Load the known keys and create a client with default settings
//	keys, err := keystore.LoadMemory("puzzles.csv")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := keyladder.NewClient().WithKeySource(keys)
//
//	// Calibrate the drift of the block holding puzzle 29 from its successor
//	cal, err := client.CalibrateIndices(29, 30)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Check how well the calibration predicts the known keys
//	report, err := client.VerifyRange(29, 70)
//	fmt.Printf("accuracy %.2f%%\n", report.Accuracy()*100)
//
// # Searching
//
// When the model cannot predict a key, scan its range:
//
//	client := keyladder.NewClient().
//	    WithSearchConfig(keyladder.SearchConfig{
//	        Workers:            8,
//	        CheckpointInterval: 1_000_000,
//	    }).
//	    WithCheckpointStore(store)
//
//	outcome, err := client.SearchPuzzle(ctx, 66)
//
// Cancelling ctx pauses the search after a final checkpoint.  Running the
// same search again resumes after the last checkpointed key.
//
// # Ambiguous calibrations
//
// A lane whose geometric factor is even can admit several drift values.
// Calibrate never picks one: Calibration.Drift returns an
// *affine.AmbiguityError listing every candidate so the caller can resolve
// it and install the choice with PatchDrift.
package keyladder
