package keyspace

import (
	"fmt"
	"math/big"
)

// MaxIndex is the largest sequence index whose range fits in a Key.
const MaxIndex = Width * 8

// Entry is one row of the key datastore: the key for sequence index Index, or
// an unsolved marker when Solved is false.
type Entry struct {
	Index   uint
	Address string
	Key     Key
	Solved  bool
}

// PuzzleRange returns the inclusive validity range [2^(n-1), 2^n - 1] of a
// key with sequence index n.
func PuzzleRange(n uint) (low, high *big.Int, err error) {
	if n < 1 || n > MaxIndex {
		str := fmt.Sprintf("sequence index %d outside [1, %d]", n, MaxIndex)
		return nil, nil, makeError(ErrInvalidIndex, str)
	}
	low = new(big.Int).Lsh(big.NewInt(1), n-1)
	high = new(big.Int).Lsh(big.NewInt(1), n)
	high.Sub(high, big.NewInt(1))
	return low, high, nil
}

// InRange reports whether key lies within the validity range of index n.
func InRange(n uint, key Key) bool {
	low, high, err := PuzzleRange(n)
	if err != nil {
		return false
	}
	k := key.Big()
	return k.Cmp(low) >= 0 && k.Cmp(high) <= 0
}

// Position returns where key falls within the range of index n as a
// percentage, 0 at the low end and 100 at the high end.
func Position(n uint, key Key) (float64, error) {
	low, high, err := PuzzleRange(n)
	if err != nil {
		return 0, err
	}
	span := new(big.Int).Sub(high, low)
	if span.Sign() == 0 {
		return 0, nil
	}
	off := new(big.Int).Sub(key.Big(), low)
	pos, _ := new(big.Rat).SetFrac(off, span).Float64()
	return pos * 100, nil
}
