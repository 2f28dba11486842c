package keyspace

import (
	"errors"
	"math/big"
	"testing"
)

func TestFromHex(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{name: "short", in: "d2c55", want: "863317"},
		{name: "prefixed", in: "0x01", want: "1"},
		{name: "padded 64", in: "00000000000000000000000000000000000000000000000000000000000d2c55", want: "863317"},
		{name: "padded past width", in: "0000" + "00000000000000000000000000000000000000000000000000000000000d2c55", want: "863317"},
		{name: "empty", in: "", wantErr: ErrInvalidKey},
		{name: "not hex", in: "xyz", wantErr: ErrInvalidKey},
		{name: "too wide", in: "01" + "0000000000000000000000000000000000000000000000000000000000000000", wantErr: ErrInvalidKey},
	}

	for _, test := range tests {
		k, err := FromHex(test.in)
		if !errors.Is(err, test.wantErr) {
			t.Errorf("%s: unexpected error: got %v, want %v", test.name, err, test.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		if got := k.String(); got != test.want {
			t.Errorf("%s: got %s, want %s", test.name, got, test.want)
		}
	}
}

func TestKey_BigRoundTrip(t *testing.T) {
	vals := []string{
		"0",
		"1",
		"863317",
		"115792089237316195423570985008687907852837564279074904382605163141518161494336",
	}
	for _, v := range vals {
		b, _ := new(big.Int).SetString(v, 10)
		k, err := FromBig(b)
		if err != nil {
			t.Fatalf("Failed to convert %s: %v", v, err)
		}
		if k.Big().Cmp(b) != 0 {
			t.Errorf("Round trip mismatch. Got: %s, Expected: %s", k.Big(), b)
		}
		if k.String() != v {
			t.Errorf("String mismatch. Got: %s, Expected: %s", k, v)
		}
		if k.BitLen() != b.BitLen() {
			t.Errorf("BitLen of %s: got %d, want %d", v, k.BitLen(), b.BitLen())
		}
	}

	if _, err := FromBig(big.NewInt(-1)); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey for negative input, got %v", err)
	}
}

func TestKey_ByteOrder(t *testing.T) {
	k := FromUint64(0x0102)
	be := k.Bytes()
	le := k.BytesLE()
	if be[Width-1] != 0x02 || be[Width-2] != 0x01 {
		t.Errorf("Unexpected big-endian layout: %x", be)
	}
	if le[0] != 0x02 || le[1] != 0x01 {
		t.Errorf("Unexpected little-endian layout: %x", le)
	}
	if FromBytesLE(&le).Cmp(k) != 0 {
		t.Error("Little-endian round trip mismatch")
	}
}

func TestPuzzleRange(t *testing.T) {
	low, high, err := PuzzleRange(20)
	if err != nil {
		t.Fatalf("Failed to compute range: %v", err)
	}
	if low.Int64() != 524288 || high.Int64() != 1048575 {
		t.Errorf("Unexpected range [%s, %s]", low, high)
	}

	if !InRange(20, FromUint64(863317)) {
		t.Error("Key 863317 should be in range of index 20")
	}
	if InRange(19, FromUint64(863317)) {
		t.Error("Key 863317 should not be in range of index 19")
	}

	if _, _, err := PuzzleRange(0); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("Expected ErrInvalidIndex for index 0, got %v", err)
	}
	if _, _, err := PuzzleRange(MaxIndex + 1); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("Expected ErrInvalidIndex for index %d, got %v", MaxIndex+1, err)
	}
}

func TestPosition(t *testing.T) {
	pos, err := Position(4, FromUint64(8))
	if err != nil {
		t.Fatalf("Failed to compute position: %v", err)
	}
	if pos != 0 {
		t.Errorf("Expected 0%%, got %f", pos)
	}
	pos, _ = Position(4, FromUint64(15))
	if pos != 100 {
		t.Errorf("Expected 100%%, got %f", pos)
	}
}
