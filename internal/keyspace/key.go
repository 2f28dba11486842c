// Package keyspace defines the fixed-width key type shared by the lane codec,
// the verifier, the stores and the search coordinator, along with the puzzle
// range helpers that bound where a key of a given sequence index may live.
package keyspace

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/decred/dcrd/math/uint256"
)

// Width is the key width in bytes.
const Width = 32

// Key is an immutable unsigned 256-bit integer.  The zero value is the key 0.
type Key struct {
	n uint256.Uint256
}

// FromUint64 returns the key with the given value.
func FromUint64(v uint64) Key {
	var k Key
	k.n.SetUint64(v)
	return k
}

// FromBytes interprets b as a big-endian unsigned integer.  At most Width
// bytes are accepted.
func FromBytes(b []byte) (Key, error) {
	if len(b) > Width {
		str := fmt.Sprintf("key is %d bytes, max %d", len(b), Width)
		return Key{}, makeError(ErrInvalidKey, str)
	}
	var buf [Width]byte
	copy(buf[Width-len(b):], b)
	var k Key
	k.n.SetBytes(&buf)
	return k, nil
}

// FromBytesLE interprets b as a little-endian unsigned integer.
func FromBytesLE(b *[Width]byte) Key {
	var k Key
	k.n.SetBytesLE(b)
	return k
}

// FromBig converts a non-negative big integer of at most 256 bits.
func FromBig(v *big.Int) (Key, error) {
	if v == nil || v.Sign() < 0 {
		return Key{}, makeError(ErrInvalidKey, "key must be non-negative")
	}
	if v.BitLen() > Width*8 {
		str := fmt.Sprintf("key has %d bits, max %d", v.BitLen(), Width*8)
		return Key{}, makeError(ErrInvalidKey, str)
	}
	var k Key
	k.n.SetBig(v)
	return k, nil
}

// FromHex parses a hex encoded key.  An optional 0x prefix is accepted and
// odd-length strings are left padded with a zero nibble.
func FromHex(s string) (Key, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	if s == "" {
		return Key{}, makeError(ErrInvalidKey, "empty key string")
	}
	if len(s)%2 != 0 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		str := fmt.Sprintf("malformed hex key %q: %v", s, err)
		return Key{}, makeError(ErrInvalidKey, str)
	}
	// Strip leading zero bytes so zero-padded 64+ digit strings still fit.
	for len(b) > Width && b[0] == 0 {
		b = b[1:]
	}
	return FromBytes(b)
}

// Bytes returns the big-endian encoding of the key.
func (k Key) Bytes() [Width]byte {
	return k.n.Bytes()
}

// BytesLE returns the little-endian encoding of the key.
func (k Key) BytesLE() [Width]byte {
	return k.n.BytesLE()
}

// Big returns the key as a newly allocated big integer.
func (k Key) Big() *big.Int {
	return k.n.ToBig()
}

// Hex returns the zero-padded 64 digit hex encoding of the key.
func (k Key) Hex() string {
	b := k.n.Bytes()
	return hex.EncodeToString(b[:])
}

// String returns the key in decimal.
func (k Key) String() string {
	return k.n.Text(uint256.OutputBaseDecimal)
}

// Cmp compares k and o and returns -1, 0 or +1.
func (k Key) Cmp(o Key) int {
	return k.n.Cmp(&o.n)
}

// IsZero reports whether the key is 0.
func (k Key) IsZero() bool {
	return k.n.IsZero()
}

// BitLen returns the minimum number of bits needed to represent the key.
func (k Key) BitLen() int {
	return int(k.n.BitLen())
}
