// Package verifier derives pay-to-pubkey-hash addresses from private key
// scalars and checks candidates against an expected address.
//
// It is the only oracle for whether a candidate key is correct: the scalar is
// multiplied by the secp256k1 generator, the resulting point is serialized in
// compressed or uncompressed form, hashed with HASH160 and base58check
// encoded with version 0x00.
package verifier

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/mahdiidarabi/keyladder/internal/keyspace"
)

// Encoding selects the public key serialization an address is derived from.
type Encoding uint8

const (
	// Compressed is 0x02 or 0x03 (by Y parity) followed by the 32-byte X.
	Compressed Encoding = iota

	// Uncompressed is 0x04 followed by the 32-byte X and Y.
	Uncompressed
)

// String returns the Encoding in human-readable form.
func (e Encoding) String() string {
	switch e {
	case Compressed:
		return "compressed"
	case Uncompressed:
		return "uncompressed"
	}
	return fmt.Sprintf("Unknown Encoding (%d)", uint8(e))
}

// Serialize returns the public key bytes of p in encoding e.
func (e Encoding) Serialize(p *Point) []byte {
	if e == Uncompressed {
		out := make([]byte, 0, 65)
		out = append(out, 0x04)
		out = append(out, p.X[:]...)
		return append(out, p.Y[:]...)
	}
	out := make([]byte, 0, 33)
	prefix := byte(0x02)
	if p.Y[31]&1 == 1 {
		prefix = 0x03
	}
	out = append(out, prefix)
	return append(out, p.X[:]...)
}

// Result is the outcome of verifying one candidate.  Encoding and Address
// describe the matching encoding when Match is set, and the compressed
// encoding otherwise.
type Result struct {
	Candidate keyspace.Key
	Encoding  Encoding
	Address   string
	Expected  string
	Match     bool
}

// Err returns nil for a match and an ErrAddressMismatch error otherwise.
func (r Result) Err() error {
	if r.Match {
		return nil
	}
	str := fmt.Sprintf("key %s derives %s, want %s", r.Candidate.Hex(),
		r.Address, r.Expected)
	return makeError(ErrAddressMismatch, str)
}

// Verifier derives and checks addresses using a pluggable point
// multiplication backend.  It holds no mutable state and is safe for
// concurrent use.
type Verifier struct {
	backend Backend
}

// New returns a verifier using the reference AffineBackend.
func New() *Verifier {
	return &Verifier{backend: AffineBackend{}}
}

// WithBackend sets the point multiplication backend.
func (v *Verifier) WithBackend(b Backend) *Verifier {
	v.backend = b
	return v
}

// Backend returns the configured backend.
func (v *Verifier) Backend() Backend {
	return v.backend
}

// nBytes is the big-endian group order.
var nBytes = func() [32]byte {
	var b [32]byte
	curveN.FillBytes(b[:])
	return b
}()

// GroupOrder returns the order N of the secp256k1 base point.  Valid scalars
// lie in [1, N).
func GroupOrder() *big.Int {
	return new(big.Int).Set(curveN)
}

// checkScalar reports an error unless 1 <= scalar < N.
func checkScalar(scalar *[32]byte) error {
	var zero [32]byte
	if *scalar == zero {
		return makeError(ErrInvalidScalar, "scalar is zero")
	}
	if bytes.Compare(scalar[:], nBytes[:]) >= 0 {
		str := fmt.Sprintf("scalar %x is not less than the group order",
			scalar[:])
		return makeError(ErrInvalidScalar, str)
	}
	return nil
}

// PublicKey returns scalar·G after validating the scalar.
func (v *Verifier) PublicKey(scalar *[32]byte) (Point, error) {
	if err := checkScalar(scalar); err != nil {
		return Point{}, err
	}
	return v.backend.ScalarBaseMult(scalar)
}

// DeriveAddress returns the address of the public key of scalar in the given
// encoding.
func (v *Verifier) DeriveAddress(scalar keyspace.Key, enc Encoding) (string, error) {
	b := scalar.Bytes()
	p, err := v.PublicKey(&b)
	if err != nil {
		return "", err
	}
	return pointAddress(&p, enc), nil
}

// pointAddress encodes the address of p in the given encoding.
func pointAddress(p *Point, enc Encoding) string {
	hash := Hash160(enc.Serialize(p))
	return checkEncode(PubKeyHashVersion, hash[:])
}

// matchPoint compares the hashes of both encodings of p with target.
func matchPoint(p *Point, target *Address) (Encoding, bool) {
	for _, enc := range []Encoding{Compressed, Uncompressed} {
		if Hash160(enc.Serialize(p)) == target.Hash {
			return enc, true
		}
	}
	return Compressed, false
}

// Match derives both encodings of scalar and compares their hashes with
// target.  It is the hot path of the search and avoids base58 entirely.
func (v *Verifier) Match(scalar *[32]byte, target *Address) (Encoding, bool, error) {
	p, err := v.PublicKey(scalar)
	if err != nil {
		return Compressed, false, err
	}
	enc, match := matchPoint(&p, target)
	return enc, match, nil
}

// Verify checks whether scalar derives expected in either encoding.  A
// non-match is a normal result, not an error.  The public key is computed
// once and serves both the comparison and the reported address.
func (v *Verifier) Verify(scalar keyspace.Key, expected string) (Result, error) {
	target, err := DecodeAddress(expected)
	if err != nil {
		return Result{}, err
	}
	b := scalar.Bytes()
	p, err := v.PublicKey(&b)
	if err != nil {
		return Result{}, err
	}
	enc, match := matchPoint(&p, target)
	log.Tracef("Verified %s against %s: match=%v", scalar.Hex(), expected,
		match)
	return Result{
		Candidate: scalar,
		Encoding:  enc,
		Address:   pointAddress(&p, enc),
		Expected:  expected,
		Match:     match,
	}, nil
}

// WIF returns the wallet import format encoding of scalar.  compressed marks
// the key as paired with a compressed public key.
func WIF(scalar keyspace.Key, compressed bool) (string, error) {
	b := scalar.Bytes()
	if err := checkScalar(&b); err != nil {
		return "", err
	}
	return wif(&b, compressed), nil
}
