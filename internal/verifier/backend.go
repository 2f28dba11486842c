package verifier

import (
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Point is a public key point with big-endian coordinates.
type Point struct {
	X [32]byte
	Y [32]byte
}

// Backend multiplies the secp256k1 generator by a scalar.  The scalar has
// already been checked to lie in [1, N).
type Backend interface {
	ScalarBaseMult(scalar *[32]byte) (Point, error)
}

// AffineBackend is the reference backend.  It performs binary double-and-add
// in affine coordinates with a modular inversion per group operation.  It is
// slow but has no moving parts beyond the curve equations.
type AffineBackend struct{}

// ScalarBaseMult returns scalar·G.
func (AffineBackend) ScalarBaseMult(scalar *[32]byte) (Point, error) {
	k := new(big.Int).SetBytes(scalar[:])
	p := scalarMult(k, generator())
	if p.infinity() {
		return Point{}, makeError(ErrInvalidScalar, "scalar multiple of "+
			"the generator is the point at infinity")
	}
	var out Point
	p.x.FillBytes(out.X[:])
	p.y.FillBytes(out.Y[:])
	return out, nil
}

// Secp256k1Backend uses the optimized scalar base multiplication of the
// secp256k1 package.
type Secp256k1Backend struct{}

// ScalarBaseMult returns scalar·G.
func (Secp256k1Backend) ScalarBaseMult(scalar *[32]byte) (Point, error) {
	privKey := secp256k1.PrivKeyFromBytes(scalar[:])
	uncompressed := privKey.PubKey().SerializeUncompressed()

	var out Point
	copy(out.X[:], uncompressed[1:33])
	copy(out.Y[:], uncompressed[33:65])
	return out, nil
}
