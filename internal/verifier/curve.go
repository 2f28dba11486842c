package verifier

import (
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Curve parameters of secp256k1: y^2 = x^3 + 7 over F_p with generator G of
// order N.
var (
	curveP  = secp256k1.S256().Params().P
	curveN  = secp256k1.S256().Params().N
	curveGx = secp256k1.S256().Params().Gx
	curveGy = secp256k1.S256().Params().Gy

	bigThree = big.NewInt(3)
)

// affinePoint is a point in affine coordinates.  A nil x denotes the point at
// infinity.
type affinePoint struct {
	x, y *big.Int
}

func (p affinePoint) infinity() bool {
	return p.x == nil
}

func generator() affinePoint {
	return affinePoint{x: new(big.Int).Set(curveGx), y: new(big.Int).Set(curveGy)}
}

// modInverse returns a^-1 mod P.  a must be non-zero mod P.
func modInverse(a *big.Int) *big.Int {
	return new(big.Int).ModInverse(a, curveP)
}

// finishAdd computes the sum's coordinates from the chord or tangent slope:
//
//	x3 = λ^2 - x1 - x2
//	y3 = λ(x1 - x3) - y1
func finishAdd(lambda *big.Int, p affinePoint, x2 *big.Int) affinePoint {
	x3 := new(big.Int).Mul(lambda, lambda)
	x3.Sub(x3, p.x)
	x3.Sub(x3, x2)
	x3.Mod(x3, curveP)

	y3 := new(big.Int).Sub(p.x, x3)
	y3.Mul(y3, lambda)
	y3.Sub(y3, p.y)
	y3.Mod(y3, curveP)
	return affinePoint{x: x3, y: y3}
}

// pointDouble returns 2p.
func pointDouble(p affinePoint) affinePoint {
	if p.infinity() || p.y.Sign() == 0 {
		return affinePoint{}
	}

	// λ = 3x^2 / 2y  (the curve's a coefficient is zero)
	num := new(big.Int).Mul(p.x, p.x)
	num.Mul(num, bigThree)
	den := new(big.Int).Lsh(p.y, 1)
	den.Mod(den, curveP)
	lambda := num.Mul(num, modInverse(den))
	lambda.Mod(lambda, curveP)
	return finishAdd(lambda, p, p.x)
}

// pointAdd returns p + q.
func pointAdd(p, q affinePoint) affinePoint {
	if p.infinity() {
		return q
	}
	if q.infinity() {
		return p
	}
	if p.x.Cmp(q.x) == 0 {
		if p.y.Cmp(q.y) != 0 {
			// q = -p
			return affinePoint{}
		}
		return pointDouble(p)
	}

	// λ = (y2 - y1) / (x2 - x1)
	num := new(big.Int).Sub(q.y, p.y)
	den := new(big.Int).Sub(q.x, p.x)
	den.Mod(den, curveP)
	lambda := num.Mul(num, modInverse(den))
	lambda.Mod(lambda, curveP)
	return finishAdd(lambda, p, q.x)
}

// scalarMult returns k·p by binary double-and-add, least significant bit
// first.
func scalarMult(k *big.Int, p affinePoint) affinePoint {
	var result affinePoint
	addend := p
	for i := 0; i < k.BitLen(); i++ {
		if k.Bit(i) == 1 {
			result = pointAdd(result, addend)
		}
		addend = pointDouble(addend)
	}
	return result
}
