package affine

import "math/bits"

// All arithmetic in this file is modulo 256.  Go's byte arithmetic wraps, so
// plain byte multiplication and addition are already reduced.

// PowMod256 returns a^n mod 256 by repeated squaring.
func PowMod256(a byte, n uint64) byte {
	result := byte(1)
	base := a
	for n > 0 {
		if n&1 == 1 {
			result *= base
		}
		base *= base
		n >>= 1
	}
	return result
}

// GeomSum returns Γ_n(a) = 1 + a + a^2 + ... + a^(n-1) mod 256 in O(log n)
// using
//
//	Γ_2k   = Γ_k·(1 + a^k)
//	Γ_2k+1 = Γ_2k + a^2k
//
// Γ_0 is 0.
func GeomSum(a byte, n uint64) byte {
	var gamma byte // Γ_k
	pow := byte(1) // a^k
	for i := bits.Len64(n) - 1; i >= 0; i-- {
		gamma *= 1 + pow
		pow *= pow
		if (n>>uint(i))&1 == 1 {
			gamma += pow
			pow *= a
		}
	}
	return gamma
}

// Inverse256 returns the multiplicative inverse of a modulo 256 computed with
// the extended Euclidean algorithm.  Only odd values are invertible.
func Inverse256(a byte) (byte, bool) {
	if a&1 == 0 {
		return 0, false
	}
	oldR, r := int(a), 256
	oldS, s := 1, 0
	for r != 0 {
		q := oldR / r
		oldR, r = r, oldR-q*r
		oldS, s = s, oldS-q*s
	}
	return byte((oldS%256 + 256) % 256), true
}
