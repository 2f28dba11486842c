package verifier

import (
	"encoding/hex"
	"errors"
	"math/big"
	"math/rand"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/mahdiidarabi/keyladder/internal/keyspace"
)

var backends = []struct {
	name    string
	backend Backend
}{
	{"affine", AffineBackend{}},
	{"secp256k1", Secp256k1Backend{}},
}

func TestVerifier_DeriveAddress(t *testing.T) {
	tests := []struct {
		scalar uint64
		enc    Encoding
		want   string
	}{
		{1, Compressed, "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH"},
		{1, Uncompressed, "1EHNa6Q4Jz2uvNExL497mE43ikXhwF6kZm"},
		{863317, Compressed, "1HBtApAFA9B2YZw3G2YKSMCtb3dVnjuNe2"},
	}
	for _, b := range backends {
		v := New().WithBackend(b.backend)
		for _, test := range tests {
			got, err := v.DeriveAddress(keyspace.FromUint64(test.scalar), test.enc)
			if err != nil {
				t.Fatalf("%s: Failed to derive address: %v", b.name, err)
			}
			if got != test.want {
				t.Errorf("%s: scalar %d %v: got %s, want %s", b.name,
					test.scalar, test.enc, got, test.want)
			}
		}
	}
}

func TestVerifier_Deterministic(t *testing.T) {
	v := New()
	key := keyspace.FromUint64(0xdeadbeef)
	first, err := v.DeriveAddress(key, Compressed)
	if err != nil {
		t.Fatalf("Failed to derive address: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := v.DeriveAddress(key, Compressed)
		if err != nil || again != first {
			t.Fatalf("Derivation not deterministic: %s vs %s (%v)", first,
				again, err)
		}
	}
}

func TestBackends_Agree(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	checked := 0
	for checked < 25 {
		var scalar [32]byte
		rng.Read(scalar[:])
		if checkScalar(&scalar) != nil {
			continue
		}
		ref, err := AffineBackend{}.ScalarBaseMult(&scalar)
		if err != nil {
			t.Fatalf("Affine backend failed: %v", err)
		}
		fast, err := Secp256k1Backend{}.ScalarBaseMult(&scalar)
		if err != nil {
			t.Fatalf("secp256k1 backend failed: %v", err)
		}
		if ref != fast {
			t.Fatalf("Backends disagree for %x.\naffine: %s\nsecp256k1: %s",
				scalar, spew.Sdump(ref), spew.Sdump(fast))
		}
		checked++
	}
}

func TestVerifier_InvalidScalar(t *testing.T) {
	nMinus1 := new(big.Int).Sub(curveN, big.NewInt(1))
	nPlus1 := new(big.Int).Add(curveN, big.NewInt(1))
	maxKey, _ := keyspace.FromHex("ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")

	invalid := []keyspace.Key{keyspace.FromUint64(0), maxKey}
	for _, n := range []*big.Int{curveN, nPlus1} {
		k, err := keyspace.FromBig(n)
		if err != nil {
			t.Fatalf("Failed to build key: %v", err)
		}
		invalid = append(invalid, k)
	}

	v := New().WithBackend(Secp256k1Backend{})
	for _, k := range invalid {
		if _, err := v.DeriveAddress(k, Compressed); !errors.Is(err, ErrInvalidScalar) {
			t.Errorf("scalar %s: expected ErrInvalidScalar, got %v", k.Hex(), err)
		}
		if _, err := WIF(k, true); !errors.Is(err, ErrInvalidScalar) {
			t.Errorf("WIF of %s: expected ErrInvalidScalar, got %v", k.Hex(), err)
		}
	}

	last, _ := keyspace.FromBig(nMinus1)
	if _, err := v.DeriveAddress(last, Compressed); err != nil {
		t.Errorf("N-1 should be a valid scalar: %v", err)
	}
}

func TestVerifier_Verify(t *testing.T) {
	v := New().WithBackend(Secp256k1Backend{})
	one := keyspace.FromUint64(1)

	res, err := v.Verify(one, "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH")
	if err != nil {
		t.Fatalf("Failed to verify: %v", err)
	}
	if !res.Match || res.Encoding != Compressed || res.Err() != nil {
		t.Errorf("Expected compressed match: %s", spew.Sdump(res))
	}

	res, err = v.Verify(one, "1EHNa6Q4Jz2uvNExL497mE43ikXhwF6kZm")
	if err != nil {
		t.Fatalf("Failed to verify: %v", err)
	}
	if !res.Match || res.Encoding != Uncompressed {
		t.Errorf("Expected uncompressed match: %s", spew.Sdump(res))
	}

	res, err = v.Verify(keyspace.FromUint64(2), "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH")
	if err != nil {
		t.Fatalf("Failed to verify: %v", err)
	}
	if res.Match {
		t.Fatal("Scalar 2 should not match the address of scalar 1")
	}
	if !errors.Is(res.Err(), ErrAddressMismatch) {
		t.Errorf("Expected ErrAddressMismatch, got %v", res.Err())
	}

	if _, err := v.Verify(one, "not-an-address"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Expected ErrInvalidAddress, got %v", err)
	}
}

// countingBackend counts the point multiplications it performs.
type countingBackend struct {
	calls int
}

func (b *countingBackend) ScalarBaseMult(scalar *[32]byte) (Point, error) {
	b.calls++
	return Secp256k1Backend{}.ScalarBaseMult(scalar)
}

// TestVerifier_VerifySingleMult ensures Verify multiplies the base point once
// and reports the address of the matching encoding.
func TestVerifier_VerifySingleMult(t *testing.T) {
	backend := new(countingBackend)
	v := New().WithBackend(backend)

	res, err := v.Verify(keyspace.FromUint64(1), "1EHNa6Q4Jz2uvNExL497mE43ikXhwF6kZm")
	if err != nil {
		t.Fatalf("Failed to verify: %v", err)
	}
	if backend.calls != 1 {
		t.Errorf("Expected 1 point multiplication, got %d", backend.calls)
	}
	if !res.Match || res.Address != "1EHNa6Q4Jz2uvNExL497mE43ikXhwF6kZm" {
		t.Errorf("Unexpected result: %s", spew.Sdump(res))
	}

	backend.calls = 0
	res, err = v.Verify(keyspace.FromUint64(2), "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH")
	if err != nil {
		t.Fatalf("Failed to verify: %v", err)
	}
	want, _ := v.DeriveAddress(keyspace.FromUint64(2), Compressed)
	if backend.calls != 2 || res.Match || res.Address != want {
		t.Errorf("calls %d, result %s", backend.calls, spew.Sdump(res))
	}
}

// TestGroupOrder ensures callers get a copy of N.
func TestGroupOrder(t *testing.T) {
	n := GroupOrder()
	n.SetInt64(0)
	if GroupOrder().Cmp(curveN) != 0 {
		t.Fatal("GroupOrder returned a shared value")
	}
}

func TestHash160(t *testing.T) {
	pub, _ := hex.DecodeString("0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798")
	got := Hash160(pub)
	if want := "751e76e8199196d454941c45d1b3a323f1433bd6"; hex.EncodeToString(got[:]) != want {
		t.Errorf("Hash160 = %x, want %s", got, want)
	}
}

func TestDecodeAddress(t *testing.T) {
	addr, err := DecodeAddress("1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH")
	if err != nil {
		t.Fatalf("Failed to decode address: %v", err)
	}
	if hex.EncodeToString(addr.Hash[:]) != "751e76e8199196d454941c45d1b3a323f1433bd6" {
		t.Errorf("Unexpected hash %x", addr.Hash)
	}
	if addr.String() != "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH" {
		t.Errorf("Re-encoded address %s", addr.String())
	}

	var hash [20]byte
	tests := []struct {
		name string
		addr string
	}{
		{"empty", ""},
		{"bad character", "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAM0"},
		{"bad checksum", "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMJ"},
		{"too short", "1BgGZ9tcN4rm9KBzDn7"},
		{"script hash version", checkEncode(0x05, hash[:])},
		{"long payload", checkEncode(PubKeyHashVersion, make([]byte, 21))},
	}
	for _, test := range tests {
		if _, err := DecodeAddress(test.addr); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("%s: expected ErrInvalidAddress, got %v", test.name, err)
		}
	}
}

func TestWIF(t *testing.T) {
	one := keyspace.FromUint64(1)
	got, err := WIF(one, true)
	if err != nil {
		t.Fatalf("Failed to encode WIF: %v", err)
	}
	if want := "KwDiBf89QgGbjEhKnhXJuH7LrciVrZi3qYjgd9M7rFU73sVHnoWn"; got != want {
		t.Errorf("Compressed WIF = %s, want %s", got, want)
	}
	got, err = WIF(one, false)
	if err != nil {
		t.Fatalf("Failed to encode WIF: %v", err)
	}
	if want := "5HpHagT65TZzG1PH3CSu63k8DbpvD8s5ip4nEB3kEsreAnchuDf"; got != want {
		t.Errorf("Uncompressed WIF = %s, want %s", got, want)
	}
}

func TestCurve_Identities(t *testing.T) {
	g := generator()
	neg := affinePoint{x: g.x, y: new(big.Int).Sub(curveP, g.y)}

	if sum := pointAdd(g, neg); !sum.infinity() {
		t.Errorf("G + (-G) should be the point at infinity, got %s", spew.Sdump(sum))
	}
	if sum := pointAdd(affinePoint{}, g); sum.x.Cmp(g.x) != 0 || sum.y.Cmp(g.y) != 0 {
		t.Errorf("O + G should be G")
	}
	if sum := pointAdd(g, affinePoint{}); sum.x.Cmp(g.x) != 0 || sum.y.Cmp(g.y) != 0 {
		t.Errorf("G + O should be G")
	}
	if p := scalarMult(curveN, g); !p.infinity() {
		t.Errorf("N·G should be the point at infinity")
	}

	// 2G by doubling and by addition agree, and 3G = 2G + G.
	two := pointDouble(g)
	if sum := pointAdd(g, g); sum.x.Cmp(two.x) != 0 || sum.y.Cmp(two.y) != 0 {
		t.Errorf("G + G differs from 2G")
	}
	three := scalarMult(big.NewInt(3), g)
	if sum := pointAdd(two, g); sum.x.Cmp(three.x) != 0 || sum.y.Cmp(three.y) != 0 {
		t.Errorf("2G + G differs from 3G")
	}
}

func TestEncoding_Serialize(t *testing.T) {
	p, err := Secp256k1Backend{}.ScalarBaseMult(&[32]byte{31: 1})
	if err != nil {
		t.Fatalf("Failed to multiply: %v", err)
	}
	c := Compressed.Serialize(&p)
	u := Uncompressed.Serialize(&p)
	if len(c) != 33 || c[0] != 0x02 {
		t.Errorf("Unexpected compressed encoding %x", c)
	}
	if len(u) != 65 || u[0] != 0x04 {
		t.Errorf("Unexpected uncompressed encoding %x", u)
	}
}
