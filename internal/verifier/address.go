package verifier

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/decred/base58"
	"github.com/decred/dcrd/crypto/ripemd160"
)

const (
	// PubKeyHashVersion is the version byte of pay-to-pubkey-hash
	// addresses.
	PubKeyHashVersion = 0x00

	// WIFVersion is the version byte of wallet import format private keys.
	WIFVersion = 0x80

	// wifCompressedFlag is appended to a WIF payload when the key is paired
	// with a compressed public key.
	wifCompressedFlag = 0x01

	checksumLen = 4

	// addressLen is the decoded length of an address: version, hash and
	// checksum.
	addressLen = 1 + ripemd160.Size + checksumLen
)

// Hash160 returns RIPEMD160(SHA256(buf)).
func Hash160(buf []byte) [ripemd160.Size]byte {
	sha := sha256.Sum256(buf)
	hasher := ripemd160.New()
	hasher.Write(sha[:])

	var out [ripemd160.Size]byte
	copy(out[:], hasher.Sum(nil))
	return out
}

// checksum returns the first four bytes of SHA256(SHA256(buf)).
func checksum(buf []byte) [checksumLen]byte {
	first := sha256.Sum256(buf)
	second := sha256.Sum256(first[:])
	var out [checksumLen]byte
	copy(out[:], second[:checksumLen])
	return out
}

// checkEncode returns the base58 encoding of version || payload || checksum.
// Leading zero bytes are preserved as leading '1' characters by the base58
// encoder.
func checkEncode(version byte, payload []byte) string {
	buf := make([]byte, 0, 1+len(payload)+checksumLen)
	buf = append(buf, version)
	buf = append(buf, payload...)
	sum := checksum(buf)
	buf = append(buf, sum[:]...)
	return base58.Encode(buf)
}

// Address is a decoded pay-to-pubkey-hash address.
type Address struct {
	Version byte
	Hash    [ripemd160.Size]byte
}

// String returns the base58check encoding of the address.
func (a *Address) String() string {
	return checkEncode(a.Version, a.Hash[:])
}

// DecodeAddress parses and validates a base58check pay-to-pubkey-hash
// address.
func DecodeAddress(addr string) (*Address, error) {
	decoded := base58.Decode(addr)
	if len(decoded) == 0 {
		str := fmt.Sprintf("address %q is not valid base58", addr)
		return nil, makeError(ErrInvalidAddress, str)
	}
	if len(decoded) != addressLen {
		str := fmt.Sprintf("address %q decodes to %d bytes, want %d", addr,
			len(decoded), addressLen)
		return nil, makeError(ErrInvalidAddress, str)
	}
	body, sum := decoded[:len(decoded)-checksumLen], decoded[len(decoded)-checksumLen:]
	want := checksum(body)
	if !bytes.Equal(sum, want[:]) {
		str := fmt.Sprintf("address %q has a bad checksum", addr)
		return nil, makeError(ErrInvalidAddress, str)
	}
	if body[0] != PubKeyHashVersion {
		str := fmt.Sprintf("address %q has version 0x%02x, want 0x%02x",
			addr, body[0], PubKeyHashVersion)
		return nil, makeError(ErrInvalidAddress, str)
	}

	a := &Address{Version: body[0]}
	copy(a.Hash[:], body[1:])
	return a, nil
}

// wif returns the wallet import format encoding of a validated scalar.
func wif(scalar *[32]byte, compressed bool) string {
	payload := scalar[:]
	if compressed {
		payload = append(append(make([]byte, 0, 33), scalar[:]...),
			wifCompressedFlag)
	}
	return checkEncode(WIFVersion, payload)
}
