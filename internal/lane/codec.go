// Package lane splits fixed-width keys into independent one-byte lanes and
// reassembles them.
//
// Lane order is little-endian: lane 0 is the least-significant byte of the
// key, lane L-1 the most significant byte covered by the codec.  This is the
// layout the calibration artifacts are stored in.  The verifier consumes
// big-endian 32-byte scalars instead, and the only sanctioned crossing between
// the two conventions is Codec.ScalarBytes (lanes -> scalar) and its inverse
// Codec.VectorFromScalarBytes (scalar -> lanes).
package lane

import (
	"fmt"

	"github.com/mahdiidarabi/keyladder/internal/keyspace"
)

// DefaultLanes is the number of lanes used by the ladder model.
const DefaultLanes = 16

// Vector is an ordered sequence of lane bytes, index 0 being the
// least-significant lane.
type Vector []byte

// Clone returns a copy of v that shares no storage with it.
func (v Vector) Clone() Vector {
	c := make(Vector, len(v))
	copy(c, v)
	return c
}

// Equal reports whether v and o hold the same lanes.
func (v Vector) Equal(o Vector) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if v[i] != o[i] {
			return false
		}
	}
	return true
}

// Codec converts between keys and lane vectors of a fixed lane count.
type Codec struct {
	lanes int
}

// NewCodec returns a codec for the given number of lanes, which must be in
// [1, keyspace.Width].
func NewCodec(lanes int) (*Codec, error) {
	if lanes < 1 || lanes > keyspace.Width {
		str := fmt.Sprintf("lane count %d outside [1, %d]", lanes,
			keyspace.Width)
		return nil, makeError(ErrInvalidLaneCount, str)
	}
	return &Codec{lanes: lanes}, nil
}

// DefaultCodec returns a codec for DefaultLanes lanes.
func DefaultCodec() *Codec {
	return &Codec{lanes: DefaultLanes}
}

// Lanes returns the number of lanes handled by the codec.
func (c *Codec) Lanes() int {
	return c.lanes
}

// Fits reports whether key is fully represented by the codec's lanes, that
// is, whether Encode(Decode(key)) reproduces key.
func (c *Codec) Fits(key keyspace.Key) bool {
	return key.BitLen() <= c.lanes*8
}

// Decode extracts the low-order lanes of key.  Bytes above the codec's lane
// count are not represented in the result.
func (c *Codec) Decode(key keyspace.Key) Vector {
	le := key.BytesLE()
	v := make(Vector, c.lanes)
	copy(v, le[:c.lanes])
	return v
}

// Encode rebuilds the key whose low-order lanes are v and whose remaining
// bytes are zero.  The vector must hold exactly Lanes entries.
func (c *Codec) Encode(v Vector) (keyspace.Key, error) {
	if err := c.check(v); err != nil {
		return keyspace.Key{}, err
	}
	var le [keyspace.Width]byte
	copy(le[:], v)
	return keyspace.FromBytesLE(&le), nil
}

// ScalarBytes converts a little-endian lane vector into the big-endian
// 32-byte scalar encoding used by the verifier.
func (c *Codec) ScalarBytes(v Vector) ([keyspace.Width]byte, error) {
	var out [keyspace.Width]byte
	if err := c.check(v); err != nil {
		return out, err
	}
	for i, b := range v {
		out[keyspace.Width-1-i] = b
	}
	return out, nil
}

// VectorFromScalarBytes converts a big-endian 32-byte scalar into the lane
// vector covering its low-order bytes.
func (c *Codec) VectorFromScalarBytes(scalar *[keyspace.Width]byte) Vector {
	v := make(Vector, c.lanes)
	for i := range v {
		v[i] = scalar[keyspace.Width-1-i]
	}
	return v
}

// FromHex parses a hex encoded key and decodes it into lanes.
func (c *Codec) FromHex(s string) (Vector, error) {
	k, err := keyspace.FromHex(s)
	if err != nil {
		return nil, err
	}
	return c.Decode(k), nil
}

func (c *Codec) check(v Vector) error {
	if len(v) != c.lanes {
		str := fmt.Sprintf("lane vector has %d entries, want %d", len(v),
			c.lanes)
		return makeError(ErrMalformedLaneVector, str)
	}
	return nil
}
