// Package codec implements the single canonical, versioned, length-prefixed
// encoding used to hash Actions and Entries deterministically and to persist
// Actions, Entries, and Links in the storage engine. Graph Values are not
// encoded with it: the graph store identifies triples by Value.SortKey
// hashed with xxhash, which carries no Version byte. The scheme itself is not
// prescribed by the spec beyond "any length-prefixed, field-ordered encoding
// suffices, provided it is versioned" (see SPEC_FULL §3); we build it on
// protobuf's wire-compatible varint/bytes primitives rather than hand-roll a
// second one, since google.golang.org/protobuf is already a dependency of the
// teacher codebase (its consensus/network adapters use it for framing).
package codec

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Version is the first byte of every canonical encoding produced by this
// package. Bumping it is a breaking change to content addressing.
const Version byte = 1

// Encoder accumulates a canonical, field-ordered byte sequence.
type Encoder struct {
	buf []byte
}

// NewEncoder starts a new canonical encoding, stamped with Version.
func NewEncoder() *Encoder {
	return &Encoder{buf: []byte{Version}}
}

// Bytes returns the accumulated encoding. The Encoder must not be reused.
func (e *Encoder) Bytes() []byte { return e.buf }

// Uvarint appends n as a protobuf-style unsigned varint.
func (e *Encoder) Uvarint(n uint64) *Encoder {
	e.buf = protowire.AppendVarint(e.buf, n)
	return e
}

// Field appends a length-prefixed byte string.
func (e *Encoder) Field(b []byte) *Encoder {
	e.buf = protowire.AppendBytes(e.buf, b)
	return e
}

// String appends a length-prefixed UTF-8 string.
func (e *Encoder) String(s string) *Encoder {
	return e.Field([]byte(s))
}

// Byte appends a single raw byte (used for small fixed enums/tags where a
// length prefix would be wasted space).
func (e *Encoder) Byte(b byte) *Encoder {
	e.buf = append(e.buf, b)
	return e
}

// Decoder reads back a canonical encoding produced by Encoder, in the same
// field order it was written.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder wraps b for decoding and validates the leading Version byte.
func NewDecoder(b []byte) (*Decoder, error) {
	if len(b) == 0 || b[0] != Version {
		return nil, fmt.Errorf("codec: unsupported or missing version byte")
	}
	return &Decoder{buf: b, off: 1}, nil
}

func (d *Decoder) Uvarint() (uint64, error) {
	n, width := protowire.ConsumeVarint(d.buf[d.off:])
	if width < 0 {
		return 0, fmt.Errorf("codec: malformed varint")
	}
	d.off += width
	return n, nil
}

func (d *Decoder) Field() ([]byte, error) {
	b, width := protowire.ConsumeBytes(d.buf[d.off:])
	if width < 0 {
		return nil, fmt.Errorf("codec: malformed length-prefixed field")
	}
	d.off += width
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (d *Decoder) String() (string, error) {
	b, err := d.Field()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *Decoder) Byte() (byte, error) {
	if d.off >= len(d.buf) {
		return 0, fmt.Errorf("codec: truncated byte field")
	}
	b := d.buf[d.off]
	d.off++
	return b, nil
}

// Done reports whether every byte of the encoding has been consumed.
func (d *Decoder) Done() bool { return d.off >= len(d.buf) }
