// Package keycodec implements the order-preserving composite key encoding
// of spec §3/§4.1 (C1): encodeComposite, data/index key builders, and full
// and table scan bound builders. All outputs are immutable byte slices;
// memcmp order over the output must equal logical order over the input
// tuple under the declared collation and per-column direction.
package keycodec

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"quereus/internal/types"
)

// Type tags. Null sorts before every other tag; the remaining tags are
// ordered so that, together with payload encoding, byte order matches the
// declared logical ordering for same-kind comparisons. Cross-kind ordering
// is not a requirement of the spec (components of a composite key are
// typed per-column), so tag order across kinds only needs to be stable.
const (
	tagNull byte = 0x00
	tagInt  byte = 0x10
	tagBig  byte = 0x20
	tagReal byte = 0x30
	tagText byte = 0x40
	tagBlob byte = 0x50
)

// textTerminator is appended after collation-normalized text payloads; it
// must sort below any valid continuation byte so that a text value is
// never a prefix-match false-equal to a longer one sharing that prefix.
const textTerminator = 0x00

// blobEscape and blobEscapeEnd implement the escape coding used so a blob's
// encoded payload never contains an unescaped textTerminator-equivalent
// sentinel that would corrupt composite-key boundaries: 0x00 is escaped to
// 0x00 0xFF, and the payload is closed with 0x00 0x00.
const (
	blobEscapeByte byte = 0x00
	blobEscapeCont byte = 0xFF
	blobEnd        byte = 0x00
)

// Direction is per-column sort direction.
type Direction bool

const (
	Asc  Direction = false
	Desc Direction = true
)

// Options configures a composite-key encoding: a default collation applied
// to text components (overridable per spec via column metadata upstream)
// and a per-component direction list.
type Options struct {
	Collation  types.Collation
	Directions []Direction
}

// DirAt returns the direction for component i, defaulting to Asc when the
// options don't specify one for that position.
func (o Options) DirAt(i int) Direction {
	if i < len(o.Directions) {
		return o.Directions[i]
	}
	return Asc
}

// EncodeError is returned when a value cannot be represented under the
// declared encoding (spec §4.1), e.g. a non-finite float.
type EncodeError struct {
	Index int
	Msg   string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("keycodec: component %d: %s", e.Index, e.Msg)
}

// EncodeComposite encodes an ordered tuple of values into a single
// byte-ordered key. Descending columns invert the payload byte-wise so that
// byte order of the whole component is reversed while its internal
// structure (tag, terminator placement) is preserved.
func EncodeComposite(values []types.Value, opts Options) ([]byte, error) {
	var out []byte
	for i, v := range values {
		enc, err := encodeComponent(v, opts.Collation)
		if err != nil {
			return nil, &EncodeError{Index: i, Msg: err.Error()}
		}
		if opts.DirAt(i) == Desc {
			invert(enc)
		}
		out = append(out, enc...)
	}
	return out, nil
}

func encodeComponent(v types.Value, collation types.Collation) ([]byte, error) {
	switch v.Kind() {
	case types.KindNull:
		return []byte{tagNull}, nil
	case types.KindInteger:
		return encodeInt64(v.Int64()), nil
	case types.KindBigInt:
		return encodeBigInt(v.Big()), nil
	case types.KindReal:
		f := v.Float64()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("non-finite float not representable in a composite key")
		}
		return encodeFloat64(f), nil
	case types.KindText:
		return encodeText(v.Str(), collation), nil
	case types.KindBlob:
		return encodeBlob(v.Bytes()), nil
	default:
		return nil, fmt.Errorf("unsupported value kind %d", v.Kind())
	}
}

func encodeInt64(v int64) []byte {
	buf := make([]byte, 9)
	buf[0] = tagInt
	// Flip the sign bit so two's-complement big-endian integers sort
	// correctly as unsigned byte sequences.
	u := uint64(v) ^ (1 << 63)
	binary.BigEndian.PutUint64(buf[1:], u)
	return buf
}

func encodeBigInt(v *big.Int) []byte {
	// Arbitrary-precision integers are encoded as: tag, sign byte
	// (0 negative / 1 non-negative, chosen so negatives sort first),
	// big-endian magnitude length, magnitude bytes. Within a sign class,
	// longer magnitudes are larger for non-negative numbers; for negative
	// numbers the ordering is inverted so that more-negative sorts first.
	sign := v.Sign()
	mag := v.Bytes()
	buf := make([]byte, 0, 2+4+len(mag))
	buf = append(buf, tagBig)
	if sign < 0 {
		buf = append(buf, 0x00)
		lenBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBuf, ^uint32(len(mag)))
		buf = append(buf, lenBuf...)
		inverted := make([]byte, len(mag))
		for i, b := range mag {
			inverted[i] = ^b
		}
		buf = append(buf, inverted...)
	} else {
		buf = append(buf, 0x01)
		lenBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBuf, uint32(len(mag)))
		buf = append(buf, lenBuf...)
		buf = append(buf, mag...)
	}
	return buf
}

func encodeFloat64(f float64) []byte {
	bits := math.Float64bits(f)
	if f >= 0 {
		bits |= 1 << 63
	} else {
		bits = ^bits
	}
	buf := make([]byte, 9)
	buf[0] = tagReal
	binary.BigEndian.PutUint64(buf[1:], bits)
	return buf
}

func encodeText(s string, collation types.Collation) []byte {
	normalized := collation.Normalize(s)
	buf := make([]byte, 0, len(normalized)+2)
	buf = append(buf, tagText)
	buf = append(buf, []byte(normalized)...)
	buf = append(buf, textTerminator)
	return buf
}

func encodeBlob(b []byte) []byte {
	buf := make([]byte, 0, len(b)+3)
	buf = append(buf, tagBlob)
	for _, c := range b {
		if c == blobEscapeByte {
			buf = append(buf, blobEscapeByte, blobEscapeCont)
		} else {
			buf = append(buf, c)
		}
	}
	buf = append(buf, blobEnd, blobEnd)
	return buf
}

// invert flips every byte of enc in place, implementing descending order
// for a component whose ascending encoding is enc.
func invert(enc []byte) {
	for i, b := range enc {
		enc[i] = ^b
	}
}
