// Package rowcodec implements row and statistics serialization (spec §4.2,
// C2): a self-describing, per-value tag-length-value framing that must
// round-trip every SqlValue, including NaN text and empty blobs.
package rowcodec

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"quereus/internal/types"
)

const (
	tagNull byte = iota
	tagInt
	tagBig
	tagReal
	tagText
	tagBlob
)

// SerializeRow encodes a row as: varint column count, then per column a tag
// byte followed by the tag-specific payload.
func SerializeRow(row types.Row) []byte {
	buf := make([]byte, 0, 16*len(row))
	buf = appendUvarint(buf, uint64(len(row)))
	for _, v := range row {
		buf = appendValue(buf, v)
	}
	return buf
}

// DeserializeRow decodes a row previously produced by SerializeRow.
func DeserializeRow(data []byte) (types.Row, error) {
	r := &reader{buf: data}
	n, err := r.uvarint()
	if err != nil {
		return nil, fmt.Errorf("rowcodec: reading column count: %w", err)
	}
	row := make(types.Row, 0, n)
	for i := uint64(0); i < n; i++ {
		v, err := r.value()
		if err != nil {
			return nil, fmt.Errorf("rowcodec: reading column %d: %w", i, err)
		}
		row = append(row, v)
	}
	return row, nil
}

func appendValue(buf []byte, v types.Value) []byte {
	switch v.Kind() {
	case types.KindNull:
		return append(buf, tagNull)
	case types.KindInteger:
		buf = append(buf, tagInt)
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(v.Int64()))
		return append(buf, tmp[:]...)
	case types.KindBigInt:
		buf = append(buf, tagBig)
		mag := v.Big().Bytes()
		sign := int8(0)
		switch v.Big().Sign() {
		case -1:
			sign = -1
		case 1:
			sign = 1
		}
		buf = append(buf, byte(sign))
		buf = appendUvarint(buf, uint64(len(mag)))
		return append(buf, mag...)
	case types.KindReal:
		buf = append(buf, tagReal)
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v.Float64()))
		return append(buf, tmp[:]...)
	case types.KindText:
		buf = append(buf, tagText)
		b := []byte(v.Str())
		buf = appendUvarint(buf, uint64(len(b)))
		return append(buf, b...)
	case types.KindBlob:
		buf = append(buf, tagBlob)
		b := v.Bytes()
		buf = appendUvarint(buf, uint64(len(b)))
		return append(buf, b...)
	default:
		panic(fmt.Sprintf("rowcodec: unsupported value kind %d", v.Kind()))
	}
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("truncated varint")
	}
	r.pos += n
	return v, nil
}

func (r *reader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("truncated payload: need %d bytes, have %d", n, len(r.buf)-r.pos)
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *reader) value() (types.Value, error) {
	tagBytes, err := r.take(1)
	if err != nil {
		return types.Value{}, err
	}
	switch tagBytes[0] {
	case tagNull:
		return types.Null(), nil
	case tagInt:
		b, err := r.take(8)
		if err != nil {
			return types.Value{}, err
		}
		return types.Integer(int64(binary.BigEndian.Uint64(b))), nil
	case tagBig:
		signByte, err := r.take(1)
		if err != nil {
			return types.Value{}, err
		}
		n, err := r.uvarint()
		if err != nil {
			return types.Value{}, err
		}
		mag, err := r.take(int(n))
		if err != nil {
			return types.Value{}, err
		}
		bi := new(big.Int).SetBytes(mag)
		if int8(signByte[0]) < 0 {
			bi.Neg(bi)
		}
		return types.BigInt(bi), nil
	case tagReal:
		b, err := r.take(8)
		if err != nil {
			return types.Value{}, err
		}
		return types.Real(math.Float64frombits(binary.BigEndian.Uint64(b))), nil
	case tagText:
		n, err := r.uvarint()
		if err != nil {
			return types.Value{}, err
		}
		b, err := r.take(int(n))
		if err != nil {
			return types.Value{}, err
		}
		return types.Text(string(b)), nil
	case tagBlob:
		n, err := r.uvarint()
		if err != nil {
			return types.Value{}, err
		}
		b, err := r.take(int(n))
		if err != nil {
			return types.Value{}, err
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		return types.Blob(cp), nil
	default:
		return types.Value{}, fmt.Errorf("unknown value tag %d", tagBytes[0])
	}
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}
