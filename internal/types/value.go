// Package types implements the engine's scalar data model (spec §3): the
// SqlValue variant, Row, logical types, and collations.
package types

import (
	"fmt"
	"math/big"
	"strings"
)

// Kind identifies which SqlValue variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindInteger
	KindBigInt
	KindReal
	KindText
	KindBlob
)

// Value is a single SqlValue: null, a 64-bit signed integer, an
// arbitrary-precision integer, an IEEE-754 double, UTF-8 text, or a blob.
// Booleans are represented as 0/1 integers per spec §3.
type Value struct {
	kind   Kind
	i64    int64
	big    *big.Int
	f64    float64
	text   string
	blob   []byte
}

func Null() Value                 { return Value{kind: KindNull} }
func Integer(v int64) Value       { return Value{kind: KindInteger, i64: v} }
func BigInt(v *big.Int) Value     { return Value{kind: KindBigInt, big: v} }
func Real(v float64) Value        { return Value{kind: KindReal, f64: v} }
func Text(v string) Value         { return Value{kind: KindText, text: v} }
func Blob(v []byte) Value         { return Value{kind: KindBlob, blob: v} }
func Bool(v bool) Value {
	if v {
		return Integer(1)
	}
	return Integer(0)
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) Int64() int64   { return v.i64 }
func (v Value) Big() *big.Int  { return v.big }
func (v Value) Float64() float64 { return v.f64 }
func (v Value) Str() string    { return v.text }
func (v Value) Bytes() []byte  { return v.blob }

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindInteger:
		return fmt.Sprintf("%d", v.i64)
	case KindBigInt:
		return v.big.String()
	case KindReal:
		return fmt.Sprintf("%v", v.f64)
	case KindText:
		return v.text
	case KindBlob:
		return fmt.Sprintf("x'%x'", v.blob)
	default:
		return "?"
	}
}

// Row is an ordered sequence of SqlValues matching a schema.
type Row []Value

func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Collation is a total order on text values, identified by name.
type Collation string

const (
	CollationBinary Collation = "BINARY"
	CollationNocase Collation = "NOCASE"
	CollationRtrim  Collation = "RTRIM"
)

// Normalize applies the collation's text transform ahead of comparison or
// encoding: NOCASE folds ASCII case, RTRIM strips trailing spaces, BINARY is
// the identity.
func (c Collation) Normalize(s string) string {
	switch c {
	case CollationNocase:
		return strings.ToUpper(s)
	case CollationRtrim:
		return strings.TrimRight(s, " ")
	default:
		return s
	}
}

// Compare orders two text values under this collation: -1, 0, 1.
func (c Collation) Compare(a, b string) int {
	na, nb := c.Normalize(a), c.Normalize(b)
	switch {
	case na < nb:
		return -1
	case na > nb:
		return 1
	default:
		return 0
	}
}
