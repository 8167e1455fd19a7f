package keycodec

import (
	"bytes"

	"quereus/internal/types"
)

// Key-space prefixes (spec §3): data keys, index keys (with a separator
// before the trailing PK suffix), and a reserved range for catalog/meta
// keys addressed by buildMetaKey/buildMetaScanBounds.
const (
	DataPrefix byte = 0x01
	IdxPrefix  byte = 0x02
	MetaPrefix byte = 0x03
	sep        byte = 0xFE
)

// Bounds is an inclusive/exclusive range suitable for kv.IterOptions.
type Bounds struct {
	Lower []byte // inclusive
	Upper []byte // exclusive
}

// BuildDataKey builds DATA_PREFIX || encodeComposite(pk).
func BuildDataKey(pk []types.Value, opts Options) ([]byte, error) {
	enc, err := EncodeComposite(pk, opts)
	if err != nil {
		return nil, err
	}
	return append([]byte{DataPrefix}, enc...), nil
}

// BuildIndexKey builds IDX_PREFIX || encodeComposite(indexValues) || SEP ||
// encodeComposite(pk). Index values are empty; the key is the entry.
func BuildIndexKey(indexValues, pk []types.Value, opts Options) ([]byte, error) {
	ev, err := EncodeComposite(indexValues, opts)
	if err != nil {
		return nil, err
	}
	pkv, err := EncodeComposite(pk, Options{Collation: opts.Collation})
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(ev)+1+len(pkv))
	out = append(out, IdxPrefix)
	out = append(out, ev...)
	out = append(out, sep)
	out = append(out, pkv...)
	return out, nil
}

// SplitIndexKey separates an index key back into its indexed-column prefix
// bytes and the trailing PK suffix bytes (both still encoded), used to
// recover the PK from a covering index scan.
func SplitIndexKey(key []byte) (indexPart, pkPart []byte, ok bool) {
	if len(key) == 0 || key[0] != IdxPrefix {
		return nil, nil, false
	}
	rest := key[1:]
	i := bytes.IndexByte(rest, sep)
	if i < 0 {
		return nil, nil, false
	}
	return rest[:i], rest[i+1:], true
}

// BuildFullScanBounds returns the bounds covering every data key in a
// table's store.
func BuildFullScanBounds() Bounds {
	return Bounds{
		Lower: []byte{DataPrefix},
		Upper: []byte{DataPrefix + 1},
	}
}

// BuildTableScanBounds narrows a full scan to the leading-PK-column range
// implied by the supplied lower/upper partial-key constraints (both may be
// nil for an open end). This realizes the spec §9 requirement that bounds
// be constructed from leading-column range constraints rather than falling
// back to a full scan.
func BuildTableScanBounds(lower, upper []types.Value, lowerInclusive, upperInclusive bool, opts Options) (Bounds, error) {
	b := BuildFullScanBounds()
	if len(lower) > 0 {
		enc, err := EncodeComposite(lower, opts)
		if err != nil {
			return Bounds{}, err
		}
		key := append([]byte{DataPrefix}, enc...)
		if !lowerInclusive {
			key = append(key, 0xFF)
		}
		b.Lower = key
	}
	if len(upper) > 0 {
		enc, err := EncodeComposite(upper, opts)
		if err != nil {
			return Bounds{}, err
		}
		key := append([]byte{DataPrefix}, enc...)
		if upperInclusive {
			key = append(key, 0xFF)
		}
		b.Upper = key
	}
	return b, nil
}

// BuildMetaKey builds a catalog key: META_PREFIX || kind || 0x00 ||
// part || 0x00 || part ... (spec §4.6/§6.1, e.g. ddl|schema|table).
func BuildMetaKey(kind string, parts ...string) []byte {
	var out []byte
	out = append(out, MetaPrefix)
	out = append(out, []byte(kind)...)
	for _, p := range parts {
		out = append(out, 0x00)
		out = append(out, []byte(p)...)
	}
	return out
}

// BuildMetaScanBounds returns the bounds covering every meta key of the
// given kind, for catalog reconstruction on boot (spec §4.6).
func BuildMetaScanBounds(kind string) Bounds {
	lower := append([]byte{MetaPrefix}, []byte(kind)...)
	lower = append(lower, 0x00)
	upper := make([]byte, len(lower))
	copy(upper, lower)
	upper = incrementBytes(upper)
	return Bounds{Lower: lower, Upper: upper}
}

// incrementBytes returns the lexicographically-next byte string, used to
// turn a prefix into an exclusive upper bound.
func incrementBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xFF {
			out[i]++
			return out[:i+1]
		}
	}
	// All 0xFF: no finite successor; caller must treat the range as open.
	return append(out, 0x00)
}
