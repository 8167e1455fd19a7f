package rowcodec

import (
	"encoding/binary"
	"fmt"
)

// Stats is the table-level statistics record stored under the stats store's
// single fixed key (spec §3/§6.1).
type Stats struct {
	RowCount  uint64
	UpdatedAt int64 // millis
}

// SerializeStats encodes a Stats record as a fixed 16-byte big-endian
// record (rowCount, updatedAt), without the tag-length-value framing rows
// use.
func SerializeStats(s Stats) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], s.RowCount)
	binary.BigEndian.PutUint64(buf[8:16], uint64(s.UpdatedAt))
	return buf
}

// DeserializeStats decodes a record produced by SerializeStats.
func DeserializeStats(data []byte) (Stats, error) {
	if len(data) != 16 {
		return Stats{}, fmt.Errorf("rowcodec: stats record must be 16 bytes, got %d", len(data))
	}
	return Stats{
		RowCount:  binary.BigEndian.Uint64(data[0:8]),
		UpdatedAt: int64(binary.BigEndian.Uint64(data[8:16])),
	}, nil
}
