package embedcache

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Vectors are stored as little-endian float64 blobs. The fixed encoding
// makes round-trips bit-exact, which the lookup tests rely on.

func encodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(blob []byte) ([]float64, error) {
	if len(blob) == 0 || len(blob)%8 != 0 {
		return nil, fmt.Errorf("vector blob length %d not a multiple of 8", len(blob))
	}
	v := make([]float64, len(blob)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(blob[i*8:]))
	}
	return v, nil
}
