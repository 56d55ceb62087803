package storage

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dshills/kaze/pkg/types"
)

// serializeVector converts a float32 slice to a little-endian byte blob
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("%w: vector blob length %d is not a multiple of 4", types.ErrIntegrity, len(blob))
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector, nil
}

// validateVector rejects vectors that do not fit the collection
func validateVector(key string, vector []float32, dimension int) error {
	if len(vector) != dimension {
		return fmt.Errorf("%w: chunk %s has %d dimensions, collection expects %d",
			types.ErrDimensionMismatch, key, len(vector), dimension)
	}
	for _, v := range vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: chunk %s has a non-finite vector component", types.ErrIntegrity, key)
		}
	}
	return nil
}

// SerializeVector exports serializeVector for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector exports deserializeVector for testing
func DeserializeVector(blob []byte) ([]float32, error) {
	return deserializeVector(blob)
}
