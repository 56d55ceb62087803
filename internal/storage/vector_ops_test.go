package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/kaze/pkg/types"
)

func TestSerializeDeserializeVector(t *testing.T) {
	tests := []struct {
		name   string
		vector []float32
	}{
		{"empty", []float32{}},
		{"single", []float32{1.5}},
		{"mixed signs", []float32{-1, 0, 0.25, 3.75, -0.001}},
		{"extremes", []float32{math.MaxFloat32, math.SmallestNonzeroFloat32}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob := SerializeVector(tt.vector)
			assert.Len(t, blob, len(tt.vector)*4)

			got, err := DeserializeVector(blob)
			require.NoError(t, err)
			assert.Equal(t, tt.vector, got)
		})
	}
}

func TestDeserializeVector_Truncated(t *testing.T) {
	_, err := DeserializeVector([]byte{1, 2, 3})
	assert.ErrorIs(t, err, types.ErrIntegrity)
}

func TestValidateVector(t *testing.T) {
	tests := []struct {
		name    string
		vector  []float32
		dim     int
		wantErr error
	}{
		{"ok", []float32{1, 2, 3}, 3, nil},
		{"too short", []float32{1, 2}, 3, types.ErrDimensionMismatch},
		{"too long", []float32{1, 2, 3, 4}, 3, types.ErrDimensionMismatch},
		{"nan", []float32{1, float32(math.NaN()), 3}, 3, types.ErrIntegrity},
		{"inf", []float32{float32(math.Inf(1)), 2, 3}, 3, types.ErrIntegrity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateVector("k", tt.vector, tt.dim)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
