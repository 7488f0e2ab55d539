package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-9)
		})
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := Normalize([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, zero)
}

func TestEncodeDecode(t *testing.T) {
	in := []float32{0.25, -1.5, 3.125}
	out := Decode(Encode(in))
	require.Len(t, out, 3)
	assert.Equal(t, in, out)

	assert.Nil(t, Decode([]byte{1, 2, 3}))
	assert.Nil(t, Decode(nil))
}

func TestTopK(t *testing.T) {
	q := []float32{1, 0}
	cands := []Candidate{
		{CompanyID: "b", Vector: []float32{1, 0}},
		{CompanyID: "a", Vector: []float32{1, 0}},
		{CompanyID: "c", Vector: []float32{0, 1}},
		{CompanyID: "d", Vector: []float32{-1, 0}},
	}

	got := TopK(q, cands, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].CompanyID)
	assert.Equal(t, "b", got[1].CompanyID)
	assert.Equal(t, "c", got[2].CompanyID)

	all := TopK(q, cands, 0)
	assert.Len(t, all, 4)
	assert.InDelta(t, -1, all[3].Score, 1e-9)
}
