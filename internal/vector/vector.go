// Package vector holds embedding math and the blob encoding used by stores
// without a native vector type.
package vector

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/sells-group/company-intel/internal/model"
)

// Cosine returns the cosine similarity of a and b in [-1,1]. Mismatched
// lengths and zero vectors yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// Rounding can push identical vectors a hair past 1.
	return math.Max(-1, math.Min(1, sim))
}

// Normalize returns a unit-length copy of v. A zero vector stays zero.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var mag float64
	for _, x := range v {
		mag += float64(x) * float64(x)
	}
	if mag == 0 {
		return out
	}
	mag = math.Sqrt(mag)
	for i, x := range v {
		out[i] = float32(float64(x) / mag)
	}
	return out
}

// Encode serializes v as little-endian float32s.
func Encode(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

// Decode is the inverse of Encode. Malformed input yields nil.
func Decode(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v
}

// Candidate is a stored vector to rank against a query.
type Candidate struct {
	CompanyID string
	Name      string
	Vector    []float32
}

// TopK scores every candidate against query by cosine similarity and
// returns the best k, highest first, ties by company id.
func TopK(query []float32, candidates []Candidate, k int) []model.ScoredID {
	scored := make([]model.ScoredID, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, model.ScoredID{CompanyID: c.CompanyID, Name: c.Name, Score: Cosine(query, c.Vector)})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].CompanyID < scored[j].CompanyID
	})
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
