package store

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
)

// Embedder turns text into a vector for semantic search. Implementations
// back onto an embedding service; tests substitute deterministic stubs
// through the shared-embedder factory.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EncodeEmbedding serializes a vector to the little-endian float32 blob
// stored in the knowledge_vec table.
func EncodeEmbedding(vec []float32) []byte {
	if vec == nil {
		return nil
	}
	b := make([]byte, len(vec)*4)
	for i, f := range vec {
		u := math.Float32bits(f)
		binary.LittleEndian.PutUint32(b[i*4:], u)
	}
	return b
}

// DecodeEmbedding is the inverse of EncodeEmbedding. A blob whose length
// is not a multiple of four is corrupt, not a shorter vector.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if b == nil {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, errors.New("invalid embedding blob length")
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		u := binary.LittleEndian.Uint32(b[i*4:])
		vec[i] = math.Float32frombits(u)
	}
	return vec, nil
}

// CosineSimilarity scores two vectors in [-1,1], higher meaning closer.
// Vectors of different or zero length score 0, which sorts them last.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		na += fa * fa
		nb += fb * fb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
