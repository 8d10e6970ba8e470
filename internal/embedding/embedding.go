// Package embedding provides a pluggable interface for text embedding
// providers.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
)

// Vector is a float32 embedding vector.
type Vector = []float32

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Dims() int
}

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Hash is a deterministic, dependency-free embedder: each token hashes to
// a signed bucket and the result is L2-normalized. Good enough for keyed
// similarity without a model; recall quality scales with the external
// backend's own embeddings when one is configured.
type Hash struct {
	dims int
}

// NewHash creates a hash embedder. Dims defaults to 384.
func NewHash(dims int) *Hash {
	if dims <= 0 {
		dims = 384
	}
	return &Hash{dims: dims}
}

var tokenReplacer = strings.NewReplacer("/", " ", ":", " ", ",", " ", ".", " ")

func (h *Hash) Embed(_ context.Context, text string) (Vector, error) {
	vec := make(Vector, h.dims)
	tokens := strings.Fields(tokenReplacer.Replace(strings.ToLower(text)))
	if len(tokens) == 0 {
		return vec, nil
	}

	for _, t := range tokens {
		sum := sha256.Sum256([]byte(t))
		idx := int(binary.LittleEndian.Uint32(sum[:4])) % h.dims
		if idx < 0 {
			idx += h.dims
		}
		if sum[4]%2 == 0 {
			vec[idx]++
		} else {
			vec[idx]--
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func (h *Hash) Dims() int { return h.dims }
