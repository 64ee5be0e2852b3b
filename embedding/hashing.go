package embedding

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// DefaultHashingDim is the dimension used when none is configured.
const DefaultHashingDim = 384

// Hashing is a deterministic bag-of-words embedder using signed feature
// hashing. It needs no network or model files, so it backs offline runs
// and tests. Vectors are L2-normalized.
type Hashing struct {
	dim int
}

// NewHashing creates a hashing embedder. dim <= 0 selects DefaultHashingDim.
func NewHashing(dim int) *Hashing {
	if dim <= 0 {
		dim = DefaultHashingDim
	}
	return &Hashing{dim: dim}
}

// Dimension returns the vector length.
func (h *Hashing) Dimension() int {
	return h.dim
}

// EmbedMany embeds each text independently.
func (h *Hashing) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(t)
	}
	return out, nil
}

func (h *Hashing) embed(text string) []float32 {
	vec := make([]float32, h.dim)
	for _, tok := range tokenize(text) {
		sum := xxhash.Sum64String(tok)
		bucket := sum % uint64(h.dim)
		if sum>>63 == 1 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// tokenize lowercases and splits on anything that is not a letter or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var _ Embedder = (*Hashing)(nil)
