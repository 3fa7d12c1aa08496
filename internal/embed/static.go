package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// StaticEmbedder produces deterministic embeddings from token and
// character n-gram hashes. Quality is far below a learned model, but it
// needs no external service, which keeps indexing and search usable when
// no model server is running.
type StaticEmbedder struct {
	dims int
}

const (
	defaultStaticDims = 256

	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// NewStaticEmbedder builds an embedder with the given dimension count.
// Zero means the default.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = defaultStaticDims
	}
	return &StaticEmbedder{dims: dims}
}

func (e *StaticEmbedder) Dimensions() int {
	return e.dims
}

// Embed hashes tokens and trigrams into a normalized vector.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, e.dims)

	lower := strings.ToLower(text)
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		vec[e.slot(tok)] += tokenWeight
		runes := []rune(tok)
		for i := 0; i+ngramSize <= len(runes); i++ {
			vec[e.slot(string(runes[i:i+ngramSize]))] += ngramWeight
		}
	}

	normalize(vec)
	return vec, nil
}

func (e *StaticEmbedder) slot(s string) int {
	h := fnv.New32a()
	h.Write([]byte(s))
	return int(h.Sum32() % uint32(e.dims))
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
