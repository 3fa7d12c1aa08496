// Package embed provides query embedding for dense retrieval. The static
// embedder is deterministic and always available; the Ollama embedder
// calls a local model server and reports unavailability explicitly so
// the pipeline can degrade to sparse-only.
package embed

import "context"

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	// Embed returns the embedding for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the vector width this embedder produces.
	Dimensions() int
}
