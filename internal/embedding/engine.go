// Package embedding generates vector embeddings for part similarity
// search. Two backends: Google GenAI (cloud, shares the Gemini API key)
// and Ollama (local).
package embedding

import (
	"context"
	"fmt"
	"math"
	"sort"

	"quadforge/internal/logging"
)

// =============================================================================
// ENGINE INTERFACE
// =============================================================================

// DefaultDims is the dimensionality both backends are configured to
// produce.
const DefaultDims = 768

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings.
	Dimensions() int

	// Name returns the engine name.
	Name() string
}

// Config holds embedding engine configuration.
type Config struct {
	// Provider: "genai" or "ollama"
	Provider string `json:"provider"`

	// GenAI configuration. The API key is the same Gemini key the rest
	// of the tool runs on.
	APIKey string `json:"api_key"`
	Model  string `json:"model"` // Default: "gemini-embedding-001"

	// Ollama configuration
	OllamaEndpoint string `json:"ollama_endpoint"` // Default: "http://localhost:11434"
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider:       "genai",
		Model:          "gemini-embedding-001",
		OllamaEndpoint: "http://localhost:11434",
	}
}

// =============================================================================
// FACTORY
// =============================================================================

// NewEngine creates an embedding engine based on configuration.
func NewEngine(cfg Config) (Engine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	if cfg.Provider == "" {
		cfg.Provider = "genai"
	}
	logging.Embedding("Creating embedding engine with provider=%s model=%s", cfg.Provider, cfg.Model)

	var engine Engine
	var err error
	switch cfg.Provider {
	case "genai":
		engine, err = NewGenAIEngine(cfg.APIKey, cfg.Model)
	case "ollama":
		engine, err = NewOllamaEngine(cfg.OllamaEndpoint, cfg.Model)
	default:
		err = fmt.Errorf("unsupported embedding provider: %s (use 'genai' or 'ollama')", cfg.Provider)
	}
	if err != nil {
		logging.EmbeddingError("Failed to create embedding engine: %v", err)
		return nil, err
	}

	logging.Embedding("Embedding engine ready: name=%s dimensions=%d", engine.Name(), engine.Dimensions())
	return engine, nil
}

// =============================================================================
// SIMILARITY UTILITIES
// =============================================================================

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}
	var dot, magA, magB float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}

// Match is one similarity search result.
type Match struct {
	Index      int
	Similarity float64
}

// TopK returns the corpus indices most similar to the query, best
// first. Vectors with mismatched dimensions are skipped.
func TopK(query []float32, corpus [][]float32, k int) []Match {
	if k <= 0 {
		k = 10
	}
	matches := make([]Match, 0, len(corpus))
	skipped := 0
	for i, vec := range corpus {
		sim, err := CosineSimilarity(query, vec)
		if err != nil {
			skipped++
			continue
		}
		matches = append(matches, Match{Index: i, Similarity: sim})
	}
	if skipped > 0 {
		logging.EmbeddingDebug("TopK: skipped %d vectors with mismatched dimensions", skipped)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
