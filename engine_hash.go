package main

import (
	"context"
	"math"
	"strings"
)

// HashEngine produces deterministic pseudo-embeddings derived from the token
// text. It is NOT a language model: it exists for dry runs and tests, and is
// only used when selected explicitly with BERTLENS_ENGINE=hash.
type HashEngine struct {
	model ModelConfig
}

// NewHashEngine creates a hash engine honoring the model's output rank and hidden size
func NewHashEngine(model ModelConfig) *HashEngine {
	return &HashEngine{model: model}
}

// Run emits one vector per token for per-token models, or a single vector
// for the whole input otherwise
func (e *HashEngine) Run(ctx context.Context, in *EngineInput) (*EngineOutput, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	hidden := e.model.HiddenSize()
	if !e.model.PerToken() {
		return &EngineOutput{
			Shape: []int64{1, int64(hidden)},
			Data:  generatePseudoEmbedding(strings.Join(in.Tokens, " "), hidden),
		}, nil
	}

	seq := len(in.Tokens)
	data := make([]float32, 0, seq*hidden)
	for _, tok := range in.Tokens {
		data = append(data, generatePseudoEmbedding(tok, hidden)...)
	}
	return &EngineOutput{
		Shape: []int64{1, int64(seq), int64(hidden)},
		Data:  data,
	}, nil
}

func (e *HashEngine) TensorsInfo() ModelTensorsInfo {
	info := ModelTensorsInfo{}
	for _, name := range e.model.InputNames {
		info.Inputs = append(info.Inputs, TensorDetails{Name: name, Shape: []int64{1, -1}, DataType: "int64"})
	}
	info.Outputs = []TensorDetails{{Name: e.model.OutputName, Shape: e.model.OutputShape, DataType: "float32"}}
	return info
}

func (e *HashEngine) Close() error {
	return nil
}

// normalizeL2 normalizes a vector to unit length
func normalizeL2(v []float32) []float32 {
	var norm float32
	for _, x := range v {
		norm += x * x
	}
	norm = float32(math.Sqrt(float64(norm)))

	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
	return v
}

// generatePseudoEmbedding creates a deterministic vector from text. The
// vector is unit length scaled into [1, 2) so magnitude varies per text.
func generatePseudoEmbedding(text string, dim int) []float32 {
	embedding := make([]float32, dim)

	hash := uint64(0)
	for i, c := range text {
		hash = hash*31 + uint64(c) + uint64(i&0x7FFFFFFF) //nolint:gosec // overflow is intentional for hash
	}
	scale := 1 + float32(hash%1000)/1000

	for i := 0; i < dim; i++ {
		hash = hash*1103515245 + 12345
		embedding[i] = float32(hash%1000)/500.0 - 1.0
	}

	normalizeL2(embedding)
	for i := range embedding {
		embedding[i] *= scale
	}
	return embedding
}
