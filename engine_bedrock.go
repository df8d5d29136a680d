package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// bedrockInvoker is the part of the Bedrock Runtime client the engine uses
type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockEngine computes embeddings remotely with an Amazon Titan text
// embedding model. Token ids are ignored; the engine works on token text.
type BedrockEngine struct {
	client  bedrockInvoker
	modelID string
	model   ModelConfig
}

// TitanEmbedRequest represents the request body for Titan text embeddings
type TitanEmbedRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
	Normalize  bool   `json:"normalize"`
}

// TitanEmbedResponse represents the response from Titan text embeddings
type TitanEmbedResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

// NewBedrockEngine creates a Bedrock engine with configuration from the environment
func NewBedrockEngine(ctx context.Context, opts EngineOptions) (*BedrockEngine, error) {
	region := opts.AWSRegion
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, ErrAWSConfig(err)
	}

	return newBedrockEngine(bedrockruntime.NewFromConfig(cfg), opts), nil
}

func newBedrockEngine(client bedrockInvoker, opts EngineOptions) *BedrockEngine {
	modelID := opts.BedrockModel
	if modelID == "" {
		modelID = "amazon.titan-embed-text-v2:0"
	}
	return &BedrockEngine{client: client, modelID: modelID, model: opts.Model}
}

// Run embeds the joined token text for pooled models, or every token on its
// own for per-token models
func (e *BedrockEngine) Run(ctx context.Context, in *EngineInput) (*EngineOutput, error) {
	if !e.model.PerToken() {
		vec, err := e.embed(ctx, joinWordPieces(in.Tokens))
		if err != nil {
			return nil, err
		}
		return &EngineOutput{Shape: []int64{1, int64(len(vec))}, Data: vec}, nil
	}

	var data []float32
	hidden := 0
	for _, tok := range in.Tokens {
		vec, err := e.embed(ctx, strings.TrimPrefix(tok, wordPiecePrefix))
		if err != nil {
			return nil, err
		}
		if hidden == 0 {
			hidden = len(vec)
		} else if len(vec) != hidden {
			return nil, fmt.Errorf("embedding size changed from %d to %d", hidden, len(vec))
		}
		data = append(data, vec...)
	}
	return &EngineOutput{Shape: []int64{1, int64(len(in.Tokens)), int64(hidden)}, Data: data}, nil
}

func (e *BedrockEngine) embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(TitanEmbedRequest{InputText: text, Normalize: false})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, ErrBedrockInvoke(err)
	}

	var response TitanEmbedResponse
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(response.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding for %q", text)
	}
	return response.Embedding, nil
}

func (e *BedrockEngine) TensorsInfo() ModelTensorsInfo {
	return ModelTensorsInfo{
		Inputs:  []TensorDetails{{Name: "inputText", Shape: []int64{1}, DataType: "string"}},
		Outputs: []TensorDetails{{Name: "embedding", Shape: e.model.OutputShape, DataType: "float32"}},
	}
}

func (e *BedrockEngine) Close() error {
	return nil
}

// joinWordPieces rebuilds text from subword pieces, gluing ## continuations
// to the previous piece and dropping [CLS]/[SEP]
func joinWordPieces(tokens []string) string {
	var sb strings.Builder
	for _, tok := range tokens {
		if tok == TokenCLS || tok == TokenSEP {
			continue
		}
		if rest, ok := strings.CutPrefix(tok, wordPiecePrefix); ok {
			sb.WriteString(rest)
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(tok)
	}
	return sb.String()
}
