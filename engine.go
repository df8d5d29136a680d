package main

import (
	"context"
	"fmt"
	"strings"
)

// EngineType selects the inference backend
type EngineType string

const (
	EngineONNX    EngineType = "onnx"
	EngineBedrock EngineType = "bedrock"
	EngineHash    EngineType = "hash"
)

// ParseEngineType converts a string to EngineType
func ParseEngineType(s string) EngineType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bedrock", "aws", "titan":
		return EngineBedrock
	case "hash", "fake":
		return EngineHash
	default:
		return EngineONNX
	}
}

// InferenceEngine runs a model over one tokenized input (batch size 1)
type InferenceEngine interface {
	// Run returns the raw output tensor. Implementations are not required to
	// be safe for concurrent use; the analyzer serializes calls.
	Run(ctx context.Context, in *EngineInput) (*EngineOutput, error)

	// TensorsInfo describes the model's input and output tensors
	TensorsInfo() ModelTensorsInfo

	Close() error
}

// EngineInput is the int64 tensor contract shared by all engines. Tokens is
// carried alongside for engines that work on text rather than ids.
type EngineInput struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
	Tokens        []string
}

// NewEngineInput wraps a tokenizer result
func NewEngineInput(r *TokenizeResult) *EngineInput {
	return &EngineInput{
		InputIDs:      r.InputIDs,
		AttentionMask: r.AttentionMask,
		TokenTypeIDs:  r.TokenTypeIDs,
		Tokens:        r.Tokens,
	}
}

// EngineOutput is a dense float32 tensor, either [1, hidden] or [1, seq, hidden]
type EngineOutput struct {
	Shape []int64
	Data  []float32
}

// Rows splits the output into one vector per sequence position. A pooled
// [1, hidden] output yields a single row.
func (o *EngineOutput) Rows() [][]float32 {
	hidden := int(o.Shape[len(o.Shape)-1])
	n := len(o.Data) / hidden
	rows := make([][]float32, n)
	for i := 0; i < n; i++ {
		rows[i] = o.Data[i*hidden : (i+1)*hidden]
	}
	return rows
}

// checkOutput validates an engine output against the expected rank, hidden
// size and (for per-token outputs) sequence length
func checkOutput(out *EngineOutput, cfg ModelConfig, seqLen int) error {
	if out == nil {
		return fmt.Errorf("engine returned no output")
	}
	if len(out.Shape) != len(cfg.OutputShape) {
		return fmt.Errorf("output rank %d, expected %d (shape %v)", len(out.Shape), len(cfg.OutputShape), out.Shape)
	}
	if out.Shape[0] != 1 {
		return fmt.Errorf("output batch %d, expected 1", out.Shape[0])
	}
	if hidden := out.Shape[len(out.Shape)-1]; hidden <= 0 {
		return fmt.Errorf("output hidden size %d", hidden)
	}
	if cfg.PerToken() && out.Shape[1] != int64(seqLen) {
		return fmt.Errorf("output sequence length %d, expected %d", out.Shape[1], seqLen)
	}
	want := int64(1)
	for _, d := range out.Shape {
		want *= d
	}
	if int64(len(out.Data)) != want {
		return fmt.Errorf("output has %d elements, shape %v needs %d", len(out.Data), out.Shape, want)
	}
	return nil
}

// TensorDetails describes one named model tensor
type TensorDetails struct {
	Name     string
	Shape    []int64
	DataType string
}

func (d TensorDetails) String() string {
	return fmt.Sprintf("%s %s %v", d.Name, d.DataType, d.Shape)
}

// ModelTensorsInfo lists a model's input and output tensors
type ModelTensorsInfo struct {
	Inputs  []TensorDetails
	Outputs []TensorDetails
}

// EngineOptions carries everything an engine constructor may need
type EngineOptions struct {
	Model   ModelConfig
	Mapping *ModelMapping // ONNX only

	NumThreads int

	AWSRegion    string
	BedrockModel string
}

// NewEngine creates an inference engine of the requested type
func NewEngine(ctx context.Context, engineType EngineType, opts EngineOptions) (InferenceEngine, error) {
	switch engineType {
	case EngineONNX:
		if opts.Mapping == nil {
			return nil, fmt.Errorf("onnx engine needs a mapped model file")
		}
		return newONNXEngine(opts)
	case EngineBedrock:
		return NewBedrockEngine(ctx, opts)
	case EngineHash:
		return NewHashEngine(opts.Model), nil
	default:
		return nil, fmt.Errorf("unknown engine: %s", engineType)
	}
}

// IsONNXAvailable checks if ONNX runtime is available on this system
func IsONNXAvailable() bool {
	return isONNXAvailable()
}
