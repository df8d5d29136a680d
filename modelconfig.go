package main

import (
	"fmt"
	"strings"
)

// TokenizerKind selects one of the tokenizer strategies
type TokenizerKind string

const (
	TokenizerCharClass     TokenizerKind = "charclass"
	TokenizerWordPiece     TokenizerKind = "wordpiece"
	TokenizerSentencePiece TokenizerKind = "sentencepiece"
)

// ModelConfig describes one supported model variant. Values are immutable;
// use FindModelConfig to look one up.
type ModelConfig struct {
	Name      string
	ModelFile string
	VocabFile string
	// SentencePieceFile is only set for TokenizerSentencePiece models
	SentencePieceFile string
	// OutputShape is [batch, hidden] for pooled models and
	// [batch, seq, hidden] for per-token models; seq is -1 (dynamic).
	OutputShape []int64
	Tokenizer   TokenizerKind
	// Cased models keep letter case through WordPiece pre-tokenization
	Cased bool

	InputNames []string
	OutputName string

	ModelURL         string
	VocabURL         string
	SentencePieceURL string
}

// HiddenSize returns the last dimension of the output shape
func (c ModelConfig) HiddenSize() int {
	if len(c.OutputShape) == 0 {
		return 0
	}
	return int(c.OutputShape[len(c.OutputShape)-1])
}

// PerToken reports whether the model emits one vector per input token
func (c ModelConfig) PerToken() bool {
	return len(c.OutputShape) == 3
}

var bertInputNames = []string{"input_ids", "attention_mask", "token_type_ids"}

// ModelConfigs is the closed set of supported models
var ModelConfigs = []ModelConfig{
	{
		Name:        "bert-base-multilingual-cased",
		ModelFile:   "bert-base-multilingual-cased.onnx",
		VocabFile:   "bert-base-multilingual-cased_vocab.txt",
		OutputShape: []int64{1, 768},
		Tokenizer:   TokenizerCharClass,
		InputNames:  bertInputNames,
		OutputName:  "pooler_output",
		VocabURL:    "https://huggingface.co/google-bert/bert-base-multilingual-cased/resolve/main/vocab.txt",
	},
	{
		Name:        "labse-en-ru",
		ModelFile:   "labse-en-ru.onnx",
		VocabFile:   "labse-en-ru_vocab.txt",
		OutputShape: []int64{1, 768},
		Tokenizer:   TokenizerCharClass,
		InputNames:  bertInputNames,
		OutputName:  "pooler_output",
		VocabURL:    "https://huggingface.co/cointegrated/LaBSE-en-ru/resolve/main/vocab.txt",
	},
	{
		Name:        "rubert-base-cased",
		ModelFile:   "rubert-base-cased.onnx",
		VocabFile:   "rubert-base-cased_vocab.txt",
		OutputShape: []int64{1, -1, 768},
		Tokenizer:   TokenizerWordPiece,
		Cased:       true,
		InputNames:  bertInputNames,
		OutputName:  "last_hidden_state",
		VocabURL:    "https://huggingface.co/DeepPavlov/rubert-base-cased/resolve/main/vocab.txt",
	},
	{
		Name:        "tinybert_general_4l_312d",
		ModelFile:   "tinybert_general_4l_312d.onnx",
		VocabFile:   "tinybert_general_4l_312d_vocab.txt",
		OutputShape: []int64{1, -1, 312},
		Tokenizer:   TokenizerWordPiece,
		InputNames:  bertInputNames,
		OutputName:  "last_hidden_state",
		VocabURL:    "https://huggingface.co/huawei-noah/TinyBERT_General_4L_312D/resolve/main/vocab.txt",
	},
	{
		Name:        "rubert-tiny2",
		ModelFile:   "rubert-tiny2.onnx",
		VocabFile:   "rubert-tiny2_vocab.txt",
		OutputShape: []int64{1, -1, 312},
		Tokenizer:   TokenizerWordPiece,
		InputNames:  bertInputNames,
		OutputName:  "last_hidden_state",
		ModelURL:    "https://huggingface.co/cointegrated/rubert-tiny2/resolve/main/onnx/model.onnx",
		VocabURL:    "https://huggingface.co/cointegrated/rubert-tiny2/resolve/main/vocab.txt",
	},
	{
		Name:              "multilingual-e5-small",
		ModelFile:         "multilingual-e5-small.onnx",
		VocabFile:         "multilingual-e5-small_vocab.txt",
		SentencePieceFile: "sentencepiece.bpe.model",
		OutputShape:       []int64{1, -1, 384},
		Tokenizer:         TokenizerSentencePiece,
		InputNames:        bertInputNames,
		OutputName:        "last_hidden_state",
		ModelURL:          "https://huggingface.co/intfloat/multilingual-e5-small/resolve/main/onnx/model.onnx",
		SentencePieceURL:  "https://huggingface.co/intfloat/multilingual-e5-small/resolve/main/sentencepiece.bpe.model",
	},
}

// FindModelConfig returns the model with the given name (case-insensitive)
func FindModelConfig(name string) (ModelConfig, error) {
	for _, cfg := range ModelConfigs {
		if strings.EqualFold(cfg.Name, name) {
			return cfg, nil
		}
	}
	return ModelConfig{}, fmt.Errorf("unknown model %q (available: %s)", name, strings.Join(ModelNames(), ", "))
}

// ModelNames lists the supported model names in registry order
func ModelNames() []string {
	names := make([]string, len(ModelConfigs))
	for i, cfg := range ModelConfigs {
		names[i] = cfg.Name
	}
	return names
}
