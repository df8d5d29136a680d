package main

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// TokenizeResult is the model-ready encoding of one text. All four slices have
// the same length; the mask is all ones and type ids all zeros.
type TokenizeResult struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
	Tokens        []string
}

// Len returns the number of tokens
func (r *TokenizeResult) Len() int {
	return len(r.Tokens)
}

// Tokenizer turns raw text into a TokenizeResult
type Tokenizer interface {
	Tokenize(text string) *TokenizeResult
	Vocabulary() *Vocabulary
	Kind() TokenizerKind
}

// NewTokenizer picks the tokenizer strategy declared by the model config
func NewTokenizer(cfg ModelConfig, store *ModelStore, logger *Logger) (Tokenizer, error) {
	vocab, err := LoadVocabulary(store.VocabPath(cfg))
	if err != nil {
		return nil, err
	}

	switch cfg.Tokenizer {
	case TokenizerCharClass:
		return NewCharClassTokenizer(vocab), nil
	case TokenizerWordPiece:
		return NewWordPieceTokenizer(vocab, !cfg.Cased), nil
	case TokenizerSentencePiece:
		return NewSentencePieceTokenizer(store.SentencePiecePath(cfg), vocab, logger), nil
	default:
		return nil, fmt.Errorf("unknown tokenizer %q for model %s", cfg.Tokenizer, cfg.Name)
	}
}

// encodeTokens maps tokens through the vocabulary and builds the unpadded
// single-segment mask and type ids
func encodeTokens(tokens []string, vocab *Vocabulary) *TokenizeResult {
	r := &TokenizeResult{
		InputIDs:      make([]int64, len(tokens)),
		AttentionMask: make([]int64, len(tokens)),
		TokenTypeIDs:  make([]int64, len(tokens)),
		Tokens:        tokens,
	}
	for i, tok := range tokens {
		r.InputIDs[i] = vocab.Lookup(tok)
		r.AttentionMask[i] = 1
	}
	return r
}

// withMarkers wraps pieces in [CLS] ... [SEP]
func withMarkers(pieces []string) []string {
	tokens := make([]string, 0, len(pieces)+2)
	tokens = append(tokens, TokenCLS)
	tokens = append(tokens, pieces...)
	return append(tokens, TokenSEP)
}

var nonWordChars = regexp.MustCompile(`[^a-zа-яё0-9 ]`)

// CharClassTokenizer is the bag-of-words tokenizer of the pooled multilingual
// models: lowercase, keep only Latin and Cyrillic letters and digits, and map
// whole words through the vocabulary. No [CLS]/[SEP] markers are added.
type CharClassTokenizer struct {
	vocab *Vocabulary
}

func NewCharClassTokenizer(vocab *Vocabulary) *CharClassTokenizer {
	return &CharClassTokenizer{vocab: vocab}
}

func (t *CharClassTokenizer) Tokenize(text string) *TokenizeResult {
	text = nonWordChars.ReplaceAllString(lower(norm.NFC.String(text)), " ")
	return encodeTokens(strings.Fields(text), t.vocab)
}

func (t *CharClassTokenizer) Vocabulary() *Vocabulary { return t.vocab }
func (t *CharClassTokenizer) Kind() TokenizerKind     { return TokenizerCharClass }

// WordPieceTokenizer is the classic BERT pipeline: basic splitting, then
// WordPiece per unit, wrapped in [CLS] ... [SEP]
type WordPieceTokenizer struct {
	vocab    *Vocabulary
	splitter BasicSplitter
	pieces   *WordPiece
}

func NewWordPieceTokenizer(vocab *Vocabulary, lowercase bool) *WordPieceTokenizer {
	return &WordPieceTokenizer{
		vocab:    vocab,
		splitter: BasicSplitter{Lowercase: lowercase},
		pieces:   NewWordPiece(vocab),
	}
}

func (t *WordPieceTokenizer) Tokenize(text string) *TokenizeResult {
	var pieces []string
	for _, unit := range t.splitter.Split(text) {
		pieces = append(pieces, t.pieces.Tokenize(unit)...)
	}
	return encodeTokens(withMarkers(pieces), t.vocab)
}

func (t *WordPieceTokenizer) Vocabulary() *Vocabulary { return t.vocab }
func (t *WordPieceTokenizer) Kind() TokenizerKind     { return TokenizerWordPiece }
