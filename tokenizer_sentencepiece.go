package main

import (
	"errors"
	"fmt"

	"github.com/eliben/go-sentencepiece"
	spunigram "github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"
)

// pieceSegmenter splits text into sentencepiece pieces ("▁" marks a word start)
type pieceSegmenter interface {
	pieces(text string) []string
}

// bpeSegmenter runs Gemma-style BPE models: no dummy prefix and no
// whitespace folding in the normalizer.
type bpeSegmenter struct {
	proc *sentencepiece.Processor
}

func (s bpeSegmenter) pieces(text string) []string {
	var out []string
	for _, tok := range s.proc.Encode(text) {
		out = append(out, tok.Text)
	}
	return out
}

// unigramSegmenter runs XLM-R style models (multilingual-e5): unigram
// lattice, NFKC normalization and a dummy "▁" prefix.
type unigramSegmenter struct {
	tokenize func(text string) []spunigram.Token
}

func (s unigramSegmenter) pieces(text string) []string {
	toks := s.tokenize(text)
	out := make([]string, 0, len(toks))
	for _, tok := range toks {
		out = append(out, tok.Text)
	}
	return out
}

// SentencePieceTokenizer delegates segmentation to a sentencepiece model and
// then maps pieces through the vocabulary like WordPieceTokenizer. It never
// fails: when the model could not be loaded or segmentation breaks, the text
// is reported as a single [UNK].
type SentencePieceTokenizer struct {
	vocab   *Vocabulary
	seg     pieceSegmenter
	loadErr error
	logger  *Logger
}

// NewSentencePieceTokenizer loads the sentencepiece model at path. A load
// failure is logged and kept; it is not returned.
func NewSentencePieceTokenizer(path string, vocab *Vocabulary, logger *Logger) *SentencePieceTokenizer {
	if logger == nil {
		logger = NewDiscardLogger()
	}
	t := &SentencePieceTokenizer{vocab: vocab, logger: logger}

	seg, err := loadSegmenter(path, logger)
	if err != nil {
		t.loadErr = fmt.Errorf("can't create sentencepiece from %s: %w", path, err)
		logger.Error("%v", t.loadErr)
		return t
	}
	t.seg = seg
	return t
}

// loadSegmenter tries the BPE processor first and falls back to the unigram
// encoder for models it refuses
func loadSegmenter(path string, logger *Logger) (pieceSegmenter, error) {
	proc, bpeErr := newBPEProcessor(path)
	if bpeErr == nil {
		logger.Debug("sentencepiece %s: bpe processor", path)
		return bpeSegmenter{proc: proc}, nil
	}
	logger.Debug("sentencepiece %s: bpe processor refused model (%v), using unigram encoder", path, bpeErr)

	sp, err := spunigram.NewSentencepieceFromFile(path, false)
	if err != nil {
		return nil, errors.Join(bpeErr, err)
	}
	return unigramSegmenter{tokenize: sp.Tokenize}, nil
}

// newBPEProcessor wraps NewProcessorFromPath, which panics on models whose
// normalizer spec leaves the whitespace options unset
func newBPEProcessor(path string) (proc *sentencepiece.Processor, err error) {
	defer func() {
		if r := recover(); r != nil {
			proc, err = nil, fmt.Errorf("bpe processor: %v", r)
		}
	}()
	return sentencepiece.NewProcessorFromPath(path)
}

func (t *SentencePieceTokenizer) Tokenize(text string) *TokenizeResult {
	return encodeTokens(withMarkers(t.segment(text)), t.vocab)
}

// segment returns the sentencepiece pieces of text, or [UNK] on any failure
func (t *SentencePieceTokenizer) segment(text string) (pieces []string) {
	if t.seg == nil {
		return []string{TokenUNK}
	}
	if text == "" {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("sentencepiece segmentation failed: %v", r)
			pieces = []string{TokenUNK}
		}
	}()

	return t.seg.pieces(text)
}

// LoadError returns the error hit while loading the sentencepiece model, if any
func (t *SentencePieceTokenizer) LoadError() error {
	return t.loadErr
}

func (t *SentencePieceTokenizer) Vocabulary() *Vocabulary { return t.vocab }
func (t *SentencePieceTokenizer) Kind() TokenizerKind     { return TokenizerSentencePiece }
