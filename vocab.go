package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Special tokens
const (
	TokenPAD  = "[PAD]"
	TokenUNK  = "[UNK]"
	TokenCLS  = "[CLS]"
	TokenSEP  = "[SEP]"
	TokenMASK = "[MASK]"
)

// Vocabulary maps token strings to ids. It is read-only after LoadVocabulary
// and safe for concurrent use without locking.
type Vocabulary struct {
	ids   map[string]int64
	unkID int64
}

// SpecialTokenIDs holds the resolved ids of the special tokens, -1 when absent
type SpecialTokenIDs struct {
	PAD, UNK, CLS, SEP, MASK int64
}

// LoadVocabulary reads a newline-delimited vocabulary file. A token's id is
// the zero-based index of its line among all lines; blank lines use up an
// index but add no entry. A HuggingFace tokenizer.json is accepted too.
func LoadVocabulary(path string) (*Vocabulary, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return loadVocabularyJSON(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, ErrVocabLoadFailed(path, err)
	}
	defer func() { _ = f.Close() }()

	ids := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var index int64
	for scanner.Scan() {
		token := strings.TrimSpace(scanner.Text())
		// a repeated token keeps its last line index
		if token != "" {
			ids[token] = index
		}
		index++
	}
	if err := scanner.Err(); err != nil {
		return nil, ErrVocabLoadFailed(path, err)
	}
	if len(ids) == 0 {
		return nil, ErrVocabLoadFailed(path, fmt.Errorf("no tokens in file"))
	}

	return NewVocabulary(ids), nil
}

// TokenizerJSON represents the vocabulary part of the HuggingFace tokenizer.json
// format. WordPiece models store the vocab as a token to id map, Unigram
// models as a list of [piece, score] pairs indexed by id.
type TokenizerJSON struct {
	Model struct {
		Vocab json.RawMessage `json:"vocab"`
	} `json:"model"`
	AddedTokens []struct {
		ID      int64  `json:"id"`
		Content string `json:"content"`
	} `json:"added_tokens"`
}

func loadVocabularyJSON(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrVocabLoadFailed(path, err)
	}

	var tj TokenizerJSON
	if err := json.Unmarshal(data, &tj); err != nil {
		return nil, ErrVocabLoadFailed(path, err)
	}

	ids, err := parseModelVocab(tj.Model.Vocab)
	if err != nil {
		return nil, ErrVocabLoadFailed(path, err)
	}
	for _, at := range tj.AddedTokens {
		ids[at.Content] = at.ID
	}
	if len(ids) == 0 {
		return nil, ErrVocabLoadFailed(path, fmt.Errorf("no vocab in tokenizer.json"))
	}
	return NewVocabulary(ids), nil
}

func parseModelVocab(raw json.RawMessage) (map[string]int64, error) {
	ids := make(map[string]int64)
	if len(raw) == 0 || string(raw) == "null" {
		return ids, nil
	}

	if err := json.Unmarshal(raw, &ids); err == nil {
		return ids, nil
	}

	var pairs [][]json.RawMessage
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, fmt.Errorf("model.vocab is neither a map nor a piece list: %w", err)
	}
	for i, pair := range pairs {
		if len(pair) == 0 {
			continue
		}
		var piece string
		if err := json.Unmarshal(pair[0], &piece); err != nil {
			return nil, fmt.Errorf("model.vocab[%d]: %w", i, err)
		}
		ids[piece] = int64(i)
	}
	return ids, nil
}

// NewVocabulary builds a vocabulary from an explicit token to id map
func NewVocabulary(ids map[string]int64) *Vocabulary {
	v := &Vocabulary{ids: make(map[string]int64, len(ids))}
	for tok, id := range ids {
		v.ids[tok] = id
	}
	if id, ok := v.ids[TokenUNK]; ok {
		v.unkID = id
	} else if id, ok := v.ids["<unk>"]; ok {
		v.unkID = id
	}
	return v
}

// Lookup returns the id of token, the [UNK] id for unknown tokens, or 0 if
// the vocabulary has no [UNK] either
func (v *Vocabulary) Lookup(token string) int64 {
	if id, ok := v.ids[token]; ok {
		return id
	}
	return v.unkID
}

// Contains reports whether token has its own entry
func (v *Vocabulary) Contains(token string) bool {
	_, ok := v.ids[token]
	return ok
}

// Size returns the number of entries
func (v *Vocabulary) Size() int {
	return len(v.ids)
}

// SpecialTokens resolves the five special tokens
func (v *Vocabulary) SpecialTokens() SpecialTokenIDs {
	get := func(tok string) int64 {
		if id, ok := v.ids[tok]; ok {
			return id
		}
		return -1
	}
	return SpecialTokenIDs{
		PAD:  get(TokenPAD),
		UNK:  get(TokenUNK),
		CLS:  get(TokenCLS),
		SEP:  get(TokenSEP),
		MASK: get(TokenMASK),
	}
}

// isSpecialToken reports whether tok is [CLS] or [SEP], the markers the
// scorer excludes
func isSpecialToken(tok string) bool {
	return tok == TokenCLS || tok == TokenSEP
}
