package main

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestWordPieceTokenizerCyrillic(t *testing.T) {
	vocab := NewVocabulary(map[string]int64{
		"[UNK]": 1, "[CLS]": 2, "[SEP]": 3,
		"текст": 5, "с": 6, "пробелами": 7,
	})
	tok := NewWordPieceTokenizer(vocab, true)

	got := tok.Tokenize("текст с пробелами")

	wantTokens := []string{"[CLS]", "текст", "с", "пробелами", "[SEP]"}
	if !reflect.DeepEqual(got.Tokens, wantTokens) {
		t.Errorf("Tokens = %q, want %q", got.Tokens, wantTokens)
	}
	if !reflect.DeepEqual(got.InputIDs, []int64{2, 5, 6, 7, 3}) {
		t.Errorf("InputIDs = %v", got.InputIDs)
	}
	if !reflect.DeepEqual(got.AttentionMask, []int64{1, 1, 1, 1, 1}) {
		t.Errorf("AttentionMask = %v", got.AttentionMask)
	}
	if !reflect.DeepEqual(got.TokenTypeIDs, []int64{0, 0, 0, 0, 0}) {
		t.Errorf("TokenTypeIDs = %v", got.TokenTypeIDs)
	}
}

func TestWordPieceTokenizer(t *testing.T) {
	vocab := testWordPieceVocab()

	tests := []struct {
		name      string
		lowercase bool
		text      string
		want      []string
	}{
		{"empty text keeps markers", true, "", []string{"[CLS]", "[SEP]"}},
		{"lowercases before lookup", true, "UNAFFABLE", []string{"[CLS]", "un", "##aff", "##able", "[SEP]"}},
		{"cased keeps letters", false, "UNAFFABLE", []string{"[CLS]", "[UNK]", "[SEP]"}},
		{"unknown punctuation", true, "pre, a", []string{"[CLS]", "pre", "[UNK]", "a", "[SEP]"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewWordPieceTokenizer(vocab, tt.lowercase).Tokenize(tt.text)
			if !reflect.DeepEqual(got.Tokens, tt.want) {
				t.Errorf("Tokens = %q, want %q", got.Tokens, tt.want)
			}
		})
	}
}

func TestCharClassTokenizer(t *testing.T) {
	vocab := NewVocabulary(map[string]int64{
		"[UNK]": 100, "привет": 1, "мир": 2, "hello": 3, "2024": 4,
	})
	tok := NewCharClassTokenizer(vocab)

	tests := []struct {
		name string
		text string
		want []string
		ids  []int64
	}{
		{"strips punctuation", "Привет, мир!", []string{"привет", "мир"}, []int64{1, 2}},
		{"mixed scripts and digits", "HELLO мир 2024", []string{"hello", "мир", "2024"}, []int64{3, 2, 4}},
		{"unknown word", "hello world", []string{"hello", "world"}, []int64{3, 100}},
		{"only symbols", "!!! ???", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tok.Tokenize(tt.text)
			if strings.Join(got.Tokens, " ") != strings.Join(tt.want, " ") {
				t.Errorf("Tokens = %q, want %q", got.Tokens, tt.want)
			}
			if len(got.InputIDs) != len(tt.ids) {
				t.Fatalf("InputIDs = %v, want %v", got.InputIDs, tt.ids)
			}
			for i := range tt.ids {
				if got.InputIDs[i] != tt.ids[i] {
					t.Errorf("InputIDs = %v, want %v", got.InputIDs, tt.ids)
					break
				}
			}
		})
	}
}

func TestTokenizeResultLengths(t *testing.T) {
	tokenizers := map[string]Tokenizer{
		"wordpiece": NewWordPieceTokenizer(testWordPieceVocab(), true),
		"charclass": NewCharClassTokenizer(testWordPieceVocab()),
	}
	texts := []string{"", "unaffable", "preprocessing unaffable, a b!", "ünïcödé\ttext\n"}

	for name, tok := range tokenizers {
		t.Run(name, func(t *testing.T) {
			for _, text := range texts {
				first := tok.Tokenize(text)
				n := first.Len()
				if len(first.InputIDs) != n || len(first.AttentionMask) != n || len(first.TokenTypeIDs) != n {
					t.Errorf("Tokenize(%q) lengths differ: %d/%d/%d/%d", text,
						len(first.Tokens), len(first.InputIDs), len(first.AttentionMask), len(first.TokenTypeIDs))
				}
				second := tok.Tokenize(text)
				if !reflect.DeepEqual(first, second) {
					t.Errorf("Tokenize(%q) is not deterministic", text)
				}
			}
		})
	}
}

func TestSentencePieceTokenizerMissingModel(t *testing.T) {
	vocab := NewVocabulary(map[string]int64{"[UNK]": 3, "[CLS]": 0, "[SEP]": 2})
	tok := NewSentencePieceTokenizer(filepath.Join(t.TempDir(), "missing.model"), vocab, nil)

	if tok.LoadError() == nil {
		t.Error("LoadError() should report the missing model")
	}

	got := tok.Tokenize("any text at all")
	if !reflect.DeepEqual(got.Tokens, []string{"[CLS]", "[UNK]", "[SEP]"}) {
		t.Errorf("Tokens = %q", got.Tokens)
	}
	if !reflect.DeepEqual(got.InputIDs, []int64{0, 3, 2}) {
		t.Errorf("InputIDs = %v", got.InputIDs)
	}
	if tok.Kind() != TokenizerSentencePiece {
		t.Errorf("Kind() = %q", tok.Kind())
	}
}

func TestNewTokenizer(t *testing.T) {
	store := NewModelStore(t.TempDir())

	for _, name := range []string{"labse-en-ru", "rubert-tiny2", "multilingual-e5-small"} {
		cfg, err := FindModelConfig(name)
		if err != nil {
			t.Fatal(err)
		}
		dir := filepath.Dir(store.VocabPath(cfg))
		if err := os.MkdirAll(dir, 0750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(store.VocabPath(cfg), []byte("[PAD]\n[UNK]\n[CLS]\n[SEP]\nмир\n"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		model string
		kind  TokenizerKind
	}{
		{"labse-en-ru", TokenizerCharClass},
		{"rubert-tiny2", TokenizerWordPiece},
		{"multilingual-e5-small", TokenizerSentencePiece},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			cfg, _ := FindModelConfig(tt.model)
			tok, err := NewTokenizer(cfg, store, NewDiscardLogger())
			if err != nil {
				t.Fatalf("NewTokenizer: %v", err)
			}
			if tok.Kind() != tt.kind {
				t.Errorf("Kind() = %q, want %q", tok.Kind(), tt.kind)
			}
			if tok.Vocabulary().Lookup("мир") != 4 {
				t.Errorf("vocabulary not loaded from the store")
			}
		})
	}

	t.Run("missing vocabulary", func(t *testing.T) {
		cfg, _ := FindModelConfig("tinybert_general_4l_312d")
		if _, err := NewTokenizer(cfg, store, NewDiscardLogger()); err == nil {
			t.Error("expected an error for a missing vocabulary")
		}
	})

	t.Run("unknown tokenizer kind", func(t *testing.T) {
		cfg, _ := FindModelConfig("rubert-tiny2")
		cfg.Tokenizer = "bpe"
		if _, err := NewTokenizer(cfg, store, NewDiscardLogger()); err == nil {
			t.Error("expected an error for an unknown tokenizer")
		}
	})
}
