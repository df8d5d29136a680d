package main

const (
	wordPiecePrefix = "##"

	// maxRunesPerWord is the longest unit WordPiece attempts to split
	maxRunesPerWord = 200
)

// WordPiece splits units into vocabulary pieces with greedy longest-match-first
type WordPiece struct {
	vocab *Vocabulary
}

// NewWordPiece creates a WordPiece splitter over vocab
func NewWordPiece(vocab *Vocabulary) *WordPiece {
	return &WordPiece{vocab: vocab}
}

// TokenizeText splits text on spaces and tokenizes every unit
func (w *WordPiece) TokenizeText(text string) []string {
	var out []string
	for _, unit := range SplitOnWhitespace(text) {
		out = append(out, w.Tokenize(unit)...)
	}
	return out
}

// Tokenize splits a single unit. A unit longer than maxRunesPerWord, or one
// with a position no vocabulary piece covers, becomes a single [UNK] and
// any pieces already matched for it are dropped.
//
//	"unaffable" -> ["un", "##aff", "##able"]
func (w *WordPiece) Tokenize(unit string) []string {
	runes := []rune(unit)
	if len(runes) > maxRunesPerWord {
		return []string{TokenUNK}
	}

	var pieces []string
	start := 0
	for start < len(runes) {
		end := len(runes)
		match := ""
		for start < end {
			sub := string(runes[start:end])
			if start > 0 {
				sub = wordPiecePrefix + sub
			}
			if w.vocab.Contains(sub) {
				match = sub
				break
			}
			end--
		}
		if match == "" {
			return []string{TokenUNK}
		}
		pieces = append(pieces, match)
		start = end
	}
	return pieces
}
