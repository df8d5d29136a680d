package main

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ImportantWord is one ranked token
type ImportantWord struct {
	Token  string  `json:"token"`
	Weight float64 `json:"weight"`
}

// TextAnalysis is the result of analyzing one text
type TextAnalysis struct {
	Tokens         []string        `json:"tokens"`
	ImportantWords []ImportantWord `json:"importantWords"`
	// AttentionScore is the mean of all per-token scores before filtering
	AttentionScore float64 `json:"attentionScore"`
}

// Clone returns a copy that shares no slices with r
func (r *TextAnalysis) Clone() *TextAnalysis {
	if r == nil {
		return nil
	}
	c := *r
	c.Tokens = slices.Clone(r.Tokens)
	c.ImportantWords = slices.Clone(r.ImportantWords)
	return &c
}

// VectorStatistics are the base signals of one output vector
type VectorStatistics struct {
	Magnitude float64
	Mean      float64
	Max       float64
	Std       float64 // population standard deviation
}

// VectorStats computes magnitude, mean, max and std of v
func VectorStats(v []float32) VectorStatistics {
	if len(v) == 0 {
		return VectorStatistics{}
	}

	var sumSq, sum float64
	maxVal := math.Inf(-1)
	for _, x := range v {
		f := float64(x)
		sumSq += f * f
		sum += f
		if f > maxVal {
			maxVal = f
		}
	}
	mean := sum / float64(len(v))

	var variance float64
	for _, x := range v {
		d := float64(x) - mean
		variance += d * d
	}
	variance /= float64(len(v))

	return VectorStatistics{
		Magnitude: math.Sqrt(sumSq),
		Mean:      mean,
		Max:       maxVal,
		Std:       math.Sqrt(variance),
	}
}

// ImportanceScorer turns per-token output vectors into a TextAnalysis
type ImportanceScorer interface {
	// Scores returns one score per token
	Scores(tokens []string, vectors [][]float32) ([]float64, error)
	// Floor is the weight at or below which words are dropped
	Floor() float64
	// Excludes reports whether a token never appears among important words
	Excludes(token string) bool
}

// Analyze scores tokens with s and ranks the result
func Analyze(s ImportanceScorer, tokens []string, vectors [][]float32) (*TextAnalysis, error) {
	scores, err := s.Scores(tokens, vectors)
	if err != nil {
		return nil, err
	}
	return &TextAnalysis{
		Tokens:         tokens,
		ImportantWords: RankImportantWords(tokens, scores, s.Floor(), s.Excludes),
		AttentionScore: mean(scores),
	}, nil
}

// RankImportantWords drops excluded tokens and weights at or below floor,
// then sorts by weight descending. Ties keep token order.
func RankImportantWords(tokens []string, scores []float64, floor float64, exclude func(string) bool) []ImportantWord {
	words := make([]ImportantWord, 0, len(tokens))
	for i, tok := range tokens {
		if exclude != nil && exclude(tok) {
			continue
		}
		if scores[i] <= floor {
			continue
		}
		words = append(words, ImportantWord{Token: tok, Weight: scores[i]})
	}
	sort.SliceStable(words, func(i, j int) bool {
		return words[i].Weight > words[j].Weight
	})
	return words
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func checkVectors(tokens []string, vectors [][]float32) error {
	if len(tokens) != len(vectors) {
		return fmt.Errorf("tokens and vectors size mismatch: %d != %d", len(tokens), len(vectors))
	}
	return nil
}

// PooledScorer scores one pooled vector per word. Raw scores are spread with
// a quadratic min-max normalization.
type PooledScorer struct{}

const pooledFloor = 0.1

var (
	functionWords = map[string]bool{
		"и": true, "или": true, "но": true, "а": true, "в": true, "на": true, "с": true,
		"со": true, "за": true, "под": true, "над": true, "к": true, "у": true,
	}
	unitWords = map[string]bool{
		"км": true, "м": true, "кг": true, "см": true, "мм": true, "г": true, "кв": true, "куб": true,
	}
	keywordWords = map[string]bool{
		"марки": true, "номер": true, "модель": true,
	}
)

func (PooledScorer) Floor() float64         { return pooledFloor }
func (PooledScorer) Excludes(_ string) bool { return false }

func (p PooledScorer) Scores(tokens []string, vectors [][]float32) ([]float64, error) {
	if err := checkVectors(tokens, vectors); err != nil {
		return nil, err
	}
	raw := make([]float64, len(tokens))
	for i, tok := range tokens {
		raw[i] = RawWordScore(vectors[i], tok)
	}
	return NormalizeScores(raw), nil
}

// RawWordScore combines the vector signals of one word with its length and
// word type factors
func RawWordScore(v []float32, token string) float64 {
	if len(v) == 0 {
		return 0
	}
	st := VectorStats(v)
	return (0.5*st.Magnitude + 0.3*st.Mean + 0.2*st.Max) * lengthFactor(token) * wordTypeFactor(token)
}

func lengthFactor(token string) float64 {
	n := utf8.RuneCountInString(token)
	switch {
	case n <= 2:
		return 0.4
	case n <= 3:
		return 0.6
	case n >= 8:
		return 1.3
	case n >= 6:
		return 1.1
	default:
		return 1.0
	}
}

func wordTypeFactor(token string) float64 {
	lw := lower(token)
	switch {
	case functionWords[lw]:
		return 0.2
	case unitWords[lw]:
		return 0.5
	case allRunes(token, unicode.IsDigit):
		return 0.7
	case keywordWords[lw]:
		return 0.8
	default:
		return 1.0
	}
}

// NormalizeScores maps scores to ((s-min)/(max-min))^2 in [0, 1]. When the
// spread is 0.001 or less every score becomes 0.5.
func NormalizeScores(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}

	out := make([]float64, len(scores))
	spread := hi - lo
	if spread <= 0.001 {
		for i := range out {
			out[i] = 0.5
		}
		return out
	}
	for i, s := range scores {
		n := (s - lo) / spread
		out[i] = clamp(n*n, 0, 1)
	}
	return out
}

// SequenceScorer scores per-token vectors of a whole sequence, normalizing
// against the strongest non-special token
type SequenceScorer struct{}

const (
	sequenceFloor        = 0.3
	sequenceMin          = 0.3
	sequenceMax          = 0.9
	specialTokenScore    = 0.1
	sequenceLengthWeight = 0.3
)

func (SequenceScorer) Floor() float64             { return sequenceFloor }
func (SequenceScorer) Excludes(token string) bool { return isSpecialToken(token) }

func (s SequenceScorer) Scores(tokens []string, vectors [][]float32) ([]float64, error) {
	if err := checkVectors(tokens, vectors); err != nil {
		return nil, err
	}

	stats := make([]VectorStatistics, len(tokens))
	var maxMagnitude, maxStd float64
	for i, tok := range tokens {
		if isSpecialToken(tok) {
			continue
		}
		stats[i] = VectorStats(vectors[i])
		maxMagnitude = math.Max(maxMagnitude, stats[i].Magnitude)
		maxStd = math.Max(maxStd, stats[i].Std)
	}

	scores := make([]float64, len(tokens))
	for i, tok := range tokens {
		if isSpecialToken(tok) {
			scores[i] = specialTokenScore
			continue
		}

		magnitudeScore := ratio(stats[i].Magnitude, maxMagnitude)
		varianceScore := ratio(stats[i].Std, maxStd)
		length := math.Min(float64(utf8.RuneCountInString(tok))/10, 1)*0.1 + 0.9

		score := (0.4*magnitudeScore + 0.3*varianceScore + sequenceLengthWeight*length) *
			positionFactor(i, len(tokens)) * wordCharacteristics(tok)
		scores[i] = clamp(score, sequenceMin, sequenceMax)
	}
	return scores, nil
}

// positionFactor favors the tokens right inside [CLS] ... [SEP] and the
// start of the sentence
func positionFactor(index, size int) float64 {
	switch {
	case index == 1 || index == size-2:
		return 1.1
	case index >= 2 && index <= 3:
		return 1.05
	default:
		return 1.0
	}
}

// wordCharacteristics favors abbreviations and proper names and slightly
// penalizes numbers
func wordCharacteristics(token string) float64 {
	first, _ := utf8.DecodeRuneInString(token)
	switch {
	case allRunes(token, unicode.IsUpper):
		return 1.1
	case unicode.IsUpper(first):
		return 1.05
	case strings.ContainsAny(token, "0123456789"):
		return 0.95
	default:
		return 1.0
	}
}

func allRunes(s string, pred func(rune) bool) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !pred(r) {
			return false
		}
	}
	return true
}

func ratio(v, maxVal float64) float64 {
	if maxVal == 0 {
		return 0
	}
	return v / maxVal
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// ScorerFor returns the scorer matching the model's output rank
func ScorerFor(cfg ModelConfig) ImportanceScorer {
	if cfg.PerToken() {
		return SequenceScorer{}
	}
	return PooledScorer{}
}
