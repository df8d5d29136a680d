package main

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// CleanText removes NUL, U+FFFD and non-whitespace control/format characters,
// and turns every whitespace-class character into a single ASCII space
func CleanText(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		if isInvalidRune(r) || isControlRune(r) {
			continue
		}
		if isWhitespaceRune(r) {
			sb.WriteByte(' ')
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// SplitOnWhitespace splits on spaces and drops empty segments
func SplitOnWhitespace(text string) []string {
	parts := strings.Split(text, " ")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SplitOnPunctuation makes every punctuation rune its own segment and keeps
// runs of other runes together
func SplitOnPunctuation(token string) []string {
	var segments []string
	startNew := true
	for _, r := range token {
		if isPunctuationRune(r) {
			segments = append(segments, string(r))
			startNew = true
			continue
		}
		if startNew {
			segments = append(segments, "")
			startNew = false
		}
		segments[len(segments)-1] += string(r)
	}
	return segments
}

// BasicSplitter is the pre-tokenization stage ahead of WordPiece
type BasicSplitter struct {
	Lowercase bool
}

// Split composes the text to NFC, cleans it, splits on whitespace, optionally
// lowercases each unit and splits out punctuation
func (b BasicSplitter) Split(text string) []string {
	text = CleanText(norm.NFC.String(text))

	var out []string
	for _, unit := range SplitOnWhitespace(text) {
		if b.Lowercase {
			unit = lower(unit)
		}
		for _, seg := range SplitOnPunctuation(unit) {
			if seg != "" {
				out = append(out, seg)
			}
		}
	}
	return out
}

// lower applies Unicode default lowercasing. A Caser is stateful, so one is
// built per call.
func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

func isInvalidRune(r rune) bool {
	return r == 0 || r == unicode.ReplacementChar
}

func isControlRune(r rune) bool {
	if isWhitespaceRune(r) {
		return false
	}
	return unicode.In(r, unicode.Cc, unicode.Cf)
}

func isWhitespaceRune(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r', 0x1C, 0x1D, 0x1E, 0x1F:
		return true
	}
	return unicode.In(r, unicode.Zs, unicode.Zl, unicode.Zp)
}

// isPunctuationRune covers the Pc, Pd, Ps, Pe, Pi, Pf and Po categories
func isPunctuationRune(r rune) bool {
	return unicode.IsPunct(r)
}
