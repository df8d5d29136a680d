package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed suites/default.yaml
var defaultSuiteYAML []byte

// CheckCase is one expectation about tokenizing or analyzing a text. Unset
// fields are not checked.
type CheckCase struct {
	Text                   string   `yaml:"text"`
	ExpectedTokens         *int     `yaml:"expectedTokens,omitempty"`
	ExpectedTokenSequence  []string `yaml:"expectedTokenSequence,omitempty"`
	ExpectedInputIDs       []int64  `yaml:"expectedInputIds,omitempty"`
	ExpectedMaskIDs        []int64  `yaml:"expectedMaskIds,omitempty"`
	ExpectedTypeIDs        []int64  `yaml:"expectedTypeIds,omitempty"`
	ExpectedImportantWords []string `yaml:"expectedImportantWords,omitempty"`
	ExpectedProcessingTime int64    `yaml:"expectedProcessingTimeMs,omitempty"`
	Category               string   `yaml:"category,omitempty"`
	Description            string   `yaml:"description,omitempty"`
}

// CheckSuite is a named list of cases, stored as YAML
type CheckSuite struct {
	Name  string      `yaml:"name"`
	Cases []CheckCase `yaml:"cases"`
}

// ParseCheckSuite decodes a YAML suite
func ParseCheckSuite(data []byte) (*CheckSuite, error) {
	var suite CheckSuite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("failed to parse check suite: %w", err)
	}
	if len(suite.Cases) == 0 {
		return nil, fmt.Errorf("check suite %q has no cases", suite.Name)
	}
	return &suite, nil
}

// LoadCheckSuite reads a YAML suite from path
func LoadCheckSuite(path string) (*CheckSuite, error) {
	data, err := os.ReadFile(path) //nolint:gosec // suite path comes from the command line
	if err != nil {
		return nil, err
	}
	return ParseCheckSuite(data)
}

// DefaultCheckSuite returns the built-in suite
func DefaultCheckSuite() *CheckSuite {
	suite, err := ParseCheckSuite(defaultSuiteYAML)
	if err != nil {
		panic(err)
	}
	return suite
}

// CheckResult holds the failures of one case
type CheckResult struct {
	Case     CheckCase
	Errors   []string
	Tokens   int
	Duration time.Duration
}

// Passed reports whether the case had no failures
func (r CheckResult) Passed() bool {
	return len(r.Errors) == 0
}

// CheckReport collects the results of one suite run
type CheckReport struct {
	Model   string
	Phase   string
	Suite   string
	Results []CheckResult
}

// Passed returns the number of passing cases
func (r *CheckReport) Passed() int {
	n := 0
	for _, res := range r.Results {
		if res.Passed() {
			n++
		}
	}
	return n
}

// Failed returns the number of failing cases
func (r *CheckReport) Failed() int {
	return len(r.Results) - r.Passed()
}

// AverageDuration returns the mean time per case
func (r *CheckReport) AverageDuration() time.Duration {
	if len(r.Results) == 0 {
		return 0
	}
	var total time.Duration
	for _, res := range r.Results {
		total += res.Duration
	}
	return total / time.Duration(len(r.Results))
}

func (r *CheckReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== %s Check Report ===\n", r.Phase)
	fmt.Fprintf(&sb, "Model: %s\n", r.Model)
	fmt.Fprintf(&sb, "Suite: %s\n", r.Suite)
	fmt.Fprintf(&sb, "Total: %d\n", len(r.Results))
	fmt.Fprintf(&sb, "Passed: %d\n", r.Passed())
	fmt.Fprintf(&sb, "Average time: %s\n", r.AverageDuration().Round(time.Microsecond))

	if r.Failed() > 0 {
		sb.WriteString("\nErrors:\n")
		for _, res := range r.Results {
			for _, e := range res.Errors {
				fmt.Fprintf(&sb, "- [%s] %s\n", truncateText(res.Case.Text, 50), e)
			}
		}
	}
	return sb.String()
}

// ValidateTokenization compares a tokenizer result against the case
func ValidateTokenization(r *TokenizeResult, c CheckCase) []string {
	var errs []string
	if c.ExpectedTokens != nil && r.Len() != *c.ExpectedTokens {
		errs = append(errs, fmt.Sprintf("token count mismatch: expected %d, got %d", *c.ExpectedTokens, r.Len()))
	}
	if c.ExpectedTokenSequence != nil && !slices.Equal(r.Tokens, c.ExpectedTokenSequence) {
		errs = append(errs, fmt.Sprintf("token sequence mismatch:\n  expected: %v\n  got:      %v", c.ExpectedTokenSequence, r.Tokens))
	}
	if c.ExpectedInputIDs != nil && !slices.Equal(r.InputIDs, c.ExpectedInputIDs) {
		errs = append(errs, fmt.Sprintf("input ids mismatch:\n  expected: %v\n  got:      %v", c.ExpectedInputIDs, r.InputIDs))
	}
	if c.ExpectedMaskIDs != nil && !slices.Equal(r.AttentionMask, c.ExpectedMaskIDs) {
		errs = append(errs, fmt.Sprintf("mask ids mismatch:\n  expected: %v\n  got:      %v", c.ExpectedMaskIDs, r.AttentionMask))
	}
	if c.ExpectedTypeIDs != nil && !slices.Equal(r.TokenTypeIDs, c.ExpectedTypeIDs) {
		errs = append(errs, fmt.Sprintf("type ids mismatch:\n  expected: %v\n  got:      %v", c.ExpectedTypeIDs, r.TokenTypeIDs))
	}
	return errs
}

// ValidateAnalysis compares an analysis against the case
func ValidateAnalysis(a *TextAnalysis, c CheckCase, elapsed time.Duration) []string {
	var errs []string
	if c.ExpectedTokens != nil && len(a.Tokens) != *c.ExpectedTokens {
		errs = append(errs, fmt.Sprintf("token count mismatch: expected %d, got %d", *c.ExpectedTokens, len(a.Tokens)))
	}
	if len(c.ExpectedImportantWords) > 0 {
		actual := make(map[string]bool, len(a.ImportantWords))
		for _, w := range a.ImportantWords {
			actual[w.Token] = true
		}
		var missing []string
		for _, w := range c.ExpectedImportantWords {
			if !actual[w] {
				missing = append(missing, w)
			}
		}
		if len(missing) > 0 {
			errs = append(errs, fmt.Sprintf("missing important words: %v", missing))
		}
	}
	if c.ExpectedProcessingTime > 0 && elapsed > time.Duration(c.ExpectedProcessingTime)*time.Millisecond {
		errs = append(errs, fmt.Sprintf("too slow: %s > %dms", elapsed.Round(time.Millisecond), c.ExpectedProcessingTime))
	}
	return errs
}

// TokenizerService is what the tokenization checks need
type TokenizerService interface {
	Tokenize(ctx context.Context, text string) (*TokenizeResult, error)
}

// RunTokenizationChecks tokenizes every case that declares a token
// expectation. Cases with only analysis expectations are skipped.
func RunTokenizationChecks(ctx context.Context, model string, tok TokenizerService, suite *CheckSuite) (*CheckReport, error) {
	report := &CheckReport{Model: model, Phase: "Tokenization", Suite: suite.Name}
	for _, c := range suite.Cases {
		if c.ExpectedTokenSequence == nil && c.ExpectedInputIDs == nil && c.ExpectedMaskIDs == nil &&
			c.ExpectedTypeIDs == nil && c.ExpectedTokens == nil {
			continue
		}
		start := time.Now()
		r, err := tok.Tokenize(ctx, c.Text)
		if err != nil {
			return nil, err
		}
		report.Results = append(report.Results, CheckResult{
			Case:     c,
			Errors:   ValidateTokenization(r, c),
			Tokens:   r.Len(),
			Duration: time.Since(start),
		})
	}
	return report, nil
}

// RunAnalysisChecks analyzes every non-blank case. An analysis failure is
// recorded against its case and the run continues, unless ctx ends.
func RunAnalysisChecks(ctx context.Context, model string, analyzer TextAnalyzerService, suite *CheckSuite) (*CheckReport, error) {
	report := &CheckReport{Model: model, Phase: "Analysis", Suite: suite.Name}
	for _, c := range suite.Cases {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		a, err := analyzer.AnalyzeText(ctx, c.Text)
		elapsed := time.Since(start)

		res := CheckResult{Case: c, Duration: elapsed}
		if err != nil {
			res.Errors = []string{fmt.Sprintf("error processing: %v", err)}
		} else {
			res.Errors = ValidateAnalysis(a, c, elapsed)
			res.Tokens = len(a.Tokens)
		}
		report.Results = append(report.Results, res)
	}
	return report, nil
}
