package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/simplelru"
)

// AnalyzerState is the lifecycle state of a TextAnalyzer
type AnalyzerState int

const (
	StateUninitialized AnalyzerState = iota
	StateInitialized
	StateClosed
)

func (s AnalyzerState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EngineFactory builds the inference engine during Initialize
type EngineFactory func(ctx context.Context, engineType EngineType, opts EngineOptions) (InferenceEngine, error)

// AnalyzerOptions configures a TextAnalyzer
type AnalyzerOptions struct {
	Engine EngineType
	// EngineOptions.Model and EngineOptions.Mapping are filled in by Initialize
	EngineOptions EngineOptions
	CacheSize     int
	Logger        *Logger
	// NewEngine defaults to NewEngine
	NewEngine EngineFactory
}

// TextAnalyzer ties tokenizer, inference engine and scorer together. One
// inference runs at a time per analyzer; other callers queue in arrival
// order. Results are cached by exact input text.
type TextAnalyzer struct {
	id     string
	cfg    ModelConfig
	store  *ModelStore
	opts   AnalyzerOptions
	logger *Logger

	// sem is a one-slot lock that callers can stop waiting on when their
	// context ends. Everything below is guarded by it.
	sem chan struct{}

	state     AnalyzerState
	reused    bool
	tokenizer Tokenizer
	engine    InferenceEngine
	mapping   *ModelMapping
	scorer    ImportanceScorer
	cache     *simplelru.LRU
	tensors   ModelTensorsInfo
}

// NewTextAnalyzer creates an uninitialized analyzer for cfg
func NewTextAnalyzer(cfg ModelConfig, store *ModelStore, opts AnalyzerOptions) *TextAnalyzer {
	if opts.Logger == nil {
		opts.Logger = NewDiscardLogger()
	}
	if opts.NewEngine == nil {
		opts.NewEngine = NewEngine
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 100
	}
	if opts.Engine == "" {
		opts.Engine = EngineONNX
	}
	return &TextAnalyzer{
		id:     uuid.NewString(),
		cfg:    cfg,
		store:  store,
		opts:   opts,
		logger: opts.Logger,
		sem:    make(chan struct{}, 1),
		scorer: ScorerFor(cfg),
	}
}

func (a *TextAnalyzer) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case a.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	// select picks at random when both are ready
	if err := ctx.Err(); err != nil {
		a.unlock()
		return err
	}
	return nil
}

func (a *TextAnalyzer) unlock() {
	<-a.sem
}

// Initialize loads the tokenizer, maps the model and creates the engine.
// Calling it again on an initialized analyzer only marks it as reused.
func (a *TextAnalyzer) Initialize(ctx context.Context) error {
	if err := a.lock(ctx); err != nil {
		return err
	}
	defer a.unlock()

	switch a.state {
	case StateClosed:
		return ErrAnalyzerClosed
	case StateInitialized:
		a.reused = true
		return nil
	}

	a.logger.Info("[%s] initialize model %s (engine %s)", a.id, a.cfg.Name, a.opts.Engine)

	tokenizer, err := NewTokenizer(a.cfg, a.store, a.logger)
	if err != nil {
		return err
	}

	engineOpts := a.opts.EngineOptions
	engineOpts.Model = a.cfg

	var mapping *ModelMapping
	if a.opts.Engine == EngineONNX {
		mapping, err = a.store.MapModel(a.cfg)
		if err != nil {
			return ErrModelLoadFailed(a.cfg.Name, err)
		}
		engineOpts.Mapping = mapping
	}

	engine, err := a.opts.NewEngine(ctx, a.opts.Engine, engineOpts)
	if err == nil && engine == nil {
		err = fmt.Errorf("engine factory returned no engine")
	}
	if err != nil {
		_ = mapping.Close()
		return ErrModelLoadFailed(a.cfg.Name, err)
	}

	cache, err := simplelru.NewLRU(a.opts.CacheSize, nil)
	if err != nil {
		_ = engine.Close()
		_ = mapping.Close()
		return err
	}

	a.tokenizer = tokenizer
	a.engine = engine
	a.mapping = mapping
	a.cache = cache
	a.tensors = engine.TensorsInfo()
	a.state = StateInitialized

	for _, t := range a.tensors.Inputs {
		a.logger.Debug("[%s] input tensor %s", a.id, t)
	}
	for _, t := range a.tensors.Outputs {
		a.logger.Debug("[%s] output tensor %s", a.id, t)
	}
	return nil
}

// AnalyzeText tokenizes text, runs inference and ranks the important words.
// Blank text is rejected before any work. If ctx ends while waiting for a
// running analysis, no inference is started; an inference already running is
// not interrupted.
func (a *TextAnalyzer) AnalyzeText(ctx context.Context, text string) (*TextAnalysis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrBlankInput()
	}

	if err := a.lock(ctx); err != nil {
		return nil, err
	}
	defer a.unlock()

	switch a.state {
	case StateUninitialized:
		return nil, ErrNotInitialized
	case StateClosed:
		return nil, ErrAnalyzerClosed
	}

	if cached, ok := a.cache.Get(text); ok {
		a.logger.Debug("[%s] cache hit for %q", a.id, text)
		return cached.(*TextAnalysis).Clone(), nil
	}

	start := time.Now()
	tokens := a.tokenizer.Tokenize(text)

	vectors, err := a.infer(ctx, tokens)
	if err != nil {
		return nil, ErrInferenceFailed(a.cfg.Name, err)
	}

	result, err := Analyze(a.scorer, tokens.Tokens, vectors)
	if err != nil {
		return nil, ErrInferenceFailed(a.cfg.Name, err)
	}

	a.logger.Debug("[%s] processed %d tokens in %s: %s", a.id, tokens.Len(), time.Since(start), strings.Join(tokens.Tokens, " "))
	a.logger.Debug("[%s] important words: %s", a.id, formatImportantWords(result.ImportantWords))

	a.cache.Add(text, result)
	return result.Clone(), nil
}

// infer returns one output vector per token. Per-token models run the whole
// sequence at once; pooled models run once per token.
func (a *TextAnalyzer) infer(ctx context.Context, tokens *TokenizeResult) ([][]float32, error) {
	if tokens.Len() == 0 {
		return nil, nil
	}

	if a.cfg.PerToken() {
		out, err := a.engine.Run(ctx, NewEngineInput(tokens))
		if err != nil {
			return nil, err
		}
		if err := checkOutput(out, a.cfg, tokens.Len()); err != nil {
			return nil, err
		}
		return out.Rows(), nil
	}

	vectors := make([][]float32, tokens.Len())
	for i := range tokens.Tokens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := a.engine.Run(ctx, &EngineInput{
			InputIDs:      tokens.InputIDs[i : i+1],
			AttentionMask: tokens.AttentionMask[i : i+1],
			TokenTypeIDs:  tokens.TokenTypeIDs[i : i+1],
			Tokens:        tokens.Tokens[i : i+1],
		})
		if err != nil {
			return nil, err
		}
		if err := checkOutput(out, a.cfg, 1); err != nil {
			return nil, err
		}
		vectors[i] = out.Data
	}
	return vectors, nil
}

func formatImportantWords(words []ImportantWord) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = fmt.Sprintf("%s(%.2f)", w.Token, w.Weight)
	}
	return strings.Join(parts, ", ")
}

// Tokenize runs only the tokenizer
func (a *TextAnalyzer) Tokenize(ctx context.Context, text string) (*TokenizeResult, error) {
	if err := a.lock(ctx); err != nil {
		return nil, err
	}
	defer a.unlock()

	switch a.state {
	case StateUninitialized:
		return nil, ErrNotInitialized
	case StateClosed:
		return nil, ErrAnalyzerClosed
	}
	return a.tokenizer.Tokenize(text), nil
}

// Close releases the engine and the model mapping and clears the cache. It
// is safe to call more than once.
func (a *TextAnalyzer) Close() error {
	a.sem <- struct{}{}
	defer a.unlock()

	if a.state == StateClosed {
		return nil
	}

	var err error
	if a.engine != nil {
		err = a.engine.Close()
		a.engine = nil
	}
	if a.mapping != nil {
		if mErr := a.mapping.Close(); err == nil {
			err = mErr
		}
		a.mapping = nil
	}
	if a.cache != nil {
		a.cache.Purge()
	}
	a.state = StateClosed
	a.logger.Debug("[%s] closed", a.id)
	return err
}

// State returns the lifecycle state
func (a *TextAnalyzer) State() AnalyzerState {
	a.sem <- struct{}{}
	defer a.unlock()
	return a.state
}

// IsReused reports whether Initialize was called on an already initialized analyzer
func (a *TextAnalyzer) IsReused() bool {
	a.sem <- struct{}{}
	defer a.unlock()
	return a.reused
}

// TensorsInfo returns the model tensor details read during Initialize
func (a *TextAnalyzer) TensorsInfo() ModelTensorsInfo {
	a.sem <- struct{}{}
	defer a.unlock()
	return a.tensors
}

// CachedResults returns the number of cached analyses
func (a *TextAnalyzer) CachedResults() int {
	a.sem <- struct{}{}
	defer a.unlock()
	if a.cache == nil {
		return 0
	}
	return a.cache.Len()
}

// PurgeCache drops every cached analysis and returns how many there were
func (a *TextAnalyzer) PurgeCache() int {
	a.sem <- struct{}{}
	defer a.unlock()
	if a.cache == nil {
		return 0
	}
	n := a.cache.Len()
	a.cache.Purge()
	return n
}

func (a *TextAnalyzer) ModelConfig() ModelConfig { return a.cfg }
func (a *TextAnalyzer) ModelName() string        { return a.cfg.Name }
func (a *TextAnalyzer) ID() string               { return a.id }
