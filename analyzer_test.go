package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockEngine wraps a HashEngine, counts calls and records overlapping runs
type mockEngine struct {
	inner   *HashEngine
	calls   atomic.Int32
	active  atomic.Int32
	overlap atomic.Bool
	closed  atomic.Int32
	delay   time.Duration
	block   chan struct{}
	started chan struct{}
	output  *EngineOutput
	err     error
}

func newMockEngine(cfg ModelConfig) *mockEngine {
	return &mockEngine{inner: NewHashEngine(cfg)}
}

func (m *mockEngine) Run(ctx context.Context, in *EngineInput) (*EngineOutput, error) {
	m.calls.Add(1)
	if m.active.Add(1) > 1 {
		m.overlap.Store(true)
	}
	defer m.active.Add(-1)

	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.block != nil {
		<-m.block
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.output != nil {
		return m.output, nil
	}
	return m.inner.Run(ctx, in)
}

func (m *mockEngine) TensorsInfo() ModelTensorsInfo { return m.inner.TensorsInfo() }

func (m *mockEngine) Close() error {
	m.closed.Add(1)
	return nil
}

// newTestStore writes a small vocabulary for each named model
func newTestStore(t *testing.T, models ...string) *ModelStore {
	t.Helper()
	store := NewModelStore(t.TempDir())
	vocab := "[PAD]\n[UNK]\n[CLS]\n[SEP]\n[MASK]\nмама\nмыла\nраму\nкошка\nспит\n"
	for _, name := range models {
		cfg, err := FindModelConfig(name)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.MkdirAll(filepath.Dir(store.VocabPath(cfg)), 0750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(store.VocabPath(cfg), []byte(vocab), 0600); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

// newTestAnalyzer returns an initialized analyzer backed by a mock engine
func newTestAnalyzer(t *testing.T, model string, configure func(*mockEngine)) (*TextAnalyzer, *mockEngine, *atomic.Int32) {
	t.Helper()
	cfg, err := FindModelConfig(model)
	if err != nil {
		t.Fatal(err)
	}
	store := newTestStore(t, model)
	engine := newMockEngine(cfg)
	if configure != nil {
		configure(engine)
	}

	var factoryCalls atomic.Int32
	a := NewTextAnalyzer(cfg, store, AnalyzerOptions{
		Engine: EngineHash,
		NewEngine: func(_ context.Context, _ EngineType, _ EngineOptions) (InferenceEngine, error) {
			factoryCalls.Add(1)
			return engine, nil
		},
	})
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a, engine, &factoryCalls
}

func TestAnalyzeText(t *testing.T) {
	tests := []struct {
		model     string
		wantCalls int32
	}{
		// per-token model: the whole sequence in one run
		{"rubert-tiny2", 1},
		// pooled model: one run per word
		{"labse-en-ru", 3},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			a, engine, _ := newTestAnalyzer(t, tt.model, nil)

			result, err := a.AnalyzeText(context.Background(), "мама мыла раму")
			if err != nil {
				t.Fatalf("AnalyzeText: %v", err)
			}
			if engine.calls.Load() != tt.wantCalls {
				t.Errorf("engine calls = %d, want %d", engine.calls.Load(), tt.wantCalls)
			}
			if len(result.Tokens) == 0 {
				t.Fatal("no tokens in result")
			}
			floor := ScorerFor(a.ModelConfig()).Floor()
			for i, w := range result.ImportantWords {
				if w.Weight <= floor {
					t.Errorf("word %q weight %v at or below floor %v", w.Token, w.Weight, floor)
				}
				if w.Token == TokenCLS || w.Token == TokenSEP {
					t.Errorf("special token %q among important words", w.Token)
				}
				if i > 0 && w.Weight > result.ImportantWords[i-1].Weight {
					t.Error("important words are not sorted by weight")
				}
			}
		})
	}
}

func TestAnalyzeTextBlankInput(t *testing.T) {
	a, engine, _ := newTestAnalyzer(t, "rubert-tiny2", nil)

	for _, text := range []string{"", "   ", "\t\n"} {
		_, err := a.AnalyzeText(context.Background(), text)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("AnalyzeText(%q) err = %v, want ErrInvalidInput", text, err)
		}
	}
	if engine.calls.Load() != 0 {
		t.Errorf("engine calls = %d, want 0", engine.calls.Load())
	}
}

func TestAnalyzeTextCache(t *testing.T) {
	a, engine, _ := newTestAnalyzer(t, "rubert-tiny2", nil)
	ctx := context.Background()

	first, err := a.AnalyzeText(ctx, "кошка спит")
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.AnalyzeText(ctx, "кошка спит")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("second call should return the cached result")
	}
	if engine.calls.Load() != 1 {
		t.Errorf("engine calls = %d, want 1", engine.calls.Load())
	}
	if a.CachedResults() != 1 {
		t.Errorf("CachedResults() = %d, want 1", a.CachedResults())
	}

	if n := a.PurgeCache(); n != 1 {
		t.Errorf("PurgeCache() = %d, want 1", n)
	}
	if _, err := a.AnalyzeText(ctx, "кошка спит"); err != nil {
		t.Fatal(err)
	}
	if engine.calls.Load() != 2 {
		t.Errorf("engine calls after purge = %d, want 2", engine.calls.Load())
	}
}

func TestAnalyzeTextSerialized(t *testing.T) {
	a, engine, _ := newTestAnalyzer(t, "rubert-tiny2", func(m *mockEngine) {
		m.delay = 5 * time.Millisecond
	})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// distinct texts so every call reaches the engine
			_, err := a.AnalyzeText(context.Background(), fmt.Sprintf("мама мыла раму %d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("AnalyzeText: %v", err)
		}
	}
	if engine.overlap.Load() {
		t.Error("engine ran concurrently")
	}
	if engine.calls.Load() != 8 {
		t.Errorf("engine calls = %d, want 8", engine.calls.Load())
	}
}

func TestAnalyzeTextCancelledWhileWaiting(t *testing.T) {
	a, engine, _ := newTestAnalyzer(t, "rubert-tiny2", func(m *mockEngine) {
		m.block = make(chan struct{})
		m.started = make(chan struct{}, 1)
	})

	done := make(chan error, 1)
	go func() {
		_, err := a.AnalyzeText(context.Background(), "мама мыла раму")
		done <- err
	}()
	<-engine.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := a.AnalyzeText(ctx, "кошка спит")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}

	close(engine.block)
	if err := <-done; err != nil {
		t.Errorf("first AnalyzeText: %v", err)
	}
	if engine.calls.Load() != 1 {
		t.Errorf("engine calls = %d, want 1", engine.calls.Load())
	}
}

func TestAnalyzeTextAlreadyCancelled(t *testing.T) {
	a, engine, _ := newTestAnalyzer(t, "rubert-tiny2", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.AnalyzeText(ctx, "мама"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if engine.calls.Load() != 0 {
		t.Errorf("engine calls = %d, want 0", engine.calls.Load())
	}
}

func TestAnalyzeTextEngineErrors(t *testing.T) {
	tests := []struct {
		name      string
		configure func(*mockEngine)
	}{
		{"run fails", func(m *mockEngine) { m.err = errors.New("boom") }},
		{"wrong rank", func(m *mockEngine) {
			m.output = &EngineOutput{Shape: []int64{1, 312}, Data: make([]float32, 312)}
		}},
		{"wrong sequence length", func(m *mockEngine) {
			m.output = &EngineOutput{Shape: []int64{1, 2, 312}, Data: make([]float32, 2*312)}
		}},
		{"short data", func(m *mockEngine) {
			m.output = &EngineOutput{Shape: []int64{1, 5, 312}, Data: make([]float32, 10)}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _, _ := newTestAnalyzer(t, "rubert-tiny2", tt.configure)
			_, err := a.AnalyzeText(context.Background(), "мама мыла раму")
			if !errors.Is(err, ErrInference) {
				t.Errorf("err = %v, want ErrInference", err)
			}
			if a.CachedResults() != 0 {
				t.Error("failed analyses must not be cached")
			}
		})
	}
}

func TestInitialize(t *testing.T) {
	t.Run("second call reuses the engine", func(t *testing.T) {
		a, _, factoryCalls := newTestAnalyzer(t, "rubert-tiny2", nil)
		if a.IsReused() {
			t.Error("IsReused() should be false after the first Initialize")
		}
		if err := a.Initialize(context.Background()); err != nil {
			t.Fatal(err)
		}
		if !a.IsReused() {
			t.Error("IsReused() should be true after the second Initialize")
		}
		if factoryCalls.Load() != 1 {
			t.Errorf("factory calls = %d, want 1", factoryCalls.Load())
		}
		if a.State() != StateInitialized {
			t.Errorf("State() = %v", a.State())
		}
		if len(a.TensorsInfo().Inputs) != 3 {
			t.Errorf("TensorsInfo() inputs = %v", a.TensorsInfo().Inputs)
		}
	})

	t.Run("factory error is a model load error", func(t *testing.T) {
		cfg, _ := FindModelConfig("rubert-tiny2")
		a := NewTextAnalyzer(cfg, newTestStore(t, "rubert-tiny2"), AnalyzerOptions{
			Engine: EngineHash,
			NewEngine: func(context.Context, EngineType, EngineOptions) (InferenceEngine, error) {
				return nil, errors.New("no runtime")
			},
		})
		err := a.Initialize(context.Background())
		if !errors.Is(err, ErrModelLoad) {
			t.Errorf("err = %v, want ErrModelLoad", err)
		}
		if a.State() != StateUninitialized {
			t.Errorf("State() = %v, want uninitialized", a.State())
		}
	})

	t.Run("missing vocabulary", func(t *testing.T) {
		cfg, _ := FindModelConfig("rubert-tiny2")
		a := NewTextAnalyzer(cfg, NewModelStore(t.TempDir()), AnalyzerOptions{Engine: EngineHash})
		err := a.Initialize(context.Background())
		if !errors.Is(err, ErrVocabLoad) {
			t.Errorf("err = %v, want ErrVocabLoad", err)
		}
	})

	t.Run("missing onnx model file", func(t *testing.T) {
		cfg, _ := FindModelConfig("rubert-tiny2")
		var called bool
		a := NewTextAnalyzer(cfg, newTestStore(t, "rubert-tiny2"), AnalyzerOptions{
			Engine: EngineONNX,
			NewEngine: func(context.Context, EngineType, EngineOptions) (InferenceEngine, error) {
				called = true
				return nil, nil
			},
		})
		err := a.Initialize(context.Background())
		if !errors.Is(err, ErrModelLoad) {
			t.Errorf("err = %v, want ErrModelLoad", err)
		}
		if called {
			t.Error("engine factory should not run without a model file")
		}
	})

	t.Run("onnx factory gets the mapping", func(t *testing.T) {
		cfg, _ := FindModelConfig("rubert-tiny2")
		store := newTestStore(t, "rubert-tiny2")
		if err := os.WriteFile(store.ModelPath(cfg), []byte("onnx-bytes"), 0600); err != nil {
			t.Fatal(err)
		}
		var got string
		a := NewTextAnalyzer(cfg, store, AnalyzerOptions{
			Engine: EngineONNX,
			NewEngine: func(_ context.Context, _ EngineType, opts EngineOptions) (InferenceEngine, error) {
				got = string(opts.Mapping.Bytes())
				return newMockEngine(opts.Model), nil
			},
		})
		if err := a.Initialize(context.Background()); err != nil {
			t.Fatal(err)
		}
		defer func() { _ = a.Close() }()
		if got != "onnx-bytes" {
			t.Errorf("mapping bytes = %q", got)
		}
	})
}

func TestAnalyzerNotInitialized(t *testing.T) {
	cfg, _ := FindModelConfig("rubert-tiny2")
	a := NewTextAnalyzer(cfg, newTestStore(t, "rubert-tiny2"), AnalyzerOptions{Engine: EngineHash})

	if _, err := a.AnalyzeText(context.Background(), "мама"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("AnalyzeText err = %v, want ErrNotInitialized", err)
	}
	if _, err := a.Tokenize(context.Background(), "мама"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Tokenize err = %v, want ErrNotInitialized", err)
	}
}

func TestAnalyzerClose(t *testing.T) {
	a, engine, _ := newTestAnalyzer(t, "rubert-tiny2", nil)
	ctx := context.Background()

	if _, err := a.AnalyzeText(ctx, "мама"); err != nil {
		t.Fatal(err)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if engine.closed.Load() != 1 {
		t.Errorf("engine closed %d times, want 1", engine.closed.Load())
	}
	if a.State() != StateClosed {
		t.Errorf("State() = %v, want closed", a.State())
	}
	if a.CachedResults() != 0 {
		t.Error("cache should be cleared on Close")
	}

	if _, err := a.AnalyzeText(ctx, "мама"); !errors.Is(err, ErrAnalyzerClosed) {
		t.Errorf("AnalyzeText err = %v, want ErrAnalyzerClosed", err)
	}
	if _, err := a.Tokenize(ctx, "мама"); !errors.Is(err, ErrAnalyzerClosed) {
		t.Errorf("Tokenize err = %v, want ErrAnalyzerClosed", err)
	}
	if err := a.Initialize(ctx); !errors.Is(err, ErrAnalyzerClosed) {
		t.Errorf("Initialize err = %v, want ErrAnalyzerClosed", err)
	}
}

func TestAnalyzerWithHashEngine(t *testing.T) {
	cfg, _ := FindModelConfig("rubert-tiny2")
	a := NewTextAnalyzer(cfg, newTestStore(t, "rubert-tiny2"), AnalyzerOptions{Engine: EngineHash, CacheSize: 2})
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Close() }()

	first, err := a.AnalyzeText(context.Background(), "Мама мыла раму")
	if err != nil {
		t.Fatal(err)
	}
	tokens, err := a.Tokenize(context.Background(), "Мама мыла раму")
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Tokens) != tokens.Len() {
		t.Errorf("analysis has %d tokens, tokenizer %d", len(first.Tokens), tokens.Len())
	}

	for _, text := range []string{"кошка", "спит", "раму"} {
		if _, err := a.AnalyzeText(context.Background(), text); err != nil {
			t.Fatal(err)
		}
	}
	if a.CachedResults() != 2 {
		t.Errorf("CachedResults() = %d, want cache size 2", a.CachedResults())
	}
}

func TestAnalyzerIDsAreUnique(t *testing.T) {
	cfg, _ := FindModelConfig("rubert-tiny2")
	store := NewModelStore(t.TempDir())
	a := NewTextAnalyzer(cfg, store, AnalyzerOptions{})
	b := NewTextAnalyzer(cfg, store, AnalyzerOptions{})
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("IDs %q and %q should be unique", a.ID(), b.ID())
	}
	if a.ModelName() != "rubert-tiny2" {
		t.Errorf("ModelName() = %q", a.ModelName())
	}
}

func TestAnalyzeTextCachedResultIsNotShared(t *testing.T) {
	// pooled scoring always keeps the top word
	a, _, _ := newTestAnalyzer(t, "labse-en-ru", nil)
	ctx := context.Background()

	first, err := a.AnalyzeText(ctx, "мама мыла раму")
	if err != nil {
		t.Fatal(err)
	}
	if len(first.ImportantWords) == 0 {
		t.Fatal("expected important words")
	}
	want := first.Clone()

	first.ImportantWords[0].Token = "mutated"
	first.ImportantWords = first.ImportantWords[:0]
	first.Tokens[0] = "mutated"

	second, err := a.AnalyzeText(ctx, "мама мыла раму")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(second, want) {
		t.Errorf("cached result changed by a caller: got %+v, want %+v", second, want)
	}
}
