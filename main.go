package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	BuildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprint(os.Stderr, FormatUserError(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return StartTUI(ctx)
	}

	switch args[0] {
	case "--version", "-v", "version":
		_, _ = fmt.Fprintf(out, "bertlens %s (built %s)\n", Version, BuildDate)
		return nil
	case "--help", "-h", "help":
		printHelp(out)
		return nil
	}

	app := newApp(out)
	switch args[0] {
	case "tokenize":
		return app.cmdTokenize(ctx, args[1:])
	case "analyze":
		return app.cmdAnalyze(ctx, args[1:])
	case "search":
		return app.cmdSearch(ctx, args[1:])
	case "check":
		return app.cmdCheck(ctx, args[1:])
	case "models":
		return app.cmdModels(args[1:])
	case "import":
		return app.cmdImport(args[1:])
	case "download":
		return app.cmdDownload(ctx, args[1:])
	default:
		printHelp(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// app carries what every command needs
type app struct {
	out      io.Writer
	cfg      *Config
	settings *Settings
	logger   *Logger
	store    *ModelStore
	theme    *Theme
}

func newApp(out io.Writer) *app {
	cfg := LoadConfig()
	settings, err := LoadSettings()
	logger := NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("failed to read settings, using defaults: %v", err)
	}
	cfg.ApplySettings(settings)

	return &app{
		out:      out,
		cfg:      cfg,
		settings: settings,
		logger:   logger,
		store:    NewModelStore(cfg.ModelsDir),
		theme:    NewTheme(&settings.Theme),
	}
}

func (a *app) printf(format string, v ...any) {
	_, _ = fmt.Fprintf(a.out, format, v...)
}

// commonFlags registers -model and -engine on fs
func (a *app) commonFlags(fs *flag.FlagSet) (model, engine *string) {
	model = fs.String("model", a.cfg.ModelName, "model name (see 'bertlens models')")
	engine = fs.String("engine", string(a.cfg.Engine), "inference engine: onnx, bedrock or hash")
	return model, engine
}

// openAnalyzer creates and initializes an analyzer, offering to download
// missing ONNX model files first
func (a *app) openAnalyzer(ctx context.Context, name string, engine EngineType) (*TextAnalyzer, error) {
	cfg, err := FindModelConfig(name)
	if err != nil {
		return nil, err
	}

	if engine == EngineONNX && !a.store.IsComplete(cfg) {
		if err := handleFirstRunDownload(ctx, os.Stdin, cfg, a.store); err != nil {
			return nil, err
		}
	}

	analyzer := NewTextAnalyzer(cfg, a.store, AnalyzerOptions{
		Engine: engine,
		EngineOptions: EngineOptions{
			NumThreads:   a.cfg.NumThreads,
			AWSRegion:    a.cfg.AWSRegion,
			BedrockModel: a.cfg.BedrockModel,
		},
		CacheSize: a.cfg.CacheSize,
		Logger:    a.logger,
	})

	spin := NewSpinner(os.Stderr, fmt.Sprintf("Loading %s (%s)...", cfg.Name, engine), a.theme)
	spin.Start()
	if err := analyzer.Initialize(ctx); err != nil {
		spin.Fail("Failed to load " + cfg.Name)
		return nil, err
	}
	spin.Success("Loaded " + cfg.Name)
	return analyzer, nil
}

func (a *app) cmdTokenize(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tokenize", flag.ContinueOnError)
	model, _ := a.commonFlags(fs)
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	text := strings.Join(fs.Args(), " ")

	cfg, err := FindModelConfig(*model)
	if err != nil {
		return err
	}
	tok, err := NewTokenizer(cfg, a.store, a.logger)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r := tok.Tokenize(text)
	if *asJSON {
		return writeJSON(a.out, r)
	}
	a.printf("%s %s\n", a.theme.Info("Tokens:"), strings.Join(r.Tokens, " "))
	a.printf("%s %v\n", a.theme.Info("Input IDs:"), r.InputIDs)
	a.printf("%s %v\n", a.theme.Info("Mask:"), r.AttentionMask)
	a.printf("%s %v\n", a.theme.Info("Type IDs:"), r.TokenTypeIDs)
	return nil
}

func (a *app) cmdAnalyze(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	model, engine := a.commonFlags(fs)
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	analyzer, err := a.openAnalyzer(ctx, *model, ParseEngineType(*engine))
	if err != nil {
		return err
	}
	defer func() { _ = analyzer.Close() }()

	result, err := analyzer.AnalyzeText(ctx, strings.Join(fs.Args(), " "))
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(a.out, result)
	}

	a.printf("%s %s\n", a.theme.Info("Tokens:"), strings.Join(result.Tokens, " "))
	a.printf("%s %.3f\n", a.theme.Info("Attention score:"), result.AttentionScore)
	if len(result.ImportantWords) == 0 {
		a.printf("%s\n", a.theme.Dim("No important words"))
		return nil
	}
	a.printf("%s\n", a.theme.Info("Important words:"))
	for _, w := range result.ImportantWords {
		a.printf("  %-24s %s\n", a.theme.Highlight(w.Token), weightBar(w.Weight, 20))
	}
	return nil
}

// weightBar renders a weight in [0, 1] as a bar of width cells
func weightBar(weight float64, width int) string {
	n := int(clamp(weight, 0, 1)*float64(width) + 0.5)
	return strings.Repeat("█", n) + strings.Repeat("░", width-n) + fmt.Sprintf(" %.2f", weight)
}

func (a *app) cmdSearch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	model, engine := a.commonFlags(fs)
	doc := fs.String("doc", a.cfg.DocumentPath, "document to search")
	semantic := fs.Bool("semantic", false, "order equal scores by important-word overlap")
	if err := fs.Parse(args); err != nil {
		return err
	}
	query := strings.Join(fs.Args(), " ")

	index, err := a.openSearchIndex(ctx, *doc)
	if err != nil {
		return err
	}
	defer func() { _ = index.Close() }()

	var service TextAnalyzerService
	if *semantic {
		analyzer, err := a.openAnalyzer(ctx, *model, ParseEngineType(*engine))
		if err != nil {
			return err
		}
		defer func() { _ = analyzer.Close() }()
		service = analyzer
	}

	results, err := index.Search(ctx, query, service)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		a.printf("%s\n", a.theme.Warning("No matching blocks"))
		return nil
	}
	for i, r := range results {
		a.printf("%s %s\n", a.theme.Success(fmt.Sprintf("%d. [%s]", i+1, r.Relevance)), a.theme.Dim(fmt.Sprintf("block %d", r.Block.Index)))
		for _, line := range wrapText(r.Block.Text, 76) {
			a.printf("   %s\n", line)
		}
		a.printf("\n")
	}
	return nil
}

func (a *app) openSearchIndex(ctx context.Context, doc string) (*SearchIndex, error) {
	index, err := NewSearchIndex(SearchIndexConfig{
		DBPath:   a.cfg.IndexPath,
		Synonyms: a.settings.Search.Synonyms,
		MinScore: a.settings.Search.MinScore,
		Limit:    a.settings.Search.Limit,
		Logger:   a.logger,
	})
	if err != nil {
		return nil, err
	}
	if _, err := index.LoadDocument(ctx, doc); err != nil {
		_ = index.Close()
		return nil, err
	}
	return index, nil
}

func (a *app) cmdCheck(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	model, engine := a.commonFlags(fs)
	suitePath := fs.String("suite", "", "YAML suite file (default: built-in suite)")
	phase := fs.String("phase", "all", "tokenize, analyze or all")
	if err := fs.Parse(args); err != nil {
		return err
	}

	suite := DefaultCheckSuite()
	if *suitePath != "" {
		var err error
		if suite, err = LoadCheckSuite(*suitePath); err != nil {
			return err
		}
	}

	analyzer, err := a.openAnalyzer(ctx, *model, ParseEngineType(*engine))
	if err != nil {
		return err
	}
	defer func() { _ = analyzer.Close() }()

	var reports []*CheckReport
	if *phase == "all" || *phase == "tokenize" {
		r, err := RunTokenizationChecks(ctx, analyzer.ModelName(), analyzer, suite)
		if err != nil {
			return err
		}
		reports = append(reports, r)
	}
	if *phase == "all" || *phase == "analyze" {
		r, err := RunAnalysisChecks(ctx, analyzer.ModelName(), analyzer, suite)
		if err != nil {
			return err
		}
		reports = append(reports, r)
	}

	failed := 0
	for _, r := range reports {
		a.printf("%s\n", r)
		failed += r.Failed()
	}
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	a.printf("%s\n", a.theme.Success("All checks passed"))
	return nil
}

func (a *app) cmdModels(args []string) error {
	fs := flag.NewFlagSet("models", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	a.printf("Models in %s:\n", a.store.Root())
	for _, cfg := range ModelConfigs {
		status := a.theme.Dim("missing")
		if a.store.IsComplete(cfg) {
			model, vocab := a.store.Sizes(cfg)
			status = a.theme.Success("ready") + a.theme.Dim(fmt.Sprintf(" (%s + %s)", formatBytes(model), formatBytes(vocab)))
		}
		marker := "  "
		if strings.EqualFold(cfg.Name, a.cfg.ModelName) {
			marker = a.theme.Prompt("* ")
		}
		a.printf("%s%-30s %-14s %-10s %s\n", marker, cfg.Name, cfg.Tokenizer, shapeString(cfg.OutputShape), status)
	}
	return nil
}

func shapeString(shape []int64) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (a *app) cmdImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	model := fs.String("model", a.cfg.ModelName, "model name")
	onnxFile := fs.String("onnx", "", "model file to import")
	vocabFile := fs.String("vocab", "", "vocabulary file to import")
	spFile := fs.String("sentencepiece", "", "sentencepiece model to import")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := FindModelConfig(*model)
	if err != nil {
		return err
	}

	// bertlens import -model NAME DIR
	if dir := fs.Arg(0); dir != "" {
		if err := a.store.ImportFromDir(cfg, dir); err != nil {
			return err
		}
		a.printf("%s imported %s from %s\n", a.theme.Success("✓"), cfg.Name, dir)
		return nil
	}

	if *onnxFile == "" && *vocabFile == "" && *spFile == "" {
		return errors.New("nothing to import: pass a directory or -onnx/-vocab/-sentencepiece")
	}
	if *onnxFile != "" {
		if err := a.store.ImportModel(cfg, *onnxFile); err != nil {
			return err
		}
	}
	if *vocabFile != "" {
		if err := a.store.ImportVocab(cfg, *vocabFile); err != nil {
			return err
		}
	}
	if *spFile != "" {
		if err := a.store.ImportSentencePiece(cfg, *spFile); err != nil {
			return err
		}
	}
	a.printf("%s imported files for %s\n", a.theme.Success("✓"), cfg.Name)
	return nil
}

func (a *app) cmdDownload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	withRuntime := fs.Bool("runtime", false, "also install the ONNX Runtime shared library")
	if err := fs.Parse(args); err != nil {
		return err
	}

	name := a.cfg.ModelName
	if fs.Arg(0) != "" {
		name = fs.Arg(0)
	}
	cfg, err := FindModelConfig(name)
	if err != nil {
		return err
	}

	if *withRuntime {
		spin := NewSpinner(os.Stderr, "Checking ONNX Runtime...", a.theme)
		spin.Start()
		if err := EnsureONNXRuntime(ctx, spin.Update); err != nil {
			spin.Fail("ONNX Runtime install failed")
			return err
		}
		spin.Success("ONNX Runtime ready")
	}

	spin := NewSpinner(os.Stderr, "Checking "+cfg.Name+"...", a.theme)
	spin.Start()
	if err := EnsureModelAssets(ctx, cfg, a.store, spin.Update); err != nil {
		spin.Fail("Download failed")
		return err
	}
	spin.Success(cfg.Name + " ready in " + a.store.Root())
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printHelp(out io.Writer) {
	_, _ = fmt.Fprintln(out, `bertlens - BERT tokenization and word importance scoring

Usage:
  bertlens                          Start the interactive analyzer
  bertlens tokenize [flags] TEXT    Show tokens and ids
  bertlens analyze [flags] TEXT     Rank the important words of TEXT
  bertlens search [flags] QUERY     Keyword search over the document
  bertlens check [flags]            Run a YAML check suite
  bertlens models                   List models and their local status
  bertlens import -model NAME DIR   Copy model files into the models dir
  bertlens download [-runtime] NAME Download model files

Common flags:
  -model NAME     Model (default: rubert-tiny2)
  -engine TYPE    onnx, bedrock or hash
  -json           JSON output (tokenize, analyze)

Environment Variables:
  BERTLENS_MODEL          Default model
  BERTLENS_MODELS_DIR     Models directory (default: ~/.bertlens/models)
  BERTLENS_ENGINE         Default engine
  BERTLENS_CACHE_SIZE     Cached results per analyzer (default: 100)
  BERTLENS_THREADS        ONNX intra-op threads (default: 4)
  BERTLENS_DOCUMENT       Document for search
  BERTLENS_INDEX          SQLite search index path
  BERTLENS_BEDROCK_MODEL  Bedrock embedding model
  BERTLENS_LOG_LEVEL      debug, info or error
  AWS_REGION              AWS region for the bedrock engine
  ONNXRUNTIME_LIB_DIR     Directory holding the ONNX Runtime library`)
}
