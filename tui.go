package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// State represents the current state of the TUI
type State int

const (
	StateInput State = iota
	StateLoading
	StateAnalyzing
	StateSearching
)

// Box drawing characters for visual sections
const (
	boxTopLeft     = "╔"
	boxTopRight    = "╗"
	boxBottomLeft  = "╚"
	boxBottomRight = "╝"
	boxHorizontal  = "═"
	boxVertical    = "║"
	treeBranch     = "├─"
	treeEnd        = "└─"
)

// Styles for the TUI
type Styles struct {
	Prompt  lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Accent  lipgloss.Style
	Dim     lipgloss.Style

	// Weight levels used when highlighting analyzed text, strongest first
	Strong lipgloss.Style
	Medium lipgloss.Style
	Weak   lipgloss.Style
}

func NewStyles() *Styles {
	return &Styles{
		Prompt:  lipgloss.NewStyle().Foreground(lipgloss.Color("12")), // Blue
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")), // Green
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),  // Red
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")), // Yellow
		Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("14")), // Cyan
		Accent:  lipgloss.NewStyle().Foreground(lipgloss.Color("13")), // Magenta
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),  // Gray

		Strong: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("11")),
		Medium: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		Weak:   lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("14")),
	}
}

// styleForWeight picks the highlight for a word weight; ok is false when
// the word should render plain
func (s *Styles) styleForWeight(weight float64) (lipgloss.Style, bool) {
	switch {
	case weight >= 0.7:
		return s.Strong, true
	case weight >= 0.5:
		return s.Medium, true
	case weight > 0:
		return s.Weak, true
	default:
		return lipgloss.Style{}, false
	}
}

// Model is the bubbletea model for the interactive analyzer
type Model struct {
	textarea textarea.Model
	spinner  spinner.Model
	styles   *Styles

	state     State
	statusMsg string
	startTime time.Time

	// Exit confirmation
	ctrlCPressed bool
	ctrlCTime    time.Time

	app      *app
	analyzer *TextAnalyzer
	engine   EngineType
	index    *SearchIndex
	lastText string

	// seq identifies the running operation; results of older ones are dropped
	seq      int
	cancelFn context.CancelFunc

	width  int
	height int
}

// Messages for async operations
type analyzerReadyMsg struct {
	seq      int
	analyzer *TextAnalyzer
	err      error
}

type analysisDoneMsg struct {
	seq    int
	text   string
	result *TextAnalysis
	err    error
}

type tokenizeDoneMsg struct {
	seq    int
	result *TokenizeResult
	err    error
}

type searchDoneMsg struct {
	seq     int
	query   string
	results []SearchResult
	err     error
}

type tickMsg time.Time

type loadModelMsg struct {
	name string
}

// NewModel creates a new bubbletea model. The index may be nil when no
// document could be loaded.
func NewModel(a *app, index *SearchIndex) Model {
	ta := textarea.New()
	ta.Placeholder = "Type a text to analyze, or /help"
	ta.Focus()
	ta.CharLimit = 0
	ta.SetWidth(100) // Will be resized on WindowSizeMsg
	ta.SetHeight(2)
	ta.ShowLineNumbers = false
	ta.Prompt = ""
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.BlurredStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Prompt = lipgloss.NewStyle()
	ta.BlurredStyle.Prompt = lipgloss.NewStyle()
	ta.KeyMap.InsertNewline.SetEnabled(false)

	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Millisecond * 100,
	}

	return Model{
		textarea: ta,
		spinner:  s,
		styles:   NewStyles(),
		state:    StateInput,
		app:      a,
		engine:   a.cfg.Engine,
		index:    index,
		width:    120,
		height:   24,
	}
}

func (m Model) Init() tea.Cmd {
	name := m.app.cfg.ModelName
	return tea.Batch(textarea.Blink, func() tea.Msg { return loadModelMsg{name: name} })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		inputWidth := msg.Width - 4
		if inputWidth < 40 {
			inputWidth = 40
		}
		m.textarea.SetWidth(inputWidth)
		return m, nil

	case tea.KeyMsg:
		if msg.Type != tea.KeyCtrlC {
			m.ctrlCPressed = false
		}

		switch msg.Type {
		case tea.KeyCtrlC:
			// Double Ctrl+C to quit
			if m.ctrlCPressed && time.Since(m.ctrlCTime) < 2*time.Second {
				return m, tea.Quit
			}
			m.ctrlCPressed = true
			m.ctrlCTime = time.Now()
			m.addOutput("")
			m.addOutput(m.styles.Warning.Render("Press Ctrl+C again to exit"))
			return m, nil

		case tea.KeyEsc:
			if m.state != StateInput {
				if m.cancelFn != nil {
					m.cancelFn()
				}
				m.seq++
				m.state = StateInput
				m.addOutput(m.styles.Warning.Render("-- Interrupted --"))
				m.textarea.Focus()
				return m, nil
			}

		case tea.KeyEnter:
			if m.state != StateInput {
				return m, nil
			}
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()
			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}
			return m.startAnalyzing(input)
		}

		if m.state == StateInput {
			var cmd tea.Cmd
			m.textarea, cmd = m.textarea.Update(msg)
			cmds = append(cmds, cmd)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		if m.state != StateInput {
			cmds = append(cmds, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }))
		}

	case loadModelMsg:
		return m.startLoading(msg.name)

	case analyzerReadyMsg:
		if msg.seq != m.seq {
			if msg.analyzer != nil {
				return m, closeAnalyzer(msg.analyzer)
			}
			return m, nil
		}
		m.finish()
		if msg.err != nil {
			if m.canceled(msg.err) {
				return m, nil
			}
			m.addOutput(m.styles.Error.Render("Model load failed: " + msg.err.Error()))
			var userErr *UserError
			if errors.As(msg.err, &userErr) && userErr.Suggestion != "" {
				m.addOutput(m.styles.Dim.Render(userErr.Suggestion))
			}
			return m, nil
		}
		if m.analyzer != nil {
			cmds = append(cmds, closeAnalyzer(m.analyzer))
		}
		m.analyzer = msg.analyzer
		m.addOutput(m.styles.Success.Render(fmt.Sprintf("✓ Loaded %s", m.analyzer.ModelName())) +
			m.styles.Dim.Render(fmt.Sprintf(" (%s, %s)", m.engine, time.Since(m.startTime).Round(time.Millisecond))))
		m.addOutput("")

	case analysisDoneMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.finish()
		if msg.err != nil {
			if !m.canceled(msg.err) {
				m.addOutput(m.styles.Error.Render("Analysis failed: " + msg.err.Error()))
			}
			return m, nil
		}
		m.lastText = msg.text
		m.showAnalysis(msg.result)

	case tokenizeDoneMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.finish()
		if msg.err != nil {
			m.addOutput(m.styles.Error.Render("Tokenization failed: " + msg.err.Error()))
			return m, nil
		}
		m.showTokens(msg.result)

	case searchDoneMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.finish()
		if msg.err != nil {
			if !m.canceled(msg.err) {
				m.addOutput(m.styles.Error.Render("Search failed: " + msg.err.Error()))
			}
			return m, nil
		}
		m.showSearchResults(msg.query, msg.results)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	var b strings.Builder

	switch m.state {
	case StateInput:
		b.WriteString(m.styles.Prompt.Render(">") + " ")
		b.WriteString(m.textarea.View())

	case StateLoading, StateAnalyzing, StateSearching:
		elapsed := time.Since(m.startTime).Seconds()
		b.WriteString(m.styles.Accent.Render(m.spinner.View()) + " ")
		b.WriteString(m.statusMsg + " ")
		b.WriteString(m.styles.Dim.Render(fmt.Sprintf("(esc to interrupt · %.0fs)", elapsed)))
	}

	return b.String()
}

// Helper methods

func (m *Model) addOutput(line string) {
	// Print directly to stdout for permanent history (scrollback)
	fmt.Println(line)
}

// drawBox creates a bordered box with a title
func (m *Model) drawBox(title string, width int) {
	innerWidth := width
	titleLen := lipgloss.Width(title)
	if titleLen > innerWidth {
		innerWidth = titleLen + 4
	}

	totalPadding := innerWidth - titleLen
	leftPad := totalPadding / 2
	rightPad := totalPadding - leftPad

	m.addOutput(m.styles.Warning.Render(boxTopLeft + strings.Repeat(boxHorizontal, innerWidth) + boxTopRight))
	m.addOutput(m.styles.Warning.Render(boxVertical + strings.Repeat(" ", leftPad) + title + strings.Repeat(" ", rightPad) + boxVertical))
	m.addOutput(m.styles.Warning.Render(boxBottomLeft + strings.Repeat(boxHorizontal, innerWidth) + boxBottomRight))
}

// begin switches to a busy state with a fresh cancelable context
func (m *Model) begin(state State, status string) (context.Context, int) {
	m.seq++
	m.state = state
	m.statusMsg = status
	m.startTime = time.Now()
	m.textarea.Blur()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelFn = cancel
	return ctx, m.seq
}

func (m *Model) finish() {
	if m.cancelFn != nil {
		m.cancelFn()
		m.cancelFn = nil
	}
	m.state = StateInput
	m.textarea.Focus()
}

func (m *Model) canceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

func (m *Model) busyCmds(work tea.Cmd) tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		work,
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
	)
}

// closeAnalyzer releases a replaced analyzer outside Update. Close waits for
// an inference still running on it, which must not stall the UI.
func closeAnalyzer(a *TextAnalyzer) tea.Cmd {
	return func() tea.Msg {
		_ = a.Close()
		return nil
	}
}

// shutdown releases the analyzer and the search index. It runs after the
// program has exited.
func (m *Model) shutdown() {
	if m.cancelFn != nil {
		m.cancelFn()
	}
	if m.analyzer != nil {
		_ = m.analyzer.Close()
	}
	if m.index != nil {
		_ = m.index.Close()
	}
}

func (m Model) startLoading(name string) (Model, tea.Cmd) {
	cfg, err := FindModelConfig(name)
	if err != nil {
		m.addOutput(m.styles.Error.Render(err.Error()))
		return m, nil
	}
	if m.engine == EngineONNX && !m.app.store.IsComplete(cfg) {
		m.addOutput(m.styles.Warning.Render(fmt.Sprintf("Model %s is not downloaded. Run 'bertlens download %s' first.", cfg.Name, cfg.Name)))
		return m, nil
	}

	ctx, seq := m.begin(StateLoading, fmt.Sprintf("Loading %s…", cfg.Name))
	opts := AnalyzerOptions{
		Engine: m.engine,
		EngineOptions: EngineOptions{
			NumThreads:   m.app.cfg.NumThreads,
			AWSRegion:    m.app.cfg.AWSRegion,
			BedrockModel: m.app.cfg.BedrockModel,
		},
		CacheSize: m.app.cfg.CacheSize,
		Logger:    m.app.logger,
	}
	store := m.app.store

	return m, m.busyCmds(func() tea.Msg {
		analyzer := NewTextAnalyzer(cfg, store, opts)
		if err := analyzer.Initialize(ctx); err != nil {
			return analyzerReadyMsg{seq: seq, err: err}
		}
		return analyzerReadyMsg{seq: seq, analyzer: analyzer}
	})
}

func (m Model) startAnalyzing(text string) (Model, tea.Cmd) {
	if m.analyzer == nil {
		m.addOutput(m.styles.Error.Render("No model loaded. Use /model NAME."))
		return m, nil
	}

	m.addOutput(m.styles.Prompt.Render("> ") + text)
	ctx, seq := m.begin(StateAnalyzing, "Analyzing…")
	analyzer := m.analyzer

	return m, m.busyCmds(func() tea.Msg {
		result, err := analyzer.AnalyzeText(ctx, text)
		return analysisDoneMsg{seq: seq, text: text, result: result, err: err}
	})
}

func (m Model) startSearching(query string) (Model, tea.Cmd) {
	if m.index == nil {
		m.addOutput(m.styles.Error.Render("No document loaded (set BERTLENS_DOCUMENT)."))
		return m, nil
	}

	m.addOutput(m.styles.Prompt.Render("search> ") + query)
	ctx, seq := m.begin(StateSearching, "Searching…")
	index := m.index

	var service TextAnalyzerService
	if m.analyzer != nil {
		service = m.analyzer
	}

	return m, m.busyCmds(func() tea.Msg {
		results, err := index.Search(ctx, query, service)
		return searchDoneMsg{seq: seq, query: query, results: results, err: err}
	})
}

// showAnalysis prints the text with important words highlighted, followed by
// the ranked list
func (m *Model) showAnalysis(result *TextAnalysis) {
	m.addOutput("")
	for _, line := range wrapText(m.highlight(result), 76) {
		m.addOutput("  " + line)
	}
	m.addOutput("")

	if len(result.ImportantWords) == 0 {
		m.addOutput(m.styles.Dim.Render("  No important words"))
	}
	for i, w := range result.ImportantWords {
		branch := treeBranch
		if i == len(result.ImportantWords)-1 {
			branch = treeEnd
		}
		style, ok := m.styles.styleForWeight(w.Weight)
		token := w.Token
		if ok {
			token = style.Render(token)
		}
		m.addOutput(fmt.Sprintf("  %s %s %s", m.styles.Dim.Render(branch), token, m.styles.Dim.Render(fmt.Sprintf("%.2f", w.Weight))))
	}
	m.addOutput(m.styles.Dim.Render(fmt.Sprintf("  attention %.3f · %d tokens", result.AttentionScore, len(result.Tokens))))
	m.addOutput("")
}

// highlight joins the analyzed tokens back into words and styles each word by
// the strongest weight among its pieces
func (m *Model) highlight(result *TextAnalysis) string {
	weights := make(map[string]float64, len(result.ImportantWords))
	for _, w := range result.ImportantWords {
		if w.Weight > weights[w.Token] {
			weights[w.Token] = w.Weight
		}
	}

	var words []string
	var cur strings.Builder
	var curWeight float64
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		word := cur.String()
		if style, ok := m.styles.styleForWeight(curWeight); ok {
			word = style.Render(word)
		}
		words = append(words, word)
		cur.Reset()
		curWeight = 0
	}

	for _, tok := range result.Tokens {
		if isSpecialToken(tok) {
			continue
		}
		if rest, ok := strings.CutPrefix(tok, wordPiecePrefix); ok {
			cur.WriteString(rest)
		} else {
			flush()
			cur.WriteString(tok)
		}
		if w := weights[tok]; w > curWeight {
			curWeight = w
		}
	}
	flush()
	return strings.Join(words, " ")
}

func (m *Model) showTokens(r *TokenizeResult) {
	m.addOutput("")
	m.addOutput(m.styles.Info.Render("  Tokens:    ") + strings.Join(r.Tokens, " "))
	m.addOutput(m.styles.Info.Render("  Input IDs: ") + fmt.Sprint(r.InputIDs))
	m.addOutput(m.styles.Dim.Render(fmt.Sprintf("  %d tokens", r.Len())))
	m.addOutput("")
}

func (m *Model) showSearchResults(query string, results []SearchResult) {
	m.addOutput("")
	if len(results) == 0 {
		m.addOutput(m.styles.Warning.Render(fmt.Sprintf("  No blocks match %q", query)))
		m.addOutput("")
		return
	}
	for i, r := range results {
		m.addOutput(m.styles.Success.Render(fmt.Sprintf("  %d. [%s]", i+1, r.Relevance)) + m.styles.Dim.Render(fmt.Sprintf(" block %d", r.Block.Index)))
		for _, line := range wrapText(r.Block.Text, 72) {
			m.addOutput("     " + line)
		}
		m.addOutput("")
	}
}

func (m Model) handleCommand(input string) (Model, tea.Cmd) {
	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	arg := strings.TrimSpace(strings.TrimPrefix(input, parts[0]))

	switch cmd {
	case "/quit", "/exit", "/q":
		return m, tea.Quit

	case "/help", "/h":
		m.addOutput("")
		m.addOutput("Available Commands:")
		m.addOutput("  TEXT                   Analyze TEXT and highlight important words")
		m.addOutput("  /model [NAME]          List models or switch to NAME")
		m.addOutput("  /engine [TYPE]         Show or set the engine (onnx, bedrock, hash)")
		m.addOutput("  /search QUERY, /s      Search the document")
		m.addOutput("  /tokens [TEXT], /t     Tokenize TEXT (default: last analyzed text)")
		m.addOutput("  /info, /i              Show model and tensor details")
		m.addOutput("  /clear, /c             Clear cached analyses")
		m.addOutput("  /theme [NAME]          Show or set the CLI color theme")
		m.addOutput("  /quit, /q              Exit")
		m.addOutput("")

	case "/model", "/m":
		if arg == "" {
			m.listModels()
			break
		}
		return m.startLoading(arg)

	case "/engine", "/e":
		if arg == "" {
			m.addOutput(fmt.Sprintf("Engine: %s", m.engine))
			break
		}
		m.engine = ParseEngineType(arg)
		m.addOutput(m.styles.Dim.Render(fmt.Sprintf("Engine set to %s", m.engine)))
		if m.analyzer != nil {
			return m.startLoading(m.analyzer.ModelName())
		}

	case "/search", "/s":
		if arg == "" {
			m.addOutput(m.styles.Error.Render("Usage: /search QUERY"))
			break
		}
		return m.startSearching(arg)

	case "/tokens", "/t":
		if arg == "" {
			arg = m.lastText
		}
		if arg == "" || m.analyzer == nil {
			m.addOutput(m.styles.Error.Render("Usage: /tokens TEXT (needs a loaded model)"))
			break
		}
		analyzer := m.analyzer
		text := arg
		ctx, seq := m.begin(StateAnalyzing, "Tokenizing…")
		return m, m.busyCmds(func() tea.Msg {
			r, err := analyzer.Tokenize(ctx, text)
			return tokenizeDoneMsg{seq: seq, result: r, err: err}
		})

	case "/info", "/i":
		m.showInfo()

	case "/clear", "/c":
		m.lastText = ""
		if m.analyzer != nil {
			m.addOutput(m.styles.Dim.Render(fmt.Sprintf("Cleared %d cached result(s).", m.analyzer.PurgeCache())))
		}

	case "/theme":
		if arg == "" {
			m.addOutput(fmt.Sprintf("Theme: %s (available: %s)", m.app.settings.Theme.Name, strings.Join(AvailableThemes(), ", ")))
			break
		}
		name := strings.ToLower(arg)
		if _, ok := ThemePresets[name]; !ok {
			m.addOutput(m.styles.Error.Render("Unknown theme: " + name))
			m.addOutput("Available themes: " + strings.Join(AvailableThemes(), ", "))
			break
		}
		m.app.settings.Theme.Name = name
		m.app.theme = NewTheme(&m.app.settings.Theme)
		if err := SaveSettings(m.app.settings); err != nil {
			m.addOutput(m.styles.Warning.Render("Could not save settings: " + err.Error()))
			break
		}
		m.addOutput(m.styles.Success.Render("Theme changed to " + name + " (saved)"))

	default:
		m.addOutput(m.styles.Error.Render("Unknown command: " + cmd))
	}

	return m, nil
}

func (m *Model) listModels() {
	m.addOutput("")
	for _, cfg := range ModelConfigs {
		marker := "  "
		if m.analyzer != nil && m.analyzer.ModelName() == cfg.Name {
			marker = m.styles.Accent.Render("* ")
		}
		status := m.styles.Dim.Render("missing")
		if m.app.store.IsComplete(cfg) {
			status = m.styles.Success.Render("ready")
		}
		m.addOutput(fmt.Sprintf("%s%-30s %-14s %s", marker, cfg.Name, cfg.Tokenizer, status))
	}
	m.addOutput("")
}

func (m *Model) showInfo() {
	if m.analyzer == nil {
		m.addOutput(m.styles.Error.Render("No model loaded."))
		return
	}
	cfg := m.analyzer.ModelConfig()
	m.addOutput("")
	m.drawBox(cfg.Name, 50)
	m.addOutput(fmt.Sprintf("  Engine:     %s", m.engine))
	m.addOutput(fmt.Sprintf("  Tokenizer:  %s", cfg.Tokenizer))
	m.addOutput(fmt.Sprintf("  Output:     %s", shapeString(cfg.OutputShape)))
	m.addOutput(fmt.Sprintf("  Cached:     %d", m.analyzer.CachedResults()))

	info := m.analyzer.TensorsInfo()
	m.addOutput("  Inputs:")
	for _, t := range info.Inputs {
		m.addOutput("    " + m.styles.Dim.Render(t.String()))
	}
	m.addOutput("  Outputs:")
	for _, t := range info.Outputs {
		m.addOutput("    " + m.styles.Dim.Render(t.String()))
	}

	if m.index != nil {
		docs, blocks, postings, err := m.index.Stats(context.Background())
		if err == nil {
			m.addOutput(fmt.Sprintf("  Search:     %d document(s), %d blocks, %d postings", docs, blocks, postings))
		}
	}
	m.addOutput("")
}

// StartTUI initializes everything and starts the bubbletea TUI
func StartTUI(ctx context.Context) error {
	a := newApp(os.Stdout)

	fmt.Printf("bertlens %s\n", Version)
	fmt.Println("BERT tokenization and word importance scoring")
	fmt.Println()

	cfg, err := FindModelConfig(a.cfg.ModelName)
	if err != nil {
		fmt.Print(FormatUserError(err))
		return err
	}

	if a.cfg.Engine == EngineONNX {
		if !IsONNXAvailable() {
			fmt.Printf("\033[93mWarning:\033[0m ONNX Runtime is not available in this build.\n")
			fmt.Println("         Use BERTLENS_ENGINE=hash or bedrock, or rebuild with -tags onnx.")
		}
		if !a.store.IsComplete(cfg) {
			if err := handleFirstRunDownload(ctx, os.Stdin, cfg, a.store); err != nil {
				fmt.Printf("\033[93mWarning:\033[0m %v\n", err)
			}
		}
	}

	var index *SearchIndex
	if idx, err := a.openSearchIndex(ctx, a.cfg.DocumentPath); err != nil {
		fmt.Printf("\033[93mWarning:\033[0m search disabled: %v\n", err)
	} else {
		index = idx
		_, blocks, _, _ := idx.Stats(ctx)
		fmt.Printf("Document: %s (%d blocks)\n", a.cfg.DocumentPath, blocks)
	}

	fmt.Printf("Model: %s (engine %s)\n", cfg.Name, a.cfg.Engine)
	fmt.Println()
	fmt.Println("Type /help for commands, /quit to exit")
	fmt.Println("Press Esc to interrupt during processing")
	fmt.Println()

	m := NewModel(a, index)
	// Don't use WithAltScreen() - keeps normal terminal scrollback history
	p := tea.NewProgram(m, tea.WithContext(ctx))

	final, err := p.Run()
	if fm, ok := final.(Model); ok {
		fm.shutdown()
	}
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
