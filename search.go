package main

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/kljensen/snowball"
	_ "github.com/mattn/go-sqlite3" // SQLite driver with CGO
)

// TextBlock is one paragraph of a searchable document
type TextBlock struct {
	Index int
	Text  string
}

// SearchResult is one matching block
type SearchResult struct {
	Block TextBlock
	// Score is matched hits divided by the number of query words
	Score float64
	// Relevance is Score formatted as a percentage
	Relevance string
	// Semantic is the important-word overlap used to order equal scores
	Semantic float64
}

// TextAnalyzerService is what search needs from an analyzer
type TextAnalyzerService interface {
	AnalyzeText(ctx context.Context, text string) (*TextAnalysis, error)
}

// SearchIndexConfig holds configuration for the search index
type SearchIndexConfig struct {
	DBPath   string
	Synonyms map[string][]string
	MinScore float64
	Limit    int
	Logger   *Logger

	// MaxTieAnalyses caps how many tied blocks the analyzer is run on
	MaxTieAnalyses int
}

// SearchIndex is a keyword index over the paragraphs of one document
type SearchIndex struct {
	db       *sql.DB
	synonyms map[string][]string
	minScore float64
	limit    int
	maxTies  int
	logger   *Logger
}

var keywordSplit = regexp.MustCompile(`[\s,.!?()\[\]{}]+`)

// NewSearchIndex creates or opens a search index
func NewSearchIndex(cfg SearchIndexConfig) (*SearchIndex, error) {
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0750); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps an in-memory database alive and shared
	db.SetMaxOpenConns(1)

	if err := initSearchSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if cfg.Logger == nil {
		cfg.Logger = NewDiscardLogger()
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = 0.3
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 5
	}
	if cfg.MaxTieAnalyses <= 0 {
		cfg.MaxTieAnalyses = 4 * cfg.Limit
	}

	return &SearchIndex{
		db:       db,
		synonyms: cfg.Synonyms,
		minScore: cfg.MinScore,
		limit:    cfg.Limit,
		maxTies:  cfg.MaxTieAnalyses,
		logger:   cfg.Logger,
	}, nil
}

func initSearchSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT UNIQUE NOT NULL,
		hash TEXT NOT NULL,
		indexed_at INTEGER NOT NULL
	);

	-- Paragraphs; idx is the position within the document
	CREATE TABLE IF NOT EXISTS blocks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id INTEGER NOT NULL,
		idx INTEGER NOT NULL,
		text TEXT NOT NULL,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	-- One row per keyword occurrence
	CREATE TABLE IF NOT EXISTS postings (
		word TEXT NOT NULL,
		block_id INTEGER NOT NULL,
		FOREIGN KEY (block_id) REFERENCES blocks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_postings_word ON postings(word);
	CREATE INDEX IF NOT EXISTS idx_blocks_document ON blocks(document_id);
	`

	_, err := db.Exec(schema)
	return err
}

// Close closes the search index
func (si *SearchIndex) Close() error {
	return si.db.Close()
}

// LoadTextBlocks reads a document and splits it into paragraphs on blank lines
func LoadTextBlocks(path string) ([]TextBlock, error) {
	data, err := os.ReadFile(path) //nolint:gosec // document path comes from config
	if err != nil {
		return nil, err
	}
	return SplitTextBlocks(string(data)), nil
}

// SplitTextBlocks splits text on "\n\n" and trims every non-empty paragraph
func SplitTextBlocks(text string) []TextBlock {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var blocks []TextBlock
	for _, part := range strings.Split(text, "\n\n") {
		if part == "" {
			continue
		}
		blocks = append(blocks, TextBlock{Index: len(blocks), Text: strings.TrimSpace(part)})
	}
	return blocks
}

// splitKeywords lowercases text and keeps words longer than two characters
func splitKeywords(text string) []string {
	var words []string
	for _, w := range keywordSplit.Split(lower(text), -1) {
		if utf8.RuneCountInString(w) > 2 {
			words = append(words, w)
		}
	}
	return words
}

// LoadDocument indexes the document at path. An unchanged document is not
// indexed again; a changed one replaces the previous index.
func (si *SearchIndex) LoadDocument(ctx context.Context, path string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve path: %w", err)
	}

	content, err := os.ReadFile(absPath) //nolint:gosec // document path comes from config
	if err != nil {
		return 0, fmt.Errorf("failed to read document: %w", err)
	}
	hash := sha256.Sum256(content)
	hashStr := hex.EncodeToString(hash[:16])

	var docID int64
	var existingHash string
	err = si.db.QueryRowContext(ctx, "SELECT id, hash FROM documents WHERE path = ?", absPath).Scan(&docID, &existingHash)
	if err == nil && existingHash == hashStr {
		var n int
		if err := si.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM blocks WHERE document_id = ?", docID).Scan(&n); err != nil {
			return 0, err
		}
		si.logger.Debug("document %s unchanged, %d blocks", absPath, n)
		return n, nil
	}

	blocks := SplitTextBlocks(string(content))

	tx, err := si.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	// Only one document is searchable at a time
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents"); err != nil {
		return 0, err
	}

	result, err := tx.ExecContext(ctx,
		"INSERT INTO documents (path, hash, indexed_at) VALUES (?, ?, ?)",
		absPath, hashStr, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	docID, _ = result.LastInsertId()

	blockStmt, err := tx.PrepareContext(ctx, "INSERT INTO blocks (document_id, idx, text) VALUES (?, ?, ?)")
	if err != nil {
		return 0, err
	}
	defer func() { _ = blockStmt.Close() }()

	wordStmt, err := tx.PrepareContext(ctx, "INSERT INTO postings (word, block_id) VALUES (?, ?)")
	if err != nil {
		return 0, err
	}
	defer func() { _ = wordStmt.Close() }()

	for _, block := range blocks {
		res, err := blockStmt.ExecContext(ctx, docID, block.Index, block.Text)
		if err != nil {
			return 0, err
		}
		blockID, _ := res.LastInsertId()
		for _, word := range splitKeywords(block.Text) {
			if _, err := wordStmt.ExecContext(ctx, word, blockID); err != nil {
				return 0, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	si.logger.Info("indexed %s: %d blocks", absPath, len(blocks))
	return len(blocks), nil
}

// Search ranks blocks by how many query words (directly, by stem or by
// synonym) they contain. With a non-nil analyzer, equal scores at the top
// are ordered by important-word overlap between query and block.
func (si *SearchIndex) Search(ctx context.Context, query string, analyzer TextAnalyzerService) ([]SearchResult, error) {
	start := time.Now()
	queryWords := splitKeywords(query)
	if len(queryWords) == 0 {
		return nil, nil
	}

	matches := make(map[int64]int)
	count := func(sqlQuery string, args ...any) error {
		rows, err := si.db.QueryContext(ctx, sqlQuery, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var blockID int64
			var n int
			if err := rows.Scan(&blockID, &n); err != nil {
				return err
			}
			matches[blockID] += n
		}
		return rows.Err()
	}

	const direct = "SELECT block_id, COUNT(*) FROM postings WHERE word = ? GROUP BY block_id"
	for _, word := range queryWords {
		if err := count(direct, word); err != nil {
			return nil, err
		}

		root := wordRoot(word)
		if err := count("SELECT block_id, COUNT(*) FROM postings WHERE substr(word, 1, ?) = ? GROUP BY block_id",
			utf8.RuneCountInString(root), root); err != nil {
			return nil, err
		}

		for _, synonym := range si.synonyms[word] {
			if err := count(direct, synonym); err != nil {
				return nil, err
			}
		}
	}

	results := make([]SearchResult, 0, len(matches))
	for blockID, n := range matches {
		score := float64(n) / float64(len(queryWords))
		if score <= si.minScore {
			continue
		}
		block, err := si.block(ctx, blockID)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{
			Block:     block,
			Score:     score,
			Relevance: fmt.Sprintf("%.1f%%", score*100),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Block.Index < results[j].Block.Index
	})

	if analyzer != nil && len(results) > 0 {
		if err := si.weighTies(ctx, query, results, analyzer); err != nil {
			return nil, err
		}
	}

	if len(results) > si.limit {
		results = results[:si.limit]
	}

	si.logger.Debug("search %q: %d results in %s", query, len(results), time.Since(start))
	return results, nil
}

// weighTies fills Semantic for the results that could still make the cut,
// at most maxTies of them, and reorders equal scores by it. Analyzer
// failures leave a block at its keyword score; only cancellation aborts.
func (si *SearchIndex) weighTies(ctx context.Context, query string, results []SearchResult, analyzer TextAnalyzerService) error {
	cut := si.limit
	if cut > len(results) {
		cut = len(results)
	}
	boundary := results[cut-1].Score
	n := 0
	for n < len(results) && results[n].Score >= boundary {
		n++
	}
	if n > si.maxTies {
		n = si.maxTies
	}

	queryAnalysis, err := analyzer.AnalyzeText(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		si.logger.Error("search %q: query analysis failed, keeping keyword order: %v", query, err)
		return nil
	}
	for i := 0; i < n; i++ {
		blockAnalysis, err := analyzer.AnalyzeText(ctx, results[i].Block.Text)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			si.logger.Debug("search %q: skipping block %d: %v", query, results[i].Block.Index, err)
			continue
		}
		results[i].Semantic = calculateRelevance(queryAnalysis.ImportantWords, blockAnalysis.ImportantWords)
	}

	sort.SliceStable(results[:n], func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Semantic > results[j].Semantic
	})
	return nil
}

func (si *SearchIndex) block(ctx context.Context, blockID int64) (TextBlock, error) {
	var b TextBlock
	err := si.db.QueryRowContext(ctx, "SELECT idx, text FROM blocks WHERE id = ?", blockID).Scan(&b.Index, &b.Text)
	return b, err
}

// Stats returns the number of documents, blocks and keyword occurrences
func (si *SearchIndex) Stats(ctx context.Context) (documents, blocks, postings int, err error) {
	err = si.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&documents)
	if err != nil {
		return
	}
	err = si.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM blocks").Scan(&blocks)
	if err != nil {
		return
	}
	err = si.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM postings").Scan(&postings)
	return
}

// wordRoot stems word with the Snowball stemmer for its script. When
// stemming fails the last two characters are dropped instead.
func wordRoot(word string) string {
	language := "english"
	for _, r := range word {
		if unicode.Is(unicode.Cyrillic, r) {
			language = "russian"
			break
		}
	}

	if stem, err := snowball.Stem(word, language, true); err == nil && stem != "" {
		return stem
	}
	runes := []rune(word)
	if len(runes) <= 2 {
		return word
	}
	return string(runes[:len(runes)-2])
}

// relatedWords links words that count as similar when comparing important words
var relatedWords = map[string][]string{
	"особенности": {"преимущества", "характеристики", "возможности", "специфика"},
	"архитектура": {"mvvm", "mvc", "mvp", "паттерн", "шаблон", "подход"},
	"паттерн":     {"pattern", "шаблон", "архитектура", "подход"},
	"mvp":         {"model", "view", "presenter", "паттерн", "архитектура", "шаблон"},
	"mvvm":        {"model", "view", "viewmodel", "паттерн", "архитектура"},
	"данные":      {"data", "информация", "содержимое"},
	"приложение":  {"app", "программа", "система"},
}

// calculateRelevance averages, over the query's important words, the best
// weight product with a similar block word
func calculateRelevance(queryWords, blockWords []ImportantWord) float64 {
	queryWeights := make(map[string]float64, len(queryWords))
	for _, w := range queryWords {
		queryWeights[lower(w.Token)] = clamp(w.Weight, 0, 1)
	}
	if len(queryWeights) == 0 {
		return 0
	}

	var total float64
	for word, weight := range queryWeights {
		var best float64
		for _, bw := range blockWords {
			if areWordsSimilar(word, bw.Token) {
				if s := weight * bw.Weight; s > best {
					best = s
				}
			}
		}
		total += best
	}
	return clamp(total/float64(len(queryWeights)), 0, 1)
}

func areWordsSimilar(a, b string) bool {
	w1, w2 := lower(a), lower(b)
	if w1 == w2 {
		return true
	}

	if utf8.RuneCountInString(w1) > 3 && utf8.RuneCountInString(w2) > 3 {
		if strings.Contains(w1, w2) || strings.Contains(w2, w1) {
			return true
		}
	}

	containsAny := func(s string, words []string) bool {
		for _, w := range words {
			if strings.Contains(s, w) {
				return true
			}
		}
		return false
	}
	for key, values := range relatedWords {
		if (strings.Contains(w1, key) && containsAny(w2, values)) ||
			(strings.Contains(w2, key) && containsAny(w1, values)) {
			return true
		}
	}
	return false
}
