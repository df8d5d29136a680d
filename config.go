package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration
type Config struct {
	// Model selection
	ModelName string     // ModelConfig name (default: rubert-tiny2)
	ModelsDir string     // Root directory holding one subdirectory per model
	Engine    EngineType // onnx, bedrock or hash

	// Analyzer tuning
	CacheSize  int // Results kept per analyzer (default: 100)
	NumThreads int // Intra-op threads for the ONNX session (default: 4)

	// Search
	DocumentPath string // Text document searched by 'bertlens search'
	IndexPath    string // SQLite keyword index (default: ~/.bertlens/search.db)

	// Bedrock engine
	AWSRegion    string
	BedrockModel string

	LogLevel string
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	baseDir := filepath.Join(home, ".bertlens")

	return &Config{
		ModelName:    "rubert-tiny2",
		ModelsDir:    filepath.Join(baseDir, "models"),
		Engine:       EngineONNX,
		CacheSize:    100,
		NumThreads:   4,
		DocumentPath: "android_best_practice.txt",
		IndexPath:    filepath.Join(baseDir, "search.db"),
		AWSRegion:    "us-east-1",
		BedrockModel: "amazon.titan-embed-text-v2:0",
		LogLevel:     "info",
	}
}

// LoadConfig loads configuration from an optional .env file and environment variables
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if val := os.Getenv("BERTLENS_MODEL"); val != "" {
		cfg.ModelName = val
	}
	if val := os.Getenv("BERTLENS_MODELS_DIR"); val != "" {
		cfg.ModelsDir = val
	}
	if val := os.Getenv("BERTLENS_ENGINE"); val != "" {
		cfg.Engine = ParseEngineType(val)
	}

	if val := os.Getenv("BERTLENS_CACHE_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.CacheSize = n
		}
	}
	if val := os.Getenv("BERTLENS_THREADS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.NumThreads = n
		}
	}

	if val := os.Getenv("BERTLENS_DOCUMENT"); val != "" {
		cfg.DocumentPath = val
	}
	if val := os.Getenv("BERTLENS_INDEX"); val != "" {
		cfg.IndexPath = val
	}

	if val := os.Getenv("AWS_REGION"); val != "" {
		cfg.AWSRegion = val
	}
	if val := os.Getenv("BERTLENS_BEDROCK_MODEL"); val != "" {
		cfg.BedrockModel = val
	}

	if val := os.Getenv("BERTLENS_LOG_LEVEL"); val != "" {
		cfg.LogLevel = strings.ToLower(val)
	}

	return cfg
}

// ApplySettings fills fields the environment left at their defaults from the
// persisted settings file. Environment variables always win.
func (c *Config) ApplySettings(s *Settings) {
	if s == nil {
		return
	}
	def := DefaultConfig()
	if c.ModelName == def.ModelName && s.Model != "" {
		c.ModelName = s.Model
	}
	if c.Engine == def.Engine && s.Engine != "" {
		c.Engine = ParseEngineType(s.Engine)
	}
	if c.DocumentPath == def.DocumentPath && s.Search.Document != "" {
		c.DocumentPath = s.Search.Document
	}
}
