package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ModelName != "rubert-tiny2" {
		t.Errorf("ModelName = %q, want rubert-tiny2", cfg.ModelName)
	}
	if cfg.Engine != EngineONNX {
		t.Errorf("Engine = %q, want onnx", cfg.Engine)
	}
	if cfg.CacheSize != 100 {
		t.Errorf("CacheSize = %d, want 100", cfg.CacheSize)
	}
	if cfg.NumThreads != 4 {
		t.Errorf("NumThreads = %d, want 4", cfg.NumThreads)
	}
	if !strings.HasSuffix(cfg.ModelsDir, filepath.Join(".bertlens", "models")) {
		t.Errorf("ModelsDir = %q, want it under .bertlens/models", cfg.ModelsDir)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("BERTLENS_MODEL", "labse-en-ru")
	t.Setenv("BERTLENS_MODELS_DIR", "/tmp/models")
	t.Setenv("BERTLENS_ENGINE", "titan")
	t.Setenv("BERTLENS_CACHE_SIZE", "7")
	t.Setenv("BERTLENS_THREADS", "2")
	t.Setenv("BERTLENS_DOCUMENT", "doc.txt")
	t.Setenv("BERTLENS_INDEX", "/tmp/index.db")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("BERTLENS_BEDROCK_MODEL", "amazon.titan-embed-text-v1")
	t.Setenv("BERTLENS_LOG_LEVEL", "DEBUG")

	cfg := LoadConfig()

	if cfg.ModelName != "labse-en-ru" {
		t.Errorf("ModelName = %q, want labse-en-ru", cfg.ModelName)
	}
	if cfg.ModelsDir != "/tmp/models" {
		t.Errorf("ModelsDir = %q, want /tmp/models", cfg.ModelsDir)
	}
	if cfg.Engine != EngineBedrock {
		t.Errorf("Engine = %q, want bedrock", cfg.Engine)
	}
	if cfg.CacheSize != 7 {
		t.Errorf("CacheSize = %d, want 7", cfg.CacheSize)
	}
	if cfg.NumThreads != 2 {
		t.Errorf("NumThreads = %d, want 2", cfg.NumThreads)
	}
	if cfg.DocumentPath != "doc.txt" {
		t.Errorf("DocumentPath = %q, want doc.txt", cfg.DocumentPath)
	}
	if cfg.IndexPath != "/tmp/index.db" {
		t.Errorf("IndexPath = %q, want /tmp/index.db", cfg.IndexPath)
	}
	if cfg.AWSRegion != "eu-west-1" {
		t.Errorf("AWSRegion = %q, want eu-west-1", cfg.AWSRegion)
	}
	if cfg.BedrockModel != "amazon.titan-embed-text-v1" {
		t.Errorf("BedrockModel = %q", cfg.BedrockModel)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadConfigInvalidNumbers(t *testing.T) {
	t.Setenv("BERTLENS_CACHE_SIZE", "abc")
	t.Setenv("BERTLENS_THREADS", "-3")

	cfg := LoadConfig()

	if cfg.CacheSize != 100 {
		t.Errorf("CacheSize = %d, want default 100", cfg.CacheSize)
	}
	if cfg.NumThreads != 4 {
		t.Errorf("NumThreads = %d, want default 4", cfg.NumThreads)
	}
}

func TestApplySettings(t *testing.T) {
	t.Run("settings fill defaults", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ApplySettings(&Settings{
			Model:  "tinybert_general_4l_312d",
			Engine: "hash",
			Search: SearchSettings{Document: "notes.txt"},
		})
		if cfg.ModelName != "tinybert_general_4l_312d" {
			t.Errorf("ModelName = %q", cfg.ModelName)
		}
		if cfg.Engine != EngineHash {
			t.Errorf("Engine = %q, want hash", cfg.Engine)
		}
		if cfg.DocumentPath != "notes.txt" {
			t.Errorf("DocumentPath = %q", cfg.DocumentPath)
		}
	})

	t.Run("environment wins", func(t *testing.T) {
		t.Setenv("BERTLENS_MODEL", "labse-en-ru")
		cfg := LoadConfig()
		cfg.ApplySettings(&Settings{Model: "tinybert_general_4l_312d"})
		if cfg.ModelName != "labse-en-ru" {
			t.Errorf("ModelName = %q, want labse-en-ru", cfg.ModelName)
		}
	})

	t.Run("nil settings", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ApplySettings(nil)
		if cfg.ModelName != "rubert-tiny2" {
			t.Errorf("ModelName = %q", cfg.ModelName)
		}
	})
}

func TestParseEngineType(t *testing.T) {
	tests := []struct {
		input string
		want  EngineType
	}{
		{"onnx", EngineONNX},
		{"", EngineONNX},
		{"unknown", EngineONNX},
		{"bedrock", EngineBedrock},
		{"AWS", EngineBedrock},
		{"titan", EngineBedrock},
		{"hash", EngineHash},
		{"fake", EngineHash},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseEngineType(tt.input); got != tt.want {
				t.Errorf("ParseEngineType(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
