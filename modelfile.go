package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
)

// ModelStore manages model assets on disk, one directory per model:
//
//	<root>/<model name>/<model file>
//	<root>/<model name>/<vocab file>
type ModelStore struct {
	root string
}

// NewModelStore creates a store rooted at dir
func NewModelStore(dir string) *ModelStore {
	return &ModelStore{root: dir}
}

// Root returns the store's base directory
func (s *ModelStore) Root() string {
	return s.root
}

func (s *ModelStore) modelDir(cfg ModelConfig) string {
	return filepath.Join(s.root, cfg.Name)
}

// ModelPath returns where the model file of cfg lives
func (s *ModelStore) ModelPath(cfg ModelConfig) string {
	return filepath.Join(s.modelDir(cfg), cfg.ModelFile)
}

// VocabPath returns where the vocabulary of cfg lives
func (s *ModelStore) VocabPath(cfg ModelConfig) string {
	return filepath.Join(s.modelDir(cfg), cfg.VocabFile)
}

// SentencePiecePath returns where the sentencepiece model of cfg lives
func (s *ModelStore) SentencePiecePath(cfg ModelConfig) string {
	return filepath.Join(s.modelDir(cfg), cfg.SentencePieceFile)
}

// IsComplete reports whether both the model and the vocabulary exist and are non-empty
func (s *ModelStore) IsComplete(cfg ModelConfig) bool {
	return nonEmptyFile(s.ModelPath(cfg)) && nonEmptyFile(s.VocabPath(cfg))
}

func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// Sizes returns the model and vocabulary file sizes in bytes, 0 when missing
func (s *ModelStore) Sizes(cfg ModelConfig) (model, vocab int64) {
	if info, err := os.Stat(s.ModelPath(cfg)); err == nil {
		model = info.Size()
	}
	if info, err := os.Stat(s.VocabPath(cfg)); err == nil {
		vocab = info.Size()
	}
	return model, vocab
}

// ImportModel copies a local model file into the store
func (s *ModelStore) ImportModel(cfg ModelConfig, src string) error {
	return s.importFile(src, s.ModelPath(cfg))
}

// ImportVocab copies a local vocabulary file into the store
func (s *ModelStore) ImportVocab(cfg ModelConfig, src string) error {
	return s.importFile(src, s.VocabPath(cfg))
}

// ImportSentencePiece copies a local sentencepiece model into the store
func (s *ModelStore) ImportSentencePiece(cfg ModelConfig, src string) error {
	if cfg.SentencePieceFile == "" {
		return fmt.Errorf("model %s does not use sentencepiece", cfg.Name)
	}
	return s.importFile(src, s.SentencePiecePath(cfg))
}

// ImportFromDir copies the model and vocabulary files of cfg, by their
// registry file names, from dir
func (s *ModelStore) ImportFromDir(cfg ModelConfig, dir string) error {
	if err := s.ImportModel(cfg, filepath.Join(dir, cfg.ModelFile)); err != nil {
		return err
	}
	if err := s.ImportVocab(cfg, filepath.Join(dir, cfg.VocabFile)); err != nil {
		return err
	}
	if cfg.SentencePieceFile != "" {
		src := filepath.Join(dir, cfg.SentencePieceFile)
		if _, err := os.Stat(src); err == nil {
			return s.ImportSentencePiece(cfg, src)
		}
	}
	return nil
}

// importFile copies src to a temp file next to dst, then renames it into place
func (s *ModelStore) importFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // import source chosen by the user
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	tmpPath := dst + ".tmp"
	out, err := os.Create(tmpPath) //nolint:gosec // path is built from the store root
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmpPath, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, dst)
}

// Delete removes every file stored for cfg
func (s *ModelStore) Delete(cfg ModelConfig) error {
	return os.RemoveAll(s.modelDir(cfg))
}

// ListDownloaded returns the registry models that have a directory in the
// store, in registry order
func (s *ModelStore) ListDownloaded() ([]ModelConfig, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			present[e.Name()] = true
		}
	}

	var out []ModelConfig
	for _, cfg := range ModelConfigs {
		if present[cfg.Name] {
			out = append(out, cfg)
		}
	}
	return out, nil
}

// ModelMapping is a read-only memory map of a model file
type ModelMapping struct {
	path string
	data mmap.MMap
}

// MapModel memory-maps the model file of cfg read-only
func (s *ModelStore) MapModel(cfg ModelConfig) (*ModelMapping, error) {
	return mapFile(s.ModelPath(cfg))
}

func mapFile(path string) (*ModelMapping, error) {
	f, err := os.Open(path) //nolint:gosec // path is built from the store root
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("model file %s is empty", path)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &ModelMapping{path: path, data: data}, nil
}

// Bytes returns the mapped file contents. The slice is invalid after Close.
func (m *ModelMapping) Bytes() []byte {
	return m.data
}

// Path returns the mapped file path
func (m *ModelMapping) Path() string {
	return m.path
}

// Close unmaps the file. It is safe to call more than once.
func (m *ModelMapping) Close() error {
	if m == nil || m.data == nil {
		return nil
	}
	err := m.data.Unmap()
	m.data = nil
	return err
}
