package main

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func TestIsLibraryFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"onnxruntime.dll", true},
		{"libonnxruntime.dylib", true},
		{"libonnxruntime.so", true},
		{"libonnxruntime.so.1.23.2", true},
		{"libother.so", false},
		{"README.md", false},
		{"onnxruntime_c_api.h", false},
	}
	for _, tt := range tests {
		if got := isLibraryFile(tt.name); got != tt.want {
			t.Errorf("isLibraryFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestEnsureModelAssets(t *testing.T) {
	files := map[string]string{
		"/model.onnx": "model-bytes",
		"/vocab.txt":  "[UNK]\n[CLS]\n[SEP]\n",
	}
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	cfg, _ := FindModelConfig("rubert-tiny2")
	cfg.ModelURL = srv.URL + "/model.onnx"
	cfg.VocabURL = srv.URL + "/vocab.txt"
	store := NewModelStore(t.TempDir())

	var progress []string
	if err := EnsureModelAssets(context.Background(), cfg, store, func(s string) { progress = append(progress, s) }); err != nil {
		t.Fatalf("EnsureModelAssets: %v", err)
	}
	if !store.IsComplete(cfg) {
		t.Error("store should be complete after download")
	}
	if len(progress) == 0 {
		t.Error("progress callback was not called")
	}

	t.Run("present files are skipped", func(t *testing.T) {
		before := requests.Load()
		if err := EnsureModelAssets(context.Background(), cfg, store, nil); err != nil {
			t.Fatal(err)
		}
		if requests.Load() != before {
			t.Errorf("made %d requests for present files", requests.Load()-before)
		}
	})

	t.Run("http error", func(t *testing.T) {
		bad := cfg
		bad.Name = "broken"
		bad.ModelURL = srv.URL + "/missing.onnx"
		err := EnsureModelAssets(context.Background(), bad, store, nil)
		if err == nil || !strings.Contains(err.Error(), "404") {
			t.Errorf("err = %v, want an HTTP 404 error", err)
		}
		if _, statErr := os.Stat(store.ModelPath(bad)); !os.IsNotExist(statErr) {
			t.Error("failed download should not leave a model file")
		}
	})

	t.Run("no url", func(t *testing.T) {
		e5, _ := FindModelConfig("multilingual-e5-small")
		e5.ModelURL = srv.URL + "/model.onnx"
		err := EnsureModelAssets(context.Background(), e5, NewModelStore(t.TempDir()), nil)
		if err == nil || !strings.Contains(err.Error(), "bertlens import") {
			t.Errorf("err = %v, want an import hint", err)
		}
	})
}

func TestExtractTarGz(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "onnxruntime.tgz")
	f, err := os.Create(archive)
	if err != nil {
		t.Fatal(err)
	}
	gzw := gzip.NewWriter(f)
	tw := tar.NewWriter(gzw)
	entries := map[string]string{
		"onnxruntime-linux-x64/lib/libonnxruntime.so.1.23.2": "lib",
		"onnxruntime-linux-x64/include/onnxruntime_c_api.h":  "header",
		"onnxruntime-linux-x64/lib/cmake/config.txt":         "cmake",
	}
	for name, body := range entries {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0600, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gzw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	if err := extractTarGz(archive, dest); err != nil {
		t.Fatalf("extractTarGz: %v", err)
	}

	got, err := os.ReadDir(dest)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name() != "libonnxruntime.so.1.23.2" {
		t.Errorf("extracted %v, want only the library", got)
	}
}
