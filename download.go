package main

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	onnxVersion = "1.23.2"
)

// getONNXDownloadURL returns the download URL for ONNX runtime
func getONNXDownloadURL() (string, string) {
	base := "https://github.com/microsoft/onnxruntime/releases/download/v" + onnxVersion

	switch runtime.GOOS {
	case "windows":
		return base + "/onnxruntime-win-x64-" + onnxVersion + ".zip", "zip"
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return base + "/onnxruntime-osx-arm64-" + onnxVersion + ".tgz", "tgz"
		}
		return base + "/onnxruntime-osx-x86_64-" + onnxVersion + ".tgz", "tgz"
	default: // linux
		if runtime.GOARCH == "arm64" {
			return base + "/onnxruntime-linux-aarch64-" + onnxVersion + ".tgz", "tgz"
		}
		return base + "/onnxruntime-linux-x64-" + onnxVersion + ".tgz", "tgz"
	}
}

// getONNXLibDir returns the directory where ONNX runtime should be installed
func getONNXLibDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".bertlens", "lib"), nil
}

// EnsureONNXRuntime downloads and installs ONNX runtime if not present.
// progressFn is called with status messages during download.
func EnsureONNXRuntime(ctx context.Context, progressFn func(string)) error {
	if isONNXAvailable() {
		return nil
	}

	libDir, err := getONNXLibDir()
	if err != nil {
		return fmt.Errorf("cannot determine lib directory: %w", err)
	}

	libPath := filepath.Join(libDir, getExpectedLibName())
	if _, err := os.Stat(libPath); err == nil {
		return nil
	}

	url, archiveType := getONNXDownloadURL()
	if progressFn != nil {
		progressFn(fmt.Sprintf("Downloading ONNX Runtime v%s...", onnxVersion))
	}

	tmpDir, err := os.MkdirTemp("", "onnxruntime-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	archivePath := filepath.Join(tmpDir, "onnxruntime."+archiveType)
	if err := downloadFile(ctx, url, archivePath, progressFn); err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	if err := os.MkdirAll(libDir, 0750); err != nil {
		return fmt.Errorf("failed to create lib directory: %w", err)
	}

	if progressFn != nil {
		progressFn("Extracting...")
	}

	if archiveType == "zip" {
		err = extractZip(archivePath, libDir)
	} else {
		err = extractTarGz(archivePath, libDir)
	}
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	if progressFn != nil {
		progressFn("ONNX Runtime installed successfully")
	}
	return nil
}

// getExpectedLibName returns the expected library filename for the current platform
func getExpectedLibName() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

// modelAsset is one downloadable file of a model
type modelAsset struct {
	label string
	url   string
	dest  string
}

func modelAssets(cfg ModelConfig, store *ModelStore) []modelAsset {
	assets := []modelAsset{
		{label: "model", url: cfg.ModelURL, dest: store.ModelPath(cfg)},
		{label: "vocabulary", url: cfg.VocabURL, dest: store.VocabPath(cfg)},
	}
	if cfg.SentencePieceFile != "" {
		assets = append(assets, modelAsset{label: "sentencepiece model", url: cfg.SentencePieceURL, dest: store.SentencePiecePath(cfg)})
	}
	return assets
}

// EnsureModelAssets downloads every missing file of cfg into the store. Files
// already present and non-empty are left alone. A missing file without a
// known download URL is an error telling the user to import it.
func EnsureModelAssets(ctx context.Context, cfg ModelConfig, store *ModelStore, progressFn func(string)) error {
	for _, asset := range modelAssets(cfg, store) {
		if nonEmptyFile(asset.dest) {
			continue
		}
		if asset.url == "" {
			return fmt.Errorf("no download URL for the %s of %s; add it with 'bertlens import'", asset.label, cfg.Name)
		}

		if err := os.MkdirAll(filepath.Dir(asset.dest), 0750); err != nil {
			return fmt.Errorf("failed to create model directory: %w", err)
		}
		if progressFn != nil {
			progressFn(fmt.Sprintf("Downloading %s for %s...", asset.label, cfg.Name))
		}
		if err := downloadFile(ctx, asset.url, asset.dest, progressFn); err != nil {
			return fmt.Errorf("failed to download %s of %s: %w", asset.label, cfg.Name, err)
		}
	}
	return nil
}

// downloadFile fetches url into dest through a temp file renamed on success
func downloadFile(ctx context.Context, url, dest string, progressFn func(string)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	tmpFile := dest + ".tmp"
	f, err := os.Create(tmpFile) //nolint:gosec // dest is built by the caller
	if err != nil {
		return err
	}

	var downloaded int64
	lastPct := -1
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				_ = f.Close()
				_ = os.Remove(tmpFile)
				return writeErr
			}
			downloaded += int64(n)
			if progressFn != nil && resp.ContentLength > 0 {
				pct := int(downloaded * 100 / resp.ContentLength)
				if pct != lastPct {
					lastPct = pct
					progressFn(fmt.Sprintf("  %d%% (%s/%s)", pct, formatBytes(downloaded), formatBytes(resp.ContentLength)))
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = f.Close()
			_ = os.Remove(tmpFile)
			return readErr
		}
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpFile)
		return err
	}
	return os.Rename(tmpFile, dest)
}

// extractZip extracts relevant files from a zip archive
func extractZip(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		// Only extract library files from lib/ directory
		if !strings.Contains(f.Name, "/lib/") {
			continue
		}

		name := filepath.Base(f.Name)
		if name == "" || name == "." || name == ".." || !isLibraryFile(name) {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeLimited(filepath.Join(destDir, name), rc)
		_ = rc.Close()
		if err != nil {
			return err
		}
	}

	return nil
}

// extractTarGz extracts relevant files from a tar.gz archive
func extractTarGz(tgzPath, destDir string) error {
	f, err := os.Open(tgzPath) //nolint:gosec // temp archive we just downloaded
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer func() { _ = gzr.Close() }()

	tr := tar.NewReader(gzr)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		if !strings.Contains(header.Name, "/lib/") || header.Typeflag == tar.TypeDir {
			continue
		}

		name := filepath.Base(header.Name)
		if name == "" || name == "." || name == ".." || !isLibraryFile(name) {
			continue
		}

		if err := writeLimited(filepath.Join(destDir, name), tr); err != nil {
			return err
		}
	}

	return nil
}

// writeLimited copies at most 200MB from r into path
func writeLimited(path string, r io.Reader) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600) //nolint:gosec // path is under the lib dir
	if err != nil {
		return err
	}
	_, err = io.CopyN(out, r, 200*1024*1024)
	_ = out.Close()
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}

// isLibraryFile checks if a filename is a library file we want to extract
func isLibraryFile(name string) bool {
	if strings.HasSuffix(name, ".dll") || strings.HasSuffix(name, ".dylib") {
		return true
	}
	// libonnxruntime.so or libonnxruntime.so.1.23.2
	return strings.HasPrefix(name, "libonnxruntime") && strings.Contains(name, ".so")
}
