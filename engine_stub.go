//go:build !cgo || !onnx

package main

import (
	"fmt"
)

// newONNXEngine returns an error when ONNX is not compiled in
func newONNXEngine(_ EngineOptions) (InferenceEngine, error) {
	return nil, fmt.Errorf("ONNX runtime not available (build without CGO or onnx tag)")
}

// isONNXAvailable returns false when ONNX is not compiled in
func isONNXAvailable() bool {
	return false
}
