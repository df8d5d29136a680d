//go:build cgo && onnx

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// onnxEngine runs a model through ONNX Runtime. The session is built from the
// memory-mapped model bytes, so the mapping must outlive the engine.
type onnxEngine struct {
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	outputName  string
	tensorsInfo ModelTensorsInfo
	mu          sync.Mutex
}

var onnxInitOnce sync.Once
var onnxInitErr error

func initONNXRuntime() error {
	onnxInitOnce.Do(func() {
		if !findONNXLibrary() {
			onnxInitErr = fmt.Errorf("ONNX runtime library not found")
			return
		}
		onnxInitErr = ort.InitializeEnvironment()
	})
	return onnxInitErr
}

func newONNXEngine(opts EngineOptions) (InferenceEngine, error) {
	if err := initONNXRuntime(); err != nil {
		return nil, err
	}

	data := opts.Mapping.Bytes()
	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to read model tensors: %w", err)
	}

	info := ModelTensorsInfo{
		Inputs:  make([]TensorDetails, len(inputs)),
		Outputs: make([]TensorDetails, len(outputs)),
	}
	available := make(map[string]bool, len(inputs))
	for i, in := range inputs {
		info.Inputs[i] = TensorDetails{Name: in.Name, Shape: []int64(in.Dimensions), DataType: fmt.Sprint(in.DataType)}
		available[in.Name] = true
	}
	for i, out := range outputs {
		info.Outputs[i] = TensorDetails{Name: out.Name, Shape: []int64(out.Dimensions), DataType: fmt.Sprint(out.DataType)}
	}

	// Some exports drop token_type_ids; feed only what the graph declares
	var inputNames []string
	for _, name := range opts.Model.InputNames {
		if available[name] {
			inputNames = append(inputNames, name)
		}
	}
	if len(inputNames) == 0 {
		return nil, fmt.Errorf("model declares none of the inputs %v", opts.Model.InputNames)
	}

	outputName := opts.Model.OutputName
	found := false
	for _, out := range outputs {
		if out.Name == outputName {
			found = true
			break
		}
	}
	if !found {
		if len(outputs) == 0 {
			return nil, fmt.Errorf("model declares no outputs")
		}
		outputName = outputs[0].Name
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() { _ = options.Destroy() }()

	numThreads := opts.NumThreads
	if numThreads <= 0 || numThreads > runtime.NumCPU() {
		numThreads = runtime.NumCPU()
	}
	if err := options.SetIntraOpNumThreads(numThreads); err != nil {
		return nil, fmt.Errorf("failed to set thread count: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSessionWithONNXData(data, inputNames, []string{outputName}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &onnxEngine{
		session:     session,
		inputNames:  inputNames,
		outputName:  outputName,
		tensorsInfo: info,
	}, nil
}

// Run executes the session on one sequence
func (e *onnxEngine) Run(ctx context.Context, in *EngineInput) (*EngineOutput, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil, fmt.Errorf("session is closed")
	}

	seqLen := int64(len(in.InputIDs))
	shape := ort.NewShape(1, seqLen)

	values := make([]ort.Value, 0, len(e.inputNames))
	defer func() {
		for _, v := range values {
			_ = v.Destroy()
		}
	}()

	for _, name := range e.inputNames {
		var data []int64
		switch name {
		case "input_ids":
			data = in.InputIDs
		case "attention_mask":
			data = in.AttentionMask
		default:
			data = in.TokenTypeIDs
		}
		// NewTensor keeps the slice as backing memory
		buf := make([]int64, len(data))
		copy(buf, data)
		tensor, err := ort.NewTensor(shape, buf)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s tensor: %w", name, err)
		}
		values = append(values, tensor)
	}

	// nil output lets the session allocate the dynamically shaped result
	outputs := []ort.Value{nil}
	if err := e.session.Run(values, outputs); err != nil {
		return nil, fmt.Errorf("ONNX inference failed: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			_ = outputs[0].Destroy()
		}
	}()

	tensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("output %s is not a float32 tensor", e.outputName)
	}

	raw := tensor.GetData()
	data := make([]float32, len(raw))
	copy(data, raw)

	return &EngineOutput{
		Shape: []int64(tensor.GetShape()),
		Data:  data,
	}, nil
}

func (e *onnxEngine) TensorsInfo() ModelTensorsInfo {
	return e.tensorsInfo
}

// Close releases ONNX resources
func (e *onnxEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		_ = e.session.Destroy()
		e.session = nil
	}
	return nil
}

// isONNXAvailable checks if ONNX runtime is available
func isONNXAvailable() bool {
	return findONNXLibrary()
}

// findONNXLibrary searches for and configures the ONNX runtime library
func findONNXLibrary() bool {
	libName := getExpectedLibName()

	for _, dir := range getONNXSearchPaths() {
		libPath := filepath.Join(dir, libName)
		if _, err := os.Stat(libPath); err == nil {
			ort.SetSharedLibraryPath(libPath)
			return true
		}
	}
	return false
}

// getONNXSearchPaths returns paths to search for ONNX runtime library
func getONNXSearchPaths() []string {
	var paths []string

	if val := os.Getenv("ONNXRUNTIME_LIB_DIR"); val != "" {
		paths = append(paths, val)
	}

	if libDir, err := getONNXLibDir(); err == nil {
		paths = append(paths, libDir)
	}

	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, cwd, filepath.Join(cwd, "lib"))
	}

	switch runtime.GOOS {
	case "windows":
		paths = append(paths,
			`C:\Program Files\onnxruntime\lib`,
			`C:\onnxruntime\lib`,
		)
		if pathEnv := os.Getenv("PATH"); pathEnv != "" {
			paths = append(paths, filepath.SplitList(pathEnv)...)
		}
	case "darwin":
		paths = append(paths,
			"/opt/homebrew/lib",
			"/opt/homebrew/opt/onnxruntime/lib",
			"/usr/local/lib",
		)
	default:
		paths = append(paths,
			"/usr/lib",
			"/usr/lib/x86_64-linux-gnu",
			"/usr/local/lib",
			"/opt/onnxruntime/lib",
		)
		if ldPath := os.Getenv("LD_LIBRARY_PATH"); ldPath != "" {
			paths = append(paths, filepath.SplitList(ldPath)...)
		}
	}

	return paths
}
