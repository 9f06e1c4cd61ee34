// Package onnx runs models through the ONNX Runtime shared library.
package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"livedetect/internal/service/inference"
)

var (
	initOnce sync.Once
	initErr  error
)

// Initialize loads the ONNX Runtime shared library. libraryPath may be empty to
// use the platform default. Safe to call more than once.
func Initialize(libraryPath string) error {
	initOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		initErr = ort.InitializeEnvironment()
	})
	return initErr
}

// Shutdown releases the runtime environment.
func Shutdown() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// Model is a single-input single-output ONNX session.
type Model struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	input   string
	output  string
}

// Loader returns an inference.Loader using the given shared library.
func Loader(libraryPath string) inference.Loader {
	return func(path string, opts inference.Options) (inference.Model, error) {
		if err := Initialize(libraryPath); err != nil {
			return nil, fmt.Errorf("failed to initialize onnxruntime: %w", err)
		}
		m, err := Load(path, opts)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// Load opens the graph at path, binding its first input and first output.
func Load(path string, opts inference.Options) (*Model, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("graph has %d inputs and %d outputs", len(inputs), len(outputs))
	}

	options, err := sessionOptions(opts)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(path,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &Model{
		session: session,
		input:   inputs[0].Name,
		output:  outputs[0].Name,
	}, nil
}

func sessionOptions(opts inference.Options) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}

	var level ort.GraphOptimizationLevel
	switch opts.Optimization {
	case inference.OptimizationNone:
		level = ort.GraphOptimizationLevelDisableAll
	case inference.OptimizationBasic:
		level = ort.GraphOptimizationLevelEnableBasic
	default:
		level = ort.GraphOptimizationLevelEnableAll
	}
	if err := options.SetGraphOptimizationLevel(level); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("failed to set optimization level: %w", err)
	}

	if opts.Target == inference.TargetAccelerated {
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			options.Destroy()
			return nil, fmt.Errorf("failed to create CUDA options: %w", err)
		}
		defer cuda.Destroy()
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			options.Destroy()
			return nil, fmt.Errorf("failed to enable CUDA: %w", err)
		}
	}
	return options, nil
}

// Run executes the graph once.
func (m *Model) Run(ctx context.Context, input inference.Tensor) (inference.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return inference.Tensor{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	in, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return inference.Tensor{}, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer in.Destroy()

	outputs := []ort.Value{nil}
	if err := m.session.Run([]ort.Value{in}, outputs); err != nil {
		return inference.Tensor{}, err
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return inference.Tensor{}, fmt.Errorf("output %s is not a float32 tensor", m.output)
	}
	data := make([]float32, len(out.GetData()))
	copy(data, out.GetData())
	shape := out.GetShape()

	return inference.Tensor{Shape: append([]int64(nil), shape...), Data: data}, nil
}

func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}
