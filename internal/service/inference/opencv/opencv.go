// Package opencv runs models through the OpenCV DNN module.
package opencv

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"gocv.io/x/gocv"

	"livedetect/internal/service/inference"
)

// Model wraps a gocv.Net. The net is not safe for concurrent use.
type Model struct {
	mu  sync.Mutex
	net gocv.Net
}

// Load reads the network at path. opts.ConfigPath is passed through for
// frameworks that split the graph from its weights (TensorFlow, Caffe, Darknet).
func Load(path string, opts inference.Options) (inference.Model, error) {
	net := gocv.ReadNet(path, opts.ConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", path)
	}

	backend, target := gocv.NetBackendDefault, gocv.NetTargetCPU
	if opts.Target == inference.TargetAccelerated {
		backend, target = gocv.NetBackendCUDA, gocv.NetTargetCUDA
	}
	errBackend := net.SetPreferableBackend(backend)
	errTarget := net.SetPreferableTarget(target)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}
	// OpenCV always runs its own graph fusion; opts.Optimization has no knob here.

	return &Model{net: net}, nil
}

// Run sets input as the network blob and returns the default output.
func (m *Model) Run(ctx context.Context, input inference.Tensor) (inference.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return inference.Tensor{}, err
	}

	sizes := make([]int, len(input.Shape))
	for i, d := range input.Shape {
		sizes[i] = int(d)
	}
	blob, err := gocv.NewMatWithSizesFromBytes(sizes, gocv.MatTypeCV32F, float32Bytes(input.Data))
	if err != nil {
		return inference.Tensor{}, fmt.Errorf("failed to create input blob: %w", err)
	}
	defer blob.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.net.SetInput(blob, "")
	output := m.net.Forward("")
	defer output.Close()
	if output.Empty() {
		return inference.Tensor{}, fmt.Errorf("network produced no output")
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return inference.Tensor{}, fmt.Errorf("failed to read output: %w", err)
	}
	shape := make([]int64, 0, 4)
	for _, d := range output.Size() {
		shape = append(shape, int64(d))
	}
	return inference.Tensor{Shape: shape, Data: append([]float32(nil), data...)}, nil
}

func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net.Close()
}

func float32Bytes(data []float32) []byte {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*4)
}
