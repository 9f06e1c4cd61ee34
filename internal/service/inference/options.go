package inference

import "fmt"

// ExecutionTarget chooses where the graph runs.
type ExecutionTarget string

const (
	TargetCPU         ExecutionTarget = "cpu"
	TargetAccelerated ExecutionTarget = "accelerated"
)

// OptimizationLevel is how aggressively the runtime rewrites the graph.
type OptimizationLevel string

const (
	OptimizationNone  OptimizationLevel = "none"
	OptimizationBasic OptimizationLevel = "basic"
	OptimizationAll   OptimizationLevel = "all"
)

// Options are the model loading settings.
type Options struct {
	Target       ExecutionTarget
	Optimization OptimizationLevel
	ConfigPath   string // second file for runtimes that need one
}

// DefaultOptions matches the browser build: CPU with full graph optimization.
func DefaultOptions() Options {
	return Options{Target: TargetCPU, Optimization: OptimizationAll}
}

func ParseExecutionTarget(s string) (ExecutionTarget, error) {
	switch ExecutionTarget(s) {
	case TargetCPU, TargetAccelerated:
		return ExecutionTarget(s), nil
	}
	return "", fmt.Errorf("unknown execution target %q", s)
}

func ParseOptimizationLevel(s string) (OptimizationLevel, error) {
	switch OptimizationLevel(s) {
	case OptimizationNone, OptimizationBasic, OptimizationAll:
		return OptimizationLevel(s), nil
	}
	return "", fmt.Errorf("unknown optimization level %q", s)
}
