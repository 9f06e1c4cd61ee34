package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"livedetect/internal/logger"
)

// ErrModelNotLoaded is returned by Run when no model has been loaded yet (or the
// load failed). The live loop treats it as transient.
var ErrModelNotLoaded = errors.New("model is not loaded")

// InferenceError wraps any failure of the underlying runtime during Run.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("error during model inference: %v", e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// LoadError is returned when a model cannot be loaded from its source.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load model %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Tensor is a dense float32 tensor in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Elements returns the element count implied by Shape.
func (t Tensor) Elements() int64 {
	if len(t.Shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Model is a loaded, ready to run graph. Implementations feed the input to the
// first graph input and return the first graph output.
type Model interface {
	Run(ctx context.Context, input Tensor) (Tensor, error)
	Close() error
}

// Loader loads a model from a local file.
type Loader func(path string, opts Options) (Model, error)

// Service owns the currently loaded model and times every run.
type Service struct {
	mu     sync.RWMutex
	model  Model
	source string
	clock  clock.Clock
	logger *logger.Logger
}

func NewService(clk clock.Clock, logger *logger.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	return &Service{clock: clk, logger: logger}
}

// Load resolves source (downloading it into cacheDir if it is a URL), loads it
// with loader and swaps it in. The previous model, if any, is closed.
func (s *Service) Load(ctx context.Context, source, cacheDir string, opts Options, loader Loader) error {
	path, err := Fetch(ctx, source, cacheDir)
	if err != nil {
		return &LoadError{Source: source, Err: err}
	}
	m, err := loader(path, opts)
	if err != nil {
		return &LoadError{Source: source, Err: err}
	}
	s.SetModel(source, m)
	s.logger.Info("🤖 Model loaded from %s (target=%s, optimization=%s)", source, opts.Target, opts.Optimization)
	return nil
}

// LoadAsync runs Load in the background. Until it finishes Run reports
// ErrModelNotLoaded. The returned channel yields the load result.
func (s *Service) LoadAsync(ctx context.Context, source, cacheDir string, opts Options, loader Loader) <-chan error {
	done := make(chan error, 1)
	go func() {
		err := s.Load(ctx, source, cacheDir, opts, loader)
		if err != nil {
			s.logger.Error("%v", err)
		}
		done <- err
	}()
	return done
}

// SetModel installs m as the active model.
func (s *Service) SetModel(source string, m Model) {
	s.mu.Lock()
	old := s.model
	s.model, s.source = m, source
	s.mu.Unlock()
	if old != nil && old != m {
		old.Close()
	}
}

// Loaded reports whether a model is ready.
func (s *Service) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model != nil
}

// Source is where the active model came from.
func (s *Service) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// Run feeds input to the model and returns the output and how long the model
// took. Fails with ErrModelNotLoaded or an *InferenceError.
func (s *Service) Run(ctx context.Context, input Tensor) (Tensor, time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.model == nil {
		return Tensor{}, 0, ErrModelNotLoaded
	}

	start := s.clock.Now()
	out, err := s.model.Run(ctx, input)
	elapsed := s.clock.Since(start)
	if err != nil {
		return Tensor{}, elapsed, &InferenceError{Err: err}
	}
	return out, elapsed, nil
}

// Close unloads and closes the active model.
func (s *Service) Close() {
	s.mu.Lock()
	m := s.model
	s.model, s.source = nil, ""
	s.mu.Unlock()
	if m != nil {
		m.Close()
	}
}
