package live

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"livedetect/internal/logger"
	"livedetect/internal/model"
	"livedetect/internal/service/frame"
	"livedetect/internal/service/inference"
)

// FrameSource puts the current camera frame on the surface.
type FrameSource interface {
	Capture(ctx context.Context, surface *frame.Surface) error
}

type PreProcessor interface {
	Preprocess(surface *frame.Surface) (inference.Tensor, error)
}

type Inferencer interface {
	Run(ctx context.Context, input inference.Tensor) (inference.Tensor, time.Duration, error)
}

type PostProcessor interface {
	Postprocess(output inference.Tensor, elapsed time.Duration, surface *frame.Surface) ([]model.Detection, error)
}

// SampleFunc receives every published timing sample together with the
// detections drawn in that iteration. It runs on the loop goroutine while the
// surface is held, so it may read the surface safely.
type SampleFunc func(sample model.TimingSample, detections []model.Detection)

// Deps are the collaborators of a Loop.
type Deps struct {
	Source  FrameSource
	Pre     PreProcessor
	Infer   Inferencer
	Post    PostProcessor
	Refresh RefreshSignal
	Surface *frame.Surface
	Clock   clock.Clock
	Logger  *logger.Logger
}

// Loop runs capture, preprocess, inference and postprocess repeatedly, one
// iteration per display refresh, while its session is active.
type Loop struct {
	Deps

	mu      sync.Mutex
	session *model.DetectionSession
	stop    context.CancelFunc
	done    chan struct{}

	// iterMu is held for a whole iteration and by every other surface writer.
	iterMu sync.Mutex
	// layout is the last size reported by a viewer. A pending natural size
	// is one that came from the stream's native resolution because no layout
	// was known yet. Both are guarded by iterMu.
	layout         image.Point
	pendingNatural bool

	latest   atomic.Pointer[model.TimingSample]
	onSample atomic.Pointer[SampleFunc]
}

func NewLoop(deps Deps) *Loop {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	done := make(chan struct{})
	close(done)
	return &Loop{Deps: deps, done: done}
}

// OnSample registers the sink for published samples.
func (l *Loop) OnSample(fn SampleFunc) {
	l.onSample.Store(&fn)
}

// Toggle stops the active session, or starts a new one. It returns whether a
// session is active afterwards. A stopped session finishes its in-flight
// iteration; a new session does not begin until the old one has exited.
func (l *Loop) Toggle(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.session != nil && l.session.Active() {
		l.deactivateLocked()
		return false
	}

	sess := model.NewDetectionSession(l.Clock.Now())
	base := context.WithoutCancel(ctx)
	waitCtx, stop := context.WithCancel(base)
	prev, done := l.done, make(chan struct{})
	l.session, l.stop, l.done = sess, stop, done

	l.Logger.Info("▶️  Live detection started (session %s)", sess.ID)
	go l.run(base, waitCtx, sess, prev, done)
	return true
}

// Deactivate stops the active session, if any.
func (l *Loop) Deactivate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deactivateLocked()
}

func (l *Loop) deactivateLocked() {
	if l.session == nil {
		return
	}
	if l.session.Deactivate() {
		l.Logger.Info("⏹️  Live detection stopped (session %s)", l.session.ID)
	}
	// Only the refresh wait is interrupted; an iteration in flight completes.
	l.stop()
}

func (l *Loop) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session != nil && l.session.Active()
}

// Session is the most recent session, active or not.
func (l *Loop) Session() *model.DetectionSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// Done is closed once the goroutine of the most recent session has exited.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Latest is the last published timing sample, or nil.
func (l *Loop) Latest() *model.TimingSample {
	return l.latest.Load()
}

// Reset clears the surface over the natural camera size and forces the session
// inactive.
func (l *Loop) Reset() {
	l.Deactivate()

	l.iterMu.Lock()
	defer l.iterMu.Unlock()
	l.Surface.Clear()
	l.latest.Store(nil)
}

// Resize follows a viewer layout change. It waits for the in-flight
// iteration so a frame is never resized halfway through.
func (l *Loop) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	l.iterMu.Lock()
	defer l.iterMu.Unlock()
	l.layout = image.Pt(width, height)
	if l.pendingNatural {
		l.pendingNatural = false
		l.Surface.OnMetadata(width, height)
		return
	}
	l.Surface.Resize(width, height)
}

// OnMetadata re-derives the surface when a camera stream is acquired. The
// rendered size is the viewer's layout; the stream's native size stands in
// until a viewer has reported one.
func (l *Loop) OnMetadata(width, height int) {
	l.iterMu.Lock()
	defer l.iterMu.Unlock()
	if l.layout.X > 0 && l.layout.Y > 0 {
		l.pendingNatural = false
		l.Surface.OnMetadata(l.layout.X, l.layout.Y)
		return
	}
	l.pendingNatural = true
	l.Surface.OnMetadata(width, height)
}

// Photo runs a single capture, inference and render cycle outside of any
// session. It returns the detections and a copy of the rendered surface.
func (l *Loop) Photo(ctx context.Context) ([]model.Detection, *image.RGBA, error) {
	l.iterMu.Lock()
	defer l.iterMu.Unlock()

	if err := l.Source.Capture(ctx, l.Surface); err != nil {
		return nil, nil, err
	}
	input, err := l.Pre.Preprocess(l.Surface)
	if err != nil {
		return nil, nil, err
	}
	out, elapsed, err := l.Infer.Run(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	detections, err := l.Post.Postprocess(out, elapsed, l.Surface)
	if err != nil {
		return nil, nil, err
	}
	return detections, l.Surface.Snapshot(), nil
}

// Close stops the session and waits for its goroutine.
func (l *Loop) Close() {
	l.Deactivate()
	<-l.Done()
}

func (l *Loop) run(ctx, waitCtx context.Context, sess *model.DetectionSession, prev <-chan struct{}, done chan struct{}) {
	defer close(done)

	select {
	case <-prev:
	case <-waitCtx.Done():
		return
	}

	for iteration := 1; sess.Active(); iteration++ {
		if !l.iterate(ctx, sess, iteration) {
			l.mu.Lock()
			if sess.Deactivate() {
				l.Logger.Warning("⏹️  Live detection aborted (session %s)", sess.ID)
			}
			l.mu.Unlock()
			return
		}
		if err := l.Refresh.Wait(waitCtx); err != nil {
			return
		}
	}
}

// iterate runs one pipeline pass. It returns false when the session must end.
func (l *Loop) iterate(ctx context.Context, sess *model.DetectionSession, iteration int) bool {
	l.iterMu.Lock()
	defer l.iterMu.Unlock()
	if !sess.Active() {
		// Stopped while waiting for the surface.
		return true
	}

	start := l.Clock.Now()
	if err := l.Source.Capture(ctx, l.Surface); err != nil {
		l.Logger.Error("Capture failed in session %s: %v", sess.ID, err)
		return false
	}

	sample := model.TimingSample{SessionID: sess.ID, Iteration: iteration, StartedAt: start}
	var detections []model.Detection

	input, err := l.Pre.Preprocess(l.Surface)
	if err != nil {
		l.Logger.Error("Preprocessing failed in session %s: %v", sess.ID, err)
	} else {
		detections, sample.Inference = l.runModel(ctx, sess, input)
	}

	sample.Total = l.Clock.Since(start)
	l.latest.Store(&sample)
	if fn := l.onSample.Load(); fn != nil {
		(*fn)(sample, detections)
	}
	return true
}

func (l *Loop) runModel(ctx context.Context, sess *model.DetectionSession, input inference.Tensor) ([]model.Detection, time.Duration) {
	out, elapsed, err := l.Infer.Run(ctx, input)
	switch {
	case errors.Is(err, inference.ErrModelNotLoaded):
		l.Logger.Warning("Model not loaded yet, skipping frame (session %s)", sess.ID)
		return nil, 0
	case err != nil:
		l.Logger.Error("Inference failed in session %s: %v", sess.ID, err)
		return nil, elapsed
	}

	detections, err := l.Post.Postprocess(out, elapsed, l.Surface)
	if err != nil {
		l.Logger.Error("Postprocessing failed in session %s: %v", sess.ID, err)
	}
	return detections, elapsed
}
