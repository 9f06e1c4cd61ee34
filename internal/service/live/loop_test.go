package live

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livedetect/internal/dto"
	"livedetect/internal/logger"
	"livedetect/internal/model"
	"livedetect/internal/service/camera"
	"livedetect/internal/service/frame"
	"livedetect/internal/service/inference"
)

// fakeSource advances the mock clock by its latencies and tracks how many
// pipeline passes are in flight.
type fakeSource struct {
	clock     *clock.Mock
	latencies []time.Duration
	err       error
	calls     atomic.Int32
	inFlight  *atomic.Int32
	overlap   *atomic.Bool
}

func (s *fakeSource) Capture(ctx context.Context, surface *frame.Surface) error {
	n := int(s.calls.Add(1)) - 1
	if s.err != nil {
		return s.err
	}
	if s.inFlight != nil && s.inFlight.Add(1) > 1 {
		s.overlap.Store(true)
	}
	if s.clock != nil && n < len(s.latencies) {
		s.clock.Add(s.latencies[n])
	}
	return nil
}

type fakePre struct{}

func (fakePre) Preprocess(surface *frame.Surface) (inference.Tensor, error) {
	return inference.Tensor{Shape: []int64{1, 3, 1, 1}, Data: []float32{0.1, 0.2, 0.3}}, nil
}

type fakeModel struct {
	clock     *clock.Mock
	latencies []time.Duration
	err       error
	calls     atomic.Int32
}

func (m *fakeModel) Run(ctx context.Context, input inference.Tensor) (inference.Tensor, error) {
	n := int(m.calls.Add(1)) - 1
	if m.clock != nil && n < len(m.latencies) {
		m.clock.Add(m.latencies[n])
	}
	if m.err != nil {
		return inference.Tensor{}, m.err
	}
	return input, nil
}

func (m *fakeModel) Close() error { return nil }

type fakePost struct {
	clock      *clock.Mock
	latencies  []time.Duration
	detections []model.Detection
	calls      atomic.Int32
	inFlight   *atomic.Int32
}

func (p *fakePost) Postprocess(output inference.Tensor, elapsed time.Duration, surface *frame.Surface) ([]model.Detection, error) {
	n := int(p.calls.Add(1)) - 1
	if p.clock != nil && n < len(p.latencies) {
		p.clock.Add(p.latencies[n])
	}
	if p.inFlight != nil {
		p.inFlight.Add(-1)
	}
	return p.detections, nil
}

// stepRefresh releases one iteration per value sent on ch.
type stepRefresh struct{ ch chan struct{} }

func (r *stepRefresh) Wait(ctx context.Context) error {
	select {
	case <-r.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fastRefresh yields for a millisecond of real time.
type fastRefresh struct{}

func (fastRefresh) Wait(ctx context.Context) error {
	select {
	case <-time.After(time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type harness struct {
	loop    *Loop
	logDir  string
	service *inference.Service
	surface *frame.Surface
	samples chan model.TimingSample
}

func newHarness(t *testing.T, deps Deps) *harness {
	t.Helper()
	dir := t.TempDir()
	log, err := logger.NewQuiet(dir)
	require.NoError(t, err)
	t.Cleanup(log.Close)

	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	h := &harness{logDir: dir, samples: make(chan model.TimingSample, 64)}
	if deps.Infer == nil {
		h.service = inference.NewService(deps.Clock, log)
		deps.Infer = h.service
	}
	if deps.Pre == nil {
		deps.Pre = fakePre{}
	}
	if deps.Post == nil {
		deps.Post = &fakePost{}
	}
	if deps.Refresh == nil {
		deps.Refresh = fastRefresh{}
	}
	if deps.Surface == nil {
		deps.Surface = frame.NewSurface()
		deps.Surface.OnMetadata(16, 12)
	}
	deps.Logger = log
	h.surface = deps.Surface
	h.loop = NewLoop(deps)
	h.loop.OnSample(func(s model.TimingSample, _ []model.Detection) {
		select {
		case h.samples <- s:
		default:
		}
	})
	t.Cleanup(h.loop.Close)
	return h
}

func (h *harness) nextSample(t *testing.T) model.TimingSample {
	t.Helper()
	select {
	case s := <-h.samples:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a timing sample")
		return model.TimingSample{}
	}
}

func (h *harness) logContents(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(h.logDir, name))
	require.NoError(t, err)
	return string(data)
}

func waitDone(t *testing.T, l *Loop) {
	t.Helper()
	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop goroutine did not exit")
	}
}

func TestLoop_ToggleParity(t *testing.T) {
	h := newHarness(t, Deps{Source: &fakeSource{}})
	ctx := context.Background()

	for i := 1; i <= 6; i++ {
		active := h.loop.Toggle(ctx)
		assert.Equal(t, i%2 == 1, active, "toggle #%d", i)
		assert.Equal(t, active, h.loop.Active())
	}
	waitDone(t, h.loop)
	assert.False(t, h.loop.Active())
}

func TestLoop_ToggleStartsNewSession(t *testing.T) {
	h := newHarness(t, Deps{Source: &fakeSource{}})
	ctx := context.Background()

	require.True(t, h.loop.Toggle(ctx))
	first := h.loop.Session()
	require.False(t, h.loop.Toggle(ctx))
	assert.False(t, first.Active())

	require.True(t, h.loop.Toggle(ctx))
	second := h.loop.Session()
	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, second.Active())
	assert.False(t, first.Active(), "a stopped session stays stopped")
}

func TestLoop_TimingScenario(t *testing.T) {
	mock := clock.NewMock()
	refresh := &stepRefresh{ch: make(chan struct{})}
	source := &fakeSource{clock: mock, latencies: []time.Duration{10 * time.Millisecond, 12 * time.Millisecond, 9 * time.Millisecond}}
	post := &fakePost{clock: mock, latencies: []time.Duration{5 * time.Millisecond, 6 * time.Millisecond, 4 * time.Millisecond}}
	h := newHarness(t, Deps{Source: source, Post: post, Refresh: refresh, Clock: mock})
	h.service.SetModel("fake", &fakeModel{clock: mock, latencies: []time.Duration{40 * time.Millisecond, 38 * time.Millisecond, 41 * time.Millisecond}})

	require.True(t, h.loop.Toggle(context.Background()))

	want := []struct {
		inference time.Duration
		total     time.Duration
		fps       string
	}{
		{40 * time.Millisecond, 55 * time.Millisecond, "18.18"},
		{38 * time.Millisecond, 56 * time.Millisecond, "17.86"},
		{41 * time.Millisecond, 54 * time.Millisecond, "18.52"},
	}

	var prev *model.TimingSample
	for i, w := range want {
		s := h.nextSample(t)
		assert.Equal(t, i+1, s.Iteration)
		assert.Equal(t, w.inference, s.Inference)
		assert.Equal(t, w.total, s.Total)
		assert.Equal(t, w.fps, dto.NewTelemetry(s).FPS)
		if prev != nil {
			assert.False(t, prev.StartedAt.Add(prev.Total).After(s.StartedAt), "iteration %d started before %d ended", i+1, i)
		}
		prev = &s
		assert.Equal(t, s, *h.loop.Latest())

		if i < len(want)-1 {
			refresh.ch <- struct{}{}
		}
	}

	h.loop.Deactivate()
	waitDone(t, h.loop)
	assert.Equal(t, int32(3), source.calls.Load())
}

func TestLoop_IterationsNeverOverlap(t *testing.T) {
	var inFlight atomic.Int32
	var overlap atomic.Bool
	source := &fakeSource{inFlight: &inFlight, overlap: &overlap}
	post := &fakePost{inFlight: &inFlight}
	h := newHarness(t, Deps{Source: source, Post: post})
	h.service.SetModel("fake", &fakeModel{})
	ctx := context.Background()

	require.True(t, h.loop.Toggle(ctx))
	for i := 0; i < 5; i++ {
		// Restart right away; the new session must wait for the old one.
		h.loop.Toggle(ctx)
		h.loop.Toggle(ctx)
	}
	require.Eventually(t, func() bool { return post.calls.Load() >= 20 }, 2*time.Second, time.Millisecond)
	h.loop.Close()

	assert.False(t, overlap.Load())
}

func TestLoop_ModelNotLoadedKeepsRunning(t *testing.T) {
	source := &fakeSource{}
	h := newHarness(t, Deps{Source: source})

	require.True(t, h.loop.Toggle(context.Background()))
	for i := 0; i < 3; i++ {
		s := h.nextSample(t)
		assert.Zero(t, s.Inference)
	}

	assert.True(t, h.loop.Active())
	assert.Contains(t, h.logContents(t, logger.WarningFile), "Model not loaded")
}

func TestLoop_ModelLoadedLate(t *testing.T) {
	post := &fakePost{}
	h := newHarness(t, Deps{Source: &fakeSource{}, Post: post})

	require.True(t, h.loop.Toggle(context.Background()))
	h.nextSample(t)
	assert.Zero(t, post.calls.Load())

	h.service.SetModel("fake", &fakeModel{})
	require.Eventually(t, func() bool { return post.calls.Load() > 0 }, 2*time.Second, time.Millisecond)
	assert.True(t, h.loop.Active())
}

func TestLoop_InferenceErrorKeepsRunning(t *testing.T) {
	h := newHarness(t, Deps{Source: &fakeSource{}})
	h.service.SetModel("fake", &fakeModel{err: errors.New("bad frame")})

	require.True(t, h.loop.Toggle(context.Background()))
	h.nextSample(t)
	h.nextSample(t)

	assert.True(t, h.loop.Active())
	assert.Contains(t, h.logContents(t, logger.ErrorFile), "Inference failed")
}

func TestLoop_CaptureFailureEndsSession(t *testing.T) {
	source := &fakeSource{err: frame.ErrCaptureUnavailable}
	h := newHarness(t, Deps{Source: source})

	require.True(t, h.loop.Toggle(context.Background()))
	waitDone(t, h.loop)

	assert.False(t, h.loop.Active())
	assert.Equal(t, int32(1), source.calls.Load())
	assert.Nil(t, h.loop.Latest())
	assert.Contains(t, h.logContents(t, logger.ErrorFile), "Capture failed")

	// The next toggle starts over.
	source.err = nil
	require.True(t, h.loop.Toggle(context.Background()))
	h.nextSample(t)
}

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestLoop_ResetClearsSurfaceAndStops(t *testing.T) {
	red := color.RGBA{R: 200, A: 255}
	surface := frame.NewSurface()
	surface.OnMetadata(8, 6)
	// The overlay was laid out wider than the camera's natural size.
	surface.Resize(12, 6)
	surface.DrawFrame(solidImage(12, 6, red), false)
	h := newHarness(t, Deps{Source: &fakeSource{}, Surface: surface})

	require.True(t, h.loop.Toggle(context.Background()))
	h.nextSample(t)

	h.loop.Reset()
	assert.False(t, h.loop.Active())
	assert.Nil(t, h.loop.Latest())

	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			require.Equal(t, color.RGBA{}, surface.At(x, y), "pixel %d,%d", x, y)
		}
	}
	assert.Equal(t, red, surface.At(10, 3), "outside the natural size is left alone")
}

func TestLoop_ResetWhileInactive(t *testing.T) {
	surface := frame.NewSurface()
	surface.OnMetadata(4, 4)
	surface.DrawFrame(solidImage(4, 4, color.RGBA{G: 255, A: 255}), false)
	h := newHarness(t, Deps{Source: &fakeSource{}, Surface: surface})

	h.loop.Reset()
	assert.False(t, h.loop.Active())
	assert.Equal(t, color.RGBA{}, surface.At(3, 3))
}

func TestLoop_Photo(t *testing.T) {
	want := []model.Detection{{Label: "dog", Confidence: 0.8, Box: image.Rect(1, 1, 5, 5)}}
	post := &fakePost{detections: want}
	source := &fakeSource{}
	h := newHarness(t, Deps{Source: source, Post: post})
	h.service.SetModel("fake", &fakeModel{})

	detections, img, err := h.loop.Photo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, detections)
	assert.Equal(t, image.Pt(16, 12), img.Rect.Size())
	assert.Equal(t, int32(1), source.calls.Load())
	assert.False(t, h.loop.Active(), "a photo does not start a session")
}

func TestLoop_PhotoWithoutModel(t *testing.T) {
	h := newHarness(t, Deps{Source: &fakeSource{}})

	_, _, err := h.loop.Photo(context.Background())
	assert.ErrorIs(t, err, inference.ErrModelNotLoaded)
}

// staticDevice hands out streams that always read a small gray frame.
type staticDevice struct {
	mu    sync.Mutex
	stops int
}

func (d *staticDevice) Acquire(ctx context.Context, facing model.Facing) (camera.Stream, error) {
	return &staticStream{device: d}, nil
}

type staticStream struct{ device *staticDevice }

func (s *staticStream) Tracks() []camera.Track { return []camera.Track{staticTrack{s.device}} }
func (s *staticStream) Size() (int, int)       { return 16, 12 }
func (s *staticStream) Read() (image.Image, error) {
	return solidImage(16, 12, color.RGBA{R: 90, G: 90, B: 90, A: 255}), nil
}

type staticTrack struct{ device *staticDevice }

func (t staticTrack) ID() string   { return "video-0" }
func (t staticTrack) Kind() string { return "video" }
func (t staticTrack) Stop() error {
	t.device.mu.Lock()
	t.device.stops++
	t.device.mu.Unlock()
	return nil
}

func TestLoop_HiddenPageStopsLoop(t *testing.T) {
	log, err := logger.NewQuiet(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(log.Close)

	surface := frame.NewSurface()
	manager := camera.NewManager(&staticDevice{}, log)
	h := newHarness(t, Deps{Source: frame.NewCapturer(manager), Surface: surface})
	manager.OnMetadata(h.loop.OnMetadata)
	require.NoError(t, manager.Initialize(context.Background(), model.FacingRear))
	t.Cleanup(manager.Close)
	manager.BindSession(h.loop)

	require.True(t, h.loop.Toggle(context.Background()))
	h.nextSample(t)

	manager.SetHidden(true)
	assert.False(t, h.loop.Active(), "hidden page stops the loop without a toggle")
	waitDone(t, h.loop)
	assert.NotNil(t, manager.Handle(), "the stream stays allocated while hidden")
}

func newCameraHarness(t *testing.T) (*harness, *camera.Manager) {
	t.Helper()
	log, err := logger.NewQuiet(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(log.Close)

	surface := frame.NewSurface()
	manager := camera.NewManager(&staticDevice{}, log)
	t.Cleanup(manager.Close)
	h := newHarness(t, Deps{Source: frame.NewCapturer(manager), Surface: surface})
	manager.OnMetadata(h.loop.OnMetadata)
	return h, manager
}

func TestLoop_LayoutSurvivesCameraSwitch(t *testing.T) {
	h, manager := newCameraHarness(t)
	ctx := context.Background()

	require.NoError(t, manager.Initialize(ctx, model.FacingRear))
	assert.Equal(t, image.Pt(16, 12), h.surface.Size(), "native size until a viewer reports its layout")

	h.loop.Resize(48, 36)
	assert.Equal(t, image.Pt(48, 36), h.surface.Size())
	assert.Equal(t, image.Pt(48, 36), h.surface.NaturalSize())

	_, err := manager.SwitchFacing(ctx)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(48, 36), h.surface.Size())
	assert.Equal(t, image.Pt(48, 36), h.surface.NaturalSize())

	// Later layout changes move the overlay but not the natural size.
	h.loop.Resize(60, 40)
	assert.Equal(t, image.Pt(60, 40), h.surface.Size())
	assert.Equal(t, image.Pt(48, 36), h.surface.NaturalSize())
}

func TestLoop_ResetClearsRenderedAreaAfterSwitch(t *testing.T) {
	h, manager := newCameraHarness(t)
	ctx := context.Background()

	require.NoError(t, manager.Initialize(ctx, model.FacingRear))
	h.loop.Resize(48, 36)
	_, err := manager.SwitchFacing(ctx)
	require.NoError(t, err)

	require.NoError(t, frame.NewCapturer(manager).Capture(ctx, h.surface))
	require.Equal(t, color.RGBA{R: 90, G: 90, B: 90, A: 255}, h.surface.At(40, 30))

	h.loop.Reset()
	for _, p := range []image.Point{{0, 0}, {40, 30}, {47, 35}} {
		assert.Equal(t, color.RGBA{}, h.surface.At(p.X, p.Y), "pixel %v", p)
	}
}

// gateSource blocks inside Capture until released.
type gateSource struct {
	entered chan struct{}
	release chan struct{}
}

func (s *gateSource) Capture(ctx context.Context, surface *frame.Surface) error {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	return nil
}

type sizePost struct{ sizes chan image.Point }

func (p *sizePost) Postprocess(output inference.Tensor, elapsed time.Duration, surface *frame.Surface) ([]model.Detection, error) {
	select {
	case p.sizes <- surface.Size():
	default:
	}
	return nil, nil
}

func TestLoop_MetadataWaitsForIteration(t *testing.T) {
	source := &gateSource{entered: make(chan struct{}, 1), release: make(chan struct{})}
	post := &sizePost{sizes: make(chan image.Point, 1)}
	refresh := &stepRefresh{ch: make(chan struct{})}
	h := newHarness(t, Deps{Source: source, Post: post, Refresh: refresh})
	h.service.SetModel("fake", &fakeModel{})

	require.True(t, h.loop.Toggle(context.Background()))
	<-source.entered

	applied := make(chan struct{})
	go func() {
		h.loop.OnMetadata(30, 20)
		close(applied)
	}()

	select {
	case <-applied:
		t.Fatal("metadata resized the surface during an iteration")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, image.Pt(16, 12), h.surface.Size())

	close(source.release)
	assert.Equal(t, image.Pt(16, 12), <-post.sizes, "postprocess sees the buffer the frame was captured on")

	select {
	case <-applied:
	case <-time.After(2 * time.Second):
		t.Fatal("metadata was never applied")
	}
	assert.Equal(t, image.Pt(30, 20), h.surface.Size())
	assert.Equal(t, image.Pt(30, 20), h.surface.NaturalSize())
}
