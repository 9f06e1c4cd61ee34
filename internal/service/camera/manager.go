package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"livedetect/internal/logger"
	"livedetect/internal/model"
)

var (
	// ErrDeviceAcquisition wraps any failure to open a camera (permission, busy, missing).
	ErrDeviceAcquisition = errors.New("camera acquisition failed")
	// ErrNoStream is returned by Snapshot when no camera is open.
	ErrNoStream = errors.New("no camera stream")
	// ErrClosed is returned once the manager has been disposed.
	ErrClosed = errors.New("camera manager closed")
)

// SessionStopper is whatever must be paused when the viewer page is hidden.
type SessionStopper interface {
	Deactivate()
}

// Manager owns the single active camera stream. All stream changes happen under
// mu, so callers never observe two live streams.
type Manager struct {
	device Device
	logger *logger.Logger

	mu         sync.Mutex
	facing     model.Facing
	stream     Stream
	hidden     bool
	closed     bool
	session    SessionStopper
	onMetadata func(width, height int)
}

func NewManager(device Device, logger *logger.Logger) *Manager {
	return &Manager{
		device: device,
		logger: logger,
		facing: model.FacingRear,
	}
}

// BindSession sets the session that TeardownOnHidden stops.
func (m *Manager) BindSession(s SessionStopper) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s
}

// OnMetadata registers a callback fired with the frame size whenever a new
// stream becomes available.
func (m *Manager) OnMetadata(fn func(width, height int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMetadata = fn
}

// Initialize opens a stream for facing, releasing any stream already held.
// On failure no stream is active.
func (m *Manager) Initialize(ctx context.Context, facing model.Facing) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.facing = facing
	m.releaseLocked()
	notify, err := m.acquireLocked(ctx)
	m.mu.Unlock()

	notify()
	return err
}

// SwitchFacing flips between front and rear: the held stream's tracks are
// stopped first, then the new facing is acquired.
func (m *Manager) SwitchFacing(ctx context.Context) (model.Facing, error) {
	m.mu.Lock()
	if m.closed {
		defer m.mu.Unlock()
		return m.facing, ErrClosed
	}
	m.facing = m.facing.Toggle()
	m.releaseLocked()
	notify, err := m.acquireLocked(ctx)
	facing := m.facing
	m.mu.Unlock()

	notify()
	return facing, err
}

// TeardownOnHidden stops the bound session. The stream stays allocated.
func (m *Manager) TeardownOnHidden() {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s != nil {
		s.Deactivate()
		m.logger.Info("👁️  Viewer hidden, live detection paused")
	}
}

// SetHidden is the visibility notifier entry point.
func (m *Manager) SetHidden(hidden bool) {
	m.mu.Lock()
	m.hidden = hidden
	m.mu.Unlock()
	if hidden {
		m.TeardownOnHidden()
	}
}

// Hidden reports the last visibility state.
func (m *Manager) Hidden() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hidden
}

// Close disposes the manager and stops every track.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.releaseLocked()
}

// Facing is the desired (and, if a stream is open, current) facing.
func (m *Manager) Facing() model.Facing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.facing
}

// Handle describes the open stream, or nil.
func (m *Manager) Handle() *model.CameraHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil
	}
	w, h := m.stream.Size()
	handle := &model.CameraHandle{Facing: m.facing, Width: w, Height: h}
	for _, t := range m.stream.Tracks() {
		handle.Tracks = append(handle.Tracks, model.TrackInfo{ID: t.ID(), Kind: t.Kind()})
	}
	return handle
}

// Snapshot reads the current frame of the open stream.
func (m *Manager) Snapshot() (image.Image, model.Facing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil, m.facing, ErrNoStream
	}
	img, err := m.stream.Read()
	if err != nil {
		return nil, m.facing, fmt.Errorf("failed to read frame: %w", err)
	}
	return img, m.facing, nil
}

// acquireLocked opens the stream for m.facing. The returned func reports the
// new frame size and must be called after mu is released: the listener takes
// the loop's iteration lock, and an iteration takes mu through Snapshot.
func (m *Manager) acquireLocked(ctx context.Context) (func(), error) {
	stream, err := m.device.Acquire(ctx, m.facing)
	if err != nil {
		m.logger.Error("Error accessing %s camera: %v", m.facing, err)
		return func() {}, fmt.Errorf("%w: %w", ErrDeviceAcquisition, err)
	}
	m.stream = stream
	w, h := stream.Size()
	m.logger.Info("📷 Camera %s opened (%dx%d)", m.facing, w, h)

	fn := m.onMetadata
	if fn == nil {
		return func() {}, nil
	}
	return func() { fn(w, h) }, nil
}

func (m *Manager) releaseLocked() {
	if m.stream == nil {
		return
	}
	for _, t := range m.stream.Tracks() {
		if err := t.Stop(); err != nil {
			m.logger.Warning("Error stopping track %s: %v", t.ID(), err)
		}
	}
	m.stream = nil
}
