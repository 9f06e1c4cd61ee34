package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"sync"

	gorilla "github.com/gorilla/websocket"

	"livedetect/internal/dto"
	"livedetect/internal/logger"
	"livedetect/internal/model"
	"livedetect/internal/service/camera"
	"livedetect/internal/service/inference"
	"livedetect/internal/service/live"
	"livedetect/internal/service/storage"
	"livedetect/internal/service/websocket"
)

// Encoder turns a rendered surface into an image file.
type Encoder interface {
	Encode(img *image.RGBA) ([]byte, error)
}

// Manager is what the handlers talk to. It ties the live loop to the camera,
// the viewers and photo storage.
type Manager struct {
	loop             *live.Loop
	cameraService    *camera.Manager
	inferenceService *inference.Service
	refresh          *live.DisplayRefresh
	websocketService *websocket.HubService
	bufferService    *storage.BufferService
	encoder          Encoder
	logger           *logger.Logger

	// toggleMu makes the camera check and the toggle one step.
	toggleMu sync.Mutex
}

// Components are the services a Manager coordinates.
type Components struct {
	Loop      *live.Loop
	Camera    *camera.Manager
	Inference *inference.Service
	Refresh   *live.DisplayRefresh
	Hub       *websocket.HubService
	Buffer    *storage.BufferService
	Encoder   Encoder
}

func NewManager(c Components, logger *logger.Logger) *Manager {
	m := &Manager{
		loop:             c.Loop,
		cameraService:    c.Camera,
		inferenceService: c.Inference,
		refresh:          c.Refresh,
		websocketService: c.Hub,
		bufferService:    c.Buffer,
		encoder:          c.Encoder,
		logger:           logger,
	}

	m.cameraService.BindSession(m.loop)
	m.loop.OnSample(m.publish)
	m.websocketService.OnChange(m.viewersChanged)

	m.logger.Info("🎬 Manager started")
	return m
}

// ToggleLive starts or stops live detection. Starting opens the camera first
// if no stream is held.
func (m *Manager) ToggleLive(ctx context.Context) (bool, error) {
	m.toggleMu.Lock()
	defer m.toggleMu.Unlock()
	if !m.loop.Active() {
		if err := m.ensureCamera(ctx); err != nil {
			return false, err
		}
	}
	return m.loop.Toggle(ctx), nil
}

// OpenCamera opens the stream for facing unless one is already held.
func (m *Manager) OpenCamera(ctx context.Context, facing model.Facing) error {
	if m.cameraService.Handle() != nil {
		return nil
	}
	return m.cameraService.Initialize(ctx, facing)
}

func (m *Manager) ensureCamera(ctx context.Context) error {
	return m.OpenCamera(ctx, m.cameraService.Facing())
}

func (m *Manager) SwitchCamera(ctx context.Context) (model.Facing, error) {
	return m.cameraService.SwitchFacing(ctx)
}

// Reset clears the overlay, stops the loop and pushes the empty overlay to the
// viewers.
func (m *Manager) Reset() {
	m.loop.Reset()
	m.broadcastFrame(nil, nil)
	m.logger.Info("🧹 Overlay reset")
}

// TakePhoto runs one capture and inference pass and stores the result.
func (m *Manager) TakePhoto(ctx context.Context) (*dto.PhotoResult, error) {
	if err := m.ensureCamera(ctx); err != nil {
		return nil, err
	}

	detections, img, err := m.loop.Photo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to take photo: %w", err)
	}
	data, err := m.encoder.Encode(img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode photo: %w", err)
	}

	results := dto.FromDetections(detections)
	name, err := m.bufferService.AddPhoto(data, m.cameraService.Facing(), results)
	if err != nil {
		return nil, err
	}
	m.logger.Info("📸 Photo taken with %d detection(s): %s", len(results), name)

	return &dto.PhotoResult{
		Name:       name,
		Image:      base64.StdEncoding.EncodeToString(data),
		Detections: results,
	}, nil
}

// HandleViewerMessage applies a message sent by a viewer. Visibility is kept
// per viewer; the page counts as hidden once no viewer is visible.
func (m *Manager) HandleViewerMessage(viewer *gorilla.Conn, msg dto.ViewerMessage) {
	switch msg.Type {
	case dto.MessageRefresh:
		m.refresh.Signal()
	case dto.MessageVisibility:
		m.websocketService.SetHidden(viewer, msg.Hidden)
	case dto.MessageLayout:
		if msg.Width > 0 && msg.Height > 0 {
			m.loop.Resize(msg.Width, msg.Height)
		}
	default:
		m.logger.Warning("Unknown viewer message type %q", msg.Type)
	}
}

func (m *Manager) Status() dto.Status {
	status := dto.Status{
		Type:        dto.MessageStatus,
		Active:      m.loop.Active(),
		Facing:      string(m.cameraService.Facing()),
		CameraOpen:  m.cameraService.Handle() != nil,
		Hidden:      m.cameraService.Hidden(),
		ModelLoaded: m.inferenceService.Loaded(),
		ModelSource: m.inferenceService.Source(),
		Viewers:     m.websocketService.GetClientCount(),
	}
	if s := m.loop.Session(); s != nil {
		status.Session = s.ID
	}
	if sample := m.loop.Latest(); sample != nil {
		t := dto.NewTelemetry(*sample)
		status.Telemetry = &t
	}
	return status
}

func (m *Manager) GetWebsocketService() *websocket.HubService {
	return m.websocketService
}

func (m *Manager) GetBufferService() *storage.BufferService {
	return m.bufferService
}

// Stop ends the session and releases the camera and the model.
func (m *Manager) Stop() {
	m.loop.Close()
	m.cameraService.Close()
	m.inferenceService.Close()
	m.logger.Info("🛑 Live detection shut down")
}

// publish runs on the loop goroutine after every iteration.
func (m *Manager) publish(sample model.TimingSample, detections []model.Detection) {
	t := dto.NewTelemetry(sample)
	m.broadcastFrame(&t, detections)
}

func (m *Manager) broadcastFrame(t *dto.Telemetry, detections []model.Detection) {
	if m.websocketService.GetClientCount() == 0 {
		return
	}

	img := m.loop.Surface.Snapshot()
	msg := dto.FrameMessage{
		Type:       dto.MessageFrame,
		Telemetry:  t,
		Detections: dto.FromDetections(detections),
	}
	if !img.Rect.Empty() {
		data, err := m.encoder.Encode(img)
		if err != nil {
			m.logger.Error("Error encoding overlay: %v", err)
			return
		}
		msg.Image = base64.StdEncoding.EncodeToString(data)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		m.logger.Error("Error marshalling frame: %v", err)
		return
	}
	m.websocketService.Broadcast(payload)
}

// viewersChanged treats "no visible viewer left" as the page being hidden.
func (m *Manager) viewersChanged(visible int) {
	if visible == 0 {
		m.cameraService.SetHidden(true)
		return
	}
	if m.cameraService.Hidden() {
		m.cameraService.SetHidden(false)
	}
}
