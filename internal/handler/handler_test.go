package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livedetect/internal/config"
	"livedetect/internal/dto"
	"livedetect/internal/logger"
	"livedetect/internal/model"
	"livedetect/internal/repository/sqlite"
	"livedetect/internal/service/camera"
	"livedetect/internal/service/inference"
	hub "livedetect/internal/service/websocket"
)

type fakeController struct {
	mu       sync.Mutex
	active   bool
	facing   model.Facing
	resets   int
	err      error
	messages []dto.ViewerMessage
	hub      *hub.HubService
}

func (c *fakeController) ToggleLive(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	c.active = !c.active
	return c.active, nil
}

func (c *fakeController) SwitchCamera(ctx context.Context) (model.Facing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	c.facing = c.facing.Toggle()
	return c.facing, nil
}

func (c *fakeController) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
	c.active = false
}

func (c *fakeController) TakePhoto(ctx context.Context) (*dto.PhotoResult, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &dto.PhotoResult{Name: "p.jpg", Detections: []dto.DetectionResult{{Label: "cat"}}}, nil
}

func (c *fakeController) Status() dto.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return dto.Status{Active: c.active, Facing: string(c.facing)}
}

func (c *fakeController) HandleViewerMessage(viewer *websocket.Conn, msg dto.ViewerMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

func (c *fakeController) received() []dto.ViewerMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]dto.ViewerMessage(nil), c.messages...)
}

func (c *fakeController) GetWebsocketService() *hub.HubService { return c.hub }

func newLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewQuiet(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(log.Close)
	return log
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) dto.Status {
	t.Helper()
	var status dto.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	return status
}

func TestToggleLiveHandler(t *testing.T) {
	ctrl := &fakeController{facing: model.FacingRear}
	h := ToggleLiveHandler(ctrl, newLogger(t))

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/api/live/toggle", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeStatus(t, rec).Active)

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/api/live/toggle", nil))
	assert.False(t, decodeStatus(t, rec).Active)

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/live/toggle", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCommandErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{inference.ErrModelNotLoaded, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: denied", camera.ErrDeviceAcquisition), http.StatusServiceUnavailable},
		{&inference.InferenceError{Err: errors.New("boom")}, http.StatusInternalServerError},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		ctrl := &fakeController{err: tt.err}
		rec := httptest.NewRecorder()
		TakePhotoHandler(ctrl, newLogger(t))(rec, httptest.NewRequest(http.MethodPost, "/api/photo", nil))
		assert.Equal(t, tt.want, rec.Code, "error %v", tt.err)
	}
}

func TestSwitchResetAndStatus(t *testing.T) {
	ctrl := &fakeController{facing: model.FacingRear, active: true}
	log := newLogger(t)

	rec := httptest.NewRecorder()
	SwitchCameraHandler(ctrl, log)(rec, httptest.NewRequest(http.MethodPost, "/api/camera/switch", nil))
	assert.Equal(t, "front", decodeStatus(t, rec).Facing)

	rec = httptest.NewRecorder()
	ResetHandler(ctrl, log)(rec, httptest.NewRequest(http.MethodPost, "/api/reset", nil))
	assert.False(t, decodeStatus(t, rec).Active)
	assert.Equal(t, 1, ctrl.resets)

	rec = httptest.NewRecorder()
	StatusHandler(ctrl, log)(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestTakePhotoHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	TakePhotoHandler(&fakeController{}, newLogger(t))(rec, httptest.NewRequest(http.MethodPost, "/api/photo", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var result dto.PhotoResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "p.jpg", result.Name)
	assert.Equal(t, "cat", result.Detections[0].Label)
}

func TestViewWebsocketHandler_ForwardsViewerMessages(t *testing.T) {
	log := newLogger(t)
	ctrl := &fakeController{hub: hub.NewHubService(log)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.hub.Run(ctx)

	srv := httptest.NewServer(ViewWebsocketHandler(ctrl, log))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteJSON(dto.ViewerMessage{Type: dto.MessageRefresh}))
	require.NoError(t, conn.WriteJSON(dto.ViewerMessage{Type: dto.MessageLayout, Width: 320, Height: 240}))

	require.Eventually(t, func() bool { return len(ctrl.received()) == 2 }, time.Second, 5*time.Millisecond)
	got := ctrl.received()
	assert.Equal(t, dto.MessageRefresh, got[0].Type)
	assert.Equal(t, 320, got[1].Width)
	assert.Equal(t, 1, ctrl.hub.GetClientCount())
}

func TestLoginAndLogout(t *testing.T) {
	cfg := &config.Config{Password: "secret"}
	h := LoginHandler(cfg, newLogger(t))

	form := url.Values{"password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	form = url.Values{"password": {"secret"}}
	req = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, "true", rec.Result().Cookies()[0].Value)

	rec = httptest.NewRecorder()
	LogoutHandler(rec, httptest.NewRequest(http.MethodGet, "/auth/logout", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestLogsHandlers(t *testing.T) {
	log := newLogger(t)
	log.Warning("disk almost full")

	rec := httptest.NewRecorder()
	ShowLogsHandler(log, logger.WarningFile)(rec, httptest.NewRequest(http.MethodGet, "/logs/warning", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "disk almost full")

	rec = httptest.NewRecorder()
	ClearLogsHandler(log, logger.WarningFile)(rec, httptest.NewRequest(http.MethodPost, "/logs/warning/clear", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	data, err := os.ReadFile(filepath.Join(log.Dir(), logger.WarningFile))
	require.NoError(t, err)
	assert.Empty(t, data)

	rec = httptest.NewRecorder()
	ShowLogsHandler(log, "missing.log")(rec, httptest.NewRequest(http.MethodGet, "/logs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPhotosHandlers(t *testing.T) {
	dir := t.TempDir()
	photosDir := filepath.Join(dir, "photos")
	require.NoError(t, os.MkdirAll(photosDir, 0755))
	db, err := sqlite.New(filepath.Join(dir, "photos.db"))
	require.NoError(t, err)
	defer db.Close()
	photos := sqlite.NewPhotoRepository(db)
	detections := sqlite.NewDetectionRepository(db)
	log := newLogger(t)

	for i, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(photosDir, name), []byte(name), 0644))
		id, err := photos.Insert(&model.Photo{
			Filename:  name,
			Facing:    model.FacingRear,
			Timestamp: time.Date(2025, 5, 1+i, 10, 0, 0, 0, time.UTC),
			FilePath:  filepath.Join(photosDir, name),
		})
		require.NoError(t, err)
		require.NoError(t, detections.InsertBatch([]model.PhotoDetection{{PhotoID: id, ObjectName: "person"}}))
	}

	rec := httptest.NewRecorder()
	GetPhotosHandler(photosDir, log, photos, detections)(rec, httptest.NewRequest(http.MethodGet, "/api/photos?limit=2&page=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var data struct {
		Photos []struct {
			Name    string   `json:"name"`
			Date    string   `json:"date"`
			Objects []string `json:"objects"`
		} `json:"photos"`
		Length     int `json:"length"`
		TotalPages int `json:"totalPages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Equal(t, 3, data.Length)
	assert.Equal(t, 2, data.TotalPages)
	require.Len(t, data.Photos, 2)
	assert.Equal(t, "c.jpg", data.Photos[0].Name)
	assert.Equal(t, "03-05-2025", data.Photos[0].Date)
	assert.Equal(t, []string{"person"}, data.Photos[0].Objects)

	rec = httptest.NewRecorder()
	GetPhotosHandler(photosDir, log, photos, detections)(rec, httptest.NewRequest(http.MethodGet, "/api/photos?dateBefore=2025-05-01", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Equal(t, 1, data.Length, "dateBefore covers the whole day")

	rec = httptest.NewRecorder()
	ViewPhotoHandler(photosDir)(rec, httptest.NewRequest(http.MethodGet, "/api/photos/view?name=b.jpg", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "b.jpg", rec.Body.String())

	rec = httptest.NewRecorder()
	ViewPhotoHandler(photosDir)(rec, httptest.NewRequest(http.MethodGet, "/api/photos/view?name=../photos.db", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	DeletePhotoHandler(photosDir, log, photos)(rec, httptest.NewRequest(http.MethodPost, "/api/photos/delete?name=a.jpg", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	_, err = os.Stat(filepath.Join(photosDir, "a.jpg"))
	assert.True(t, os.IsNotExist(err))

	rec = httptest.NewRecorder()
	ClearPhotosHandler(photosDir, log, photos)(rec, httptest.NewRequest(http.MethodPost, "/api/photos/clear", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	count, err := photos.GetTotalCount(nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}
