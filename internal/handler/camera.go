package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	gorilla "github.com/gorilla/websocket"

	"livedetect/internal/dto"
	"livedetect/internal/logger"
	"livedetect/internal/model"
	"livedetect/internal/service/camera"
	"livedetect/internal/service/frame"
	"livedetect/internal/service/inference"
	"livedetect/internal/service/websocket"
)

// Controller is the command surface of the live detection service.
type Controller interface {
	ToggleLive(ctx context.Context) (bool, error)
	SwitchCamera(ctx context.Context) (model.Facing, error)
	Reset()
	TakePhoto(ctx context.Context) (*dto.PhotoResult, error)
	Status() dto.Status
	HandleViewerMessage(viewer *gorilla.Conn, msg dto.ViewerMessage)
	GetWebsocketService() *websocket.HubService
}

// ToggleLiveHandler handles POST /api/live/toggle ("Start/Stop Live Detection").
func ToggleLiveHandler(ctrl Controller, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		if _, err := ctrl.ToggleLive(r.Context()); err != nil {
			logger.Error("Error toggling live detection: %v", err)
			writeError(w, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, ctrl.Status())
	}
}

// SwitchCameraHandler handles POST /api/camera/switch.
func SwitchCameraHandler(ctrl Controller, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		if _, err := ctrl.SwitchCamera(r.Context()); err != nil {
			logger.Error("Error switching camera: %v", err)
			writeError(w, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, ctrl.Status())
	}
}

// ResetHandler handles POST /api/reset.
func ResetHandler(ctrl Controller, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		ctrl.Reset()
		writeJSON(w, logger, http.StatusOK, ctrl.Status())
	}
}

// TakePhotoHandler handles POST /api/photo ("Take a Photo").
func TakePhotoHandler(ctrl Controller, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		result, err := ctrl.TakePhoto(r.Context())
		if err != nil {
			logger.Error("Error taking photo: %v", err)
			writeError(w, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, result)
	}
}

// StatusHandler handles GET /api/status.
func StatusHandler(ctrl Controller, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, logger, http.StatusOK, ctrl.Status())
	}
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// writeError maps the service error taxonomy to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var inferErr *inference.InferenceError
	switch {
	case errors.Is(err, inference.ErrModelNotLoaded):
		http.Error(w, "Model is not loaded yet", http.StatusServiceUnavailable)
	case errors.Is(err, camera.ErrDeviceAcquisition), errors.Is(err, frame.ErrCaptureUnavailable):
		http.Error(w, "Camera unavailable", http.StatusServiceUnavailable)
	case errors.As(err, &inferErr):
		http.Error(w, "Inference failed", http.StatusInternalServerError)
	default:
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, logger *logger.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}
