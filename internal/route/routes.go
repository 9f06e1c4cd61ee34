package route

import (
	"net/http"
	"os"
	"path/filepath"

	"livedetect/internal/config"
	"livedetect/internal/handler"
	"livedetect/internal/logger"
	"livedetect/internal/middleware"
	"livedetect/internal/repository"
)

// StaticDir holds the viewer pages.
const StaticDir = "static"

// dynamicHTMLHandler serves /path as /static/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if path == "/" {
		path = "/index"
	}

	filePath := filepath.Join(StaticDir, filepath.Clean(path)+".html")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, filePath)
}

// SetupRoutes registers HTTP routes, static file serving, API endpoints,
// and wraps the mux with the authentication middleware.
func SetupRoutes(ctrl handler.Controller, cfg *config.Config, log *logger.Logger,
	photoRepo repository.PhotoRepository, detectionRepo repository.DetectionRepository) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(StaticDir))))

	// Live detection commands
	mux.HandleFunc("/api/live/toggle", handler.ToggleLiveHandler(ctrl, log))
	mux.HandleFunc("/api/camera/switch", handler.SwitchCameraHandler(ctrl, log))
	mux.HandleFunc("/api/reset", handler.ResetHandler(ctrl, log))
	mux.HandleFunc("/api/photo", handler.TakePhotoHandler(ctrl, log))
	mux.HandleFunc("/api/status", handler.StatusHandler(ctrl, log))
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(ctrl, log))

	// Stored photos
	mux.HandleFunc("/api/photos", handler.GetPhotosHandler(cfg.ImageDirectory, log, photoRepo, detectionRepo))
	mux.HandleFunc("/api/photos/view", handler.ViewPhotoHandler(cfg.ImageDirectory))
	mux.HandleFunc("/api/photos/delete", handler.DeletePhotoHandler(cfg.ImageDirectory, log, photoRepo))
	mux.HandleFunc("/api/photos/clear", handler.ClearPhotosHandler(cfg.ImageDirectory, log, photoRepo))

	// Log endpoints
	for path, file := range map[string]string{
		"/logs/info":    logger.InfoFile,
		"/logs/warning": logger.WarningFile,
		"/logs/error":   logger.ErrorFile,
	} {
		mux.HandleFunc(path, handler.ShowLogsHandler(log, file))
		mux.HandleFunc(path+"/clear", handler.ClearLogsHandler(log, file))
	}

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(cfg, log))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler)

	// Automatic HTML handler mapping for example: /photos -> /static/photos.html
	mux.HandleFunc("/", dynamicHTMLHandler)

	return middleware.AuthMiddleware(mux)
}
