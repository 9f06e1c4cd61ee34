package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"

	"livedetect/internal/config"
	"livedetect/internal/logger"
	"livedetect/internal/model"
	"livedetect/internal/repository/sqlite"
	"livedetect/internal/route"
	"livedetect/internal/service"
	"livedetect/internal/service/camera"
	"livedetect/internal/service/camera/gocvcam"
	"livedetect/internal/service/encode"
	"livedetect/internal/service/frame"
	"livedetect/internal/service/inference"
	"livedetect/internal/service/inference/onnx"
	"livedetect/internal/service/inference/opencv"
	"livedetect/internal/service/live"
	"livedetect/internal/service/storage"
	"livedetect/internal/service/vision"
	"livedetect/internal/service/websocket"
)

type App struct {
	config           *config.Config
	logger           *logger.Logger
	db               *sqlite.DB
	photoRepo        *sqlite.PhotoRepository
	detectionRepo    *sqlite.DetectionRepository
	inferenceService *inference.Service
	bufferService    *storage.BufferService
	hubService       *websocket.HubService
	manager          *service.Manager
	facing           model.Facing
	options          inference.Options
	loader           inference.Loader
}

// NewApp wires every service from cfg. Nothing is started yet.
func NewApp(cfg *config.Config, log *logger.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	facing, err := model.ParseFacing(cfg.InitialFacing)
	if err != nil {
		return nil, err
	}
	opts, err := modelOptions(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	photoRepo := sqlite.NewPhotoRepository(db)
	detectionRepo := sqlite.NewDetectionRepository(db)

	clk := clock.New()
	device := &gocvcam.Device{
		Front:  cfg.FrontCameraDevice,
		Rear:   cfg.RearCameraDevice,
		Width:  cfg.CameraWidth,
		Height: cfg.CameraHeight,
	}
	cameraService := camera.NewManager(device, log)
	surface := frame.NewSurface()

	inferenceService := inference.NewService(clk, log)
	refresh := live.NewDisplayRefresh(clk, cfg.DisplayRefreshRate)
	loop := live.NewLoop(live.Deps{
		Source:  frame.NewCapturer(cameraService),
		Pre:     &vision.Preprocessor{Width: cfg.ModelInputWidth, Height: cfg.ModelInputHeight},
		Infer:   inferenceService,
		Post:    newPostprocessor(cfg),
		Refresh: refresh,
		Surface: surface,
		Clock:   clk,
		Logger:  log,
	})
	cameraService.OnMetadata(loop.OnMetadata)

	buffer := storage.NewBufferService(cfg, clk, log, photoRepo, detectionRepo)
	hub := websocket.NewHubService(log)

	manager := service.NewManager(service.Components{
		Loop:      loop,
		Camera:    cameraService,
		Inference: inferenceService,
		Refresh:   refresh,
		Hub:       hub,
		Buffer:    buffer,
		Encoder:   encode.JPEG{Quality: 80},
	}, log)

	return &App{
		config:           cfg,
		logger:           log,
		db:               db,
		photoRepo:        photoRepo,
		detectionRepo:    detectionRepo,
		inferenceService: inferenceService,
		bufferService:    buffer,
		hubService:       hub,
		manager:          manager,
		facing:           facing,
		options:          opts,
		loader:           newLoader(cfg),
	}, nil
}

func modelOptions(cfg *config.Config) (inference.Options, error) {
	target, err := inference.ParseExecutionTarget(cfg.ExecutionTarget)
	if err != nil {
		return inference.Options{}, err
	}
	level, err := inference.ParseOptimizationLevel(cfg.OptimizationLevel)
	if err != nil {
		return inference.Options{}, err
	}
	return inference.Options{Target: target, Optimization: level, ConfigPath: cfg.ModelConfigPath}, nil
}

func newLoader(cfg *config.Config) inference.Loader {
	if cfg.InferenceBackend == "opencv" {
		return opencv.Load
	}
	return onnx.Loader(cfg.OnnxLibraryPath)
}

func newPostprocessor(cfg *config.Config) *vision.Postprocessor {
	return &vision.Postprocessor{
		InputWidth:  cfg.ModelInputWidth,
		InputHeight: cfg.ModelInputHeight,
		Labels:      vision.COCOClasses,
		Threshold:   float32(cfg.DetectionThreshold),
		IoU:         float32(cfg.NmsThreshold),
	}
}

// Manager exposes the live detection service.
func (a *App) Manager() *service.Manager {
	return a.manager
}

// LoadModel loads the configured model and blocks until it is ready.
func (a *App) LoadModel(ctx context.Context) error {
	return a.inferenceService.Load(ctx, a.config.ModelSource, a.config.ModelCacheDir, a.options, a.loader)
}

// OpenCamera opens the configured initial camera.
func (a *App) OpenCamera(ctx context.Context) error {
	return a.manager.OpenCamera(ctx, a.facing)
}

// FlushPhotos writes buffered photos out right away.
func (a *App) FlushPhotos() {
	a.bufferService.FlushPhotos()
}

// Run starts the background services and serves HTTP until ctx is done.
func (a *App) Run(ctx context.Context) error {
	go a.bufferService.Run(ctx)
	go a.hubService.Run(ctx)

	// Live detection may start before the model is ready; iterations skip
	// inference until then.
	a.inferenceService.LoadAsync(ctx, a.config.ModelSource, a.config.ModelCacheDir, a.options, a.loader)

	if err := a.OpenCamera(ctx); err != nil {
		a.logger.Warning("Camera not available at startup: %v", err)
	}

	router := route.SetupRoutes(a.manager, a.config, a.logger, a.photoRepo, a.detectionRepo)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("🚀 Live Detection Server\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("📁 Photos: %s\n", a.config.ImageDirectory)
	fmt.Printf("🤖 Model: %s (%s, %s)\n", a.config.ModelSource, a.config.InferenceBackend, a.config.ExecutionTarget)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// Close stops live detection, flushes photos and releases the camera, the
// model and the database.
func (a *App) Close() {
	a.manager.Stop()
	a.bufferService.FlushPhotos()
	if a.config.InferenceBackend == "onnx" {
		if err := onnx.Shutdown(); err != nil {
			a.logger.Warning("Error shutting down onnxruntime: %v", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("Error closing database: %v", err)
	}
}
