package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the server. Values come from the
// environment (optionally seeded from a .env file) with sensible defaults.
type Config struct {
	Port     int
	Password string

	// Model
	ModelSource        string // local path or http(s) URL of the model graph
	ModelConfigPath    string // optional second file for the OpenCV backend (.pbtxt etc.)
	ModelCacheDir      string
	InferenceBackend   string // onnx | opencv
	ExecutionTarget    string // cpu | accelerated
	OptimizationLevel  string // none | basic | all
	OnnxLibraryPath    string
	ModelInputWidth    int
	ModelInputHeight   int
	DetectionThreshold float64
	NmsThreshold       float64

	// Camera
	FrontCameraDevice int
	RearCameraDevice  int
	InitialFacing     string // front | rear
	CameraWidth       int
	CameraHeight      int

	// Live loop
	DisplayRefreshRate int // Hz, fallback when no viewer acknowledges paints

	// Storage
	DatabasePath       string
	ImageDirectory     string
	PhotoBufferLimit   int
	PhotoFlushInterval int // seconds
	LogDirectory       string
}

// Load reads the configuration. A missing .env file is not an error.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:               getEnvAsInt("PORT", 8080),
		Password:           getEnv("PASSWORD", "livedetect"),
		ModelSource:        getEnv("MODEL_SOURCE", filepath.Join(".", "models", "yolov8n.onnx")),
		ModelConfigPath:    getEnv("MODEL_CONFIG_PATH", ""),
		ModelCacheDir:      getEnv("MODEL_CACHE_DIR", filepath.Join(".", "models", "cache")),
		InferenceBackend:   getEnv("INFERENCE_BACKEND", "onnx"),
		ExecutionTarget:    getEnv("EXECUTION_TARGET", "cpu"),
		OptimizationLevel:  getEnv("OPTIMIZATION_LEVEL", "all"),
		OnnxLibraryPath:    getEnv("ONNX_LIBRARY_PATH", ""),
		ModelInputWidth:    getEnvAsInt("MODEL_INPUT_WIDTH", 640),
		ModelInputHeight:   getEnvAsInt("MODEL_INPUT_HEIGHT", 640),
		DetectionThreshold: getEnvAsFloat("DETECTION_THRESHOLD", 0.5),
		NmsThreshold:       getEnvAsFloat("NMS_THRESHOLD", 0.45),
		FrontCameraDevice:  getEnvAsInt("FRONT_CAMERA_DEVICE", 0),
		RearCameraDevice:   getEnvAsInt("REAR_CAMERA_DEVICE", 1),
		InitialFacing:      getEnv("INITIAL_FACING", "rear"),
		CameraWidth:        getEnvAsInt("CAMERA_WIDTH", 640),
		CameraHeight:       getEnvAsInt("CAMERA_HEIGHT", 480),
		DisplayRefreshRate: getEnvAsInt("DISPLAY_REFRESH_RATE", 60),
		DatabasePath:       getEnv("DATABASE_PATH", filepath.Join(".", "data", "photos.db")),
		ImageDirectory:     getEnv("IMAGE_DIR", filepath.Join(".", "photos")),
		PhotoBufferLimit:   getEnvAsInt("PHOTO_BUFFER_LIMIT", 10),
		PhotoFlushInterval: getEnvAsInt("PHOTO_FLUSH_INTERVAL", 5),
		LogDirectory:       getEnv("LOG_DIR", filepath.Join(".", "logs")),
	}
}

// Validate checks the enumerated settings and numeric ranges.
func (c *Config) Validate() error {
	switch c.InferenceBackend {
	case "onnx", "opencv":
	default:
		return fmt.Errorf("unknown inference backend %q", c.InferenceBackend)
	}
	switch c.ExecutionTarget {
	case "cpu", "accelerated":
	default:
		return fmt.Errorf("unknown execution target %q", c.ExecutionTarget)
	}
	switch c.OptimizationLevel {
	case "none", "basic", "all":
	default:
		return fmt.Errorf("unknown optimization level %q", c.OptimizationLevel)
	}
	switch c.InitialFacing {
	case "front", "rear":
	default:
		return fmt.Errorf("unknown camera facing %q", c.InitialFacing)
	}
	if c.ModelInputWidth <= 0 || c.ModelInputHeight <= 0 {
		return fmt.Errorf("model input size must be positive, got %dx%d", c.ModelInputWidth, c.ModelInputHeight)
	}
	if c.DisplayRefreshRate <= 0 {
		return fmt.Errorf("display refresh rate must be positive, got %d", c.DisplayRefreshRate)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
