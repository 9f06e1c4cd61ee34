package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "onnx", cfg.InferenceBackend)
	assert.Equal(t, "cpu", cfg.ExecutionTarget)
	assert.Equal(t, "rear", cfg.InitialFacing)
	assert.Equal(t, 640, cfg.ModelInputWidth)
	assert.InDelta(t, 0.5, cfg.DetectionThreshold, 1e-9)
	assert.Equal(t, 60, cfg.DisplayRefreshRate)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("INFERENCE_BACKEND", "opencv")
	t.Setenv("INITIAL_FACING", "front")
	t.Setenv("NMS_THRESHOLD", "0.3")
	t.Setenv("CAMERA_WIDTH", "not-a-number")

	cfg := Load()

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "opencv", cfg.InferenceBackend)
	assert.Equal(t, "front", cfg.InitialFacing)
	assert.InDelta(t, 0.3, cfg.NmsThreshold, 1e-9)
	assert.Equal(t, 640, cfg.CameraWidth, "unparsable values fall back to the default")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"backend", func(c *Config) { c.InferenceBackend = "tflite" }},
		{"target", func(c *Config) { c.ExecutionTarget = "tpu" }},
		{"optimization", func(c *Config) { c.OptimizationLevel = "max" }},
		{"facing", func(c *Config) { c.InitialFacing = "side" }},
		{"input size", func(c *Config) { c.ModelInputHeight = 0 }},
		{"refresh rate", func(c *Config) { c.DisplayRefreshRate = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
