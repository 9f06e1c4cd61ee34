package dto

import (
	"fmt"
	"math"

	"livedetect/internal/model"
)

// FPSFallback is shown when the iteration time is zero and FPS is undefined.
const FPSFallback = "—"

// Telemetry is the displayed timing of the latest loop iteration.
type Telemetry struct {
	Session     string `json:"session"`
	Iteration   int    `json:"iteration"`
	InferenceMs int64  `json:"inferenceMs"`
	TotalMs     int64  `json:"totalMs"`
	FPS         string `json:"fps"`
}

// NewTelemetry rounds the sample to whole milliseconds and derives FPS from
// the rounded total.
func NewTelemetry(s model.TimingSample) Telemetry {
	total := roundMs(s.Total.Seconds() * 1000)
	return Telemetry{
		Session:     s.SessionID,
		Iteration:   s.Iteration,
		InferenceMs: roundMs(s.Inference.Seconds() * 1000),
		TotalMs:     total,
		FPS:         FormatFPS(total),
	}
}

// FormatFPS renders 1000/totalMs with two decimals.
func FormatFPS(totalMs int64) string {
	if totalMs <= 0 {
		return FPSFallback
	}
	return fmt.Sprintf("%.2f", 1000/float64(totalMs))
}

func roundMs(ms float64) int64 {
	return int64(math.Round(ms))
}
