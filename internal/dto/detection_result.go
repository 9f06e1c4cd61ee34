package dto

import "livedetect/internal/model"

type DetectionResult struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// FromDetections converts drawn detections to their wire form.
func FromDetections(detections []model.Detection) []DetectionResult {
	out := make([]DetectionResult, 0, len(detections))
	for _, d := range detections {
		out = append(out, DetectionResult{
			Label:      d.Label,
			Confidence: d.Confidence,
			X:          d.Box.Min.X,
			Y:          d.Box.Min.Y,
			Width:      d.Box.Dx(),
			Height:     d.Box.Dy(),
		})
	}
	return out
}
