package model

import "image"

// Detection is one object found in a frame, in surface coordinates.
type Detection struct {
	Label      string          `json:"label"`
	Class      int             `json:"class"`
	Confidence float64         `json:"confidence"`
	Box        image.Rectangle `json:"box"`
}
