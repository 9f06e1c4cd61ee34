package model

import "time"

// Photo is a stored "Take a Photo" result.
type Photo struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	Facing    Facing    `json:"facing"`
	Timestamp time.Time `json:"timestamp"`
	FilePath  string    `json:"filepath"`
	FileSize  int64     `json:"filesize"`
}

// PhotoDetection is a detection row attached to a stored photo.
type PhotoDetection struct {
	ID         int64   `json:"id"`
	PhotoID    int64   `json:"photo_id"`
	ObjectName string  `json:"object_name"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
}
