package model

// TrackInfo describes one track of an open camera stream.
type TrackInfo struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// CameraHandle describes the single open camera stream.
type CameraHandle struct {
	Facing Facing      `json:"facing"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
	Tracks []TrackInfo `json:"tracks"`
}
