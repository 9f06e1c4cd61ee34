package dto

// Viewer websocket message types.
const (
	MessageFrame      = "frame"
	MessageStatus     = "status"
	MessageRefresh    = "refresh"
	MessageVisibility = "visibility"
	MessageLayout     = "layout"
)

// FrameMessage carries one rendered overlay to the viewers.
type FrameMessage struct {
	Type       string            `json:"type"`
	Image      string            `json:"image"` // base64 JPEG
	Telemetry  *Telemetry        `json:"telemetry,omitempty"`
	Detections []DetectionResult `json:"detections"`
}

// ViewerMessage is anything a viewer sends. Fields are filled per type.
type ViewerMessage struct {
	Type   string `json:"type"`
	Hidden bool   `json:"hidden,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Status is the state of the live loop, camera and model.
type Status struct {
	Type        string     `json:"type,omitempty"`
	Active      bool       `json:"active"`
	Session     string     `json:"session,omitempty"`
	Facing      string     `json:"facing"`
	CameraOpen  bool       `json:"cameraOpen"`
	Hidden      bool       `json:"hidden"`
	ModelLoaded bool       `json:"modelLoaded"`
	ModelSource string     `json:"modelSource,omitempty"`
	Viewers     int        `json:"viewers"`
	Telemetry   *Telemetry `json:"telemetry,omitempty"`
}

// PhotoResult is returned by the "Take a Photo" command.
type PhotoResult struct {
	Name       string            `json:"name"`
	Image      string            `json:"image"` // base64 JPEG
	Detections []DetectionResult `json:"detections"`
}
