package dto

// BufferedPhoto holds an encoded photo and its detections before flushing to disk.
type BufferedPhoto struct {
	Timestamp  string
	Facing     string
	Detections []DetectionResult
	Data       []byte
}
