package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"livedetect/internal/config"
	"livedetect/internal/dto"
	"livedetect/internal/logger"
	"livedetect/internal/model"
	"livedetect/internal/repository"
)

const timestampLayout = "2006-01-02_15-04-05.000"

// BufferService buffers photos in memory and periodically flushes them to disk
// and the database.
type BufferService struct {
	photosDir     string
	limit         int
	interval      time.Duration
	photos        []dto.BufferedPhoto
	mu            sync.Mutex
	clock         clock.Clock
	logger        *logger.Logger
	photoRepo     repository.PhotoRepository
	detectionRepo repository.DetectionRepository
}

// NewBufferService creates a new BufferService with the target directory and logger.
func NewBufferService(cfg *config.Config, clk clock.Clock, logger *logger.Logger, photoRepo repository.PhotoRepository, detectionRepo repository.DetectionRepository) *BufferService {
	if clk == nil {
		clk = clock.New()
	}
	interval := time.Duration(cfg.PhotoFlushInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &BufferService{
		photosDir:     cfg.ImageDirectory,
		limit:         cfg.PhotoBufferLimit,
		interval:      interval,
		photos:        make([]dto.BufferedPhoto, 0),
		clock:         clk,
		logger:        logger,
		photoRepo:     photoRepo,
		detectionRepo: detectionRepo,
	}
}

// Run flushes the buffer on every tick until ctx is done, then flushes once more.
func (s *BufferService) Run(ctx context.Context) {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.FlushPhotos()
		case <-ctx.Done():
			s.FlushPhotos()
			return
		}
	}
}

// AddPhoto appends an encoded photo to the buffer and returns the file name it
// will be stored under. A full buffer drops the photo.
func (s *BufferService) AddPhoto(data []byte, facing model.Facing, detections []dto.DetectionResult) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limit > 0 && len(s.photos) >= s.limit {
		s.logger.Warning("Photo buffer full (%d/%d), dropping photo", len(s.photos), s.limit)
		return "", fmt.Errorf("photo buffer full")
	}

	photo := dto.BufferedPhoto{
		Timestamp:  s.clock.Now().Format(timestampLayout),
		Facing:     string(facing),
		Detections: detections,
		Data:       data,
	}
	s.photos = append(s.photos, photo)
	s.logger.Info("Buffer size: %d/%d", len(s.photos), s.limit)
	return Filename(photo), nil
}

// Pending is the number of buffered photos.
func (s *BufferService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.photos)
}

// Dir is where photos are written.
func (s *BufferService) Dir() string {
	return s.photosDir
}

// Filename builds the stored name: timestamp, facing and the detected labels.
func Filename(photo dto.BufferedPhoto) string {
	var objects strings.Builder
	for _, det := range photo.Detections {
		objects.WriteString(det.Label)
		objects.WriteString("_")
	}
	name := fmt.Sprintf("%s_%s_%s", photo.Timestamp, photo.Facing, objects.String())
	return strings.ReplaceAll(strings.TrimSuffix(name, "_"), " ", "-") + ".jpg"
}

// ParseFilename reverses Filename. Labels come back with their spaces restored.
func ParseFilename(filename string) (time.Time, model.Facing, []string, error) {
	name := strings.TrimSuffix(filename, ".jpg")
	parts := strings.Split(name, "_")
	if len(parts) < 3 {
		return time.Time{}, "", nil, fmt.Errorf("invalid filename format: %s", filename)
	}

	ts, err := time.ParseInLocation(timestampLayout, parts[0]+"_"+parts[1], time.Local)
	if err != nil {
		return time.Time{}, "", nil, fmt.Errorf("failed to parse timestamp: %w", err)
	}

	facing, err := model.ParseFacing(parts[2])
	if err != nil {
		return time.Time{}, "", nil, err
	}

	var labels []string
	for _, p := range parts[3:] {
		if p != "" {
			labels = append(labels, strings.ReplaceAll(p, "-", " "))
		}
	}
	return ts, facing, labels, nil
}

// FlushPhotos writes buffered photos to disk and the database and resets the buffer.
func (s *BufferService) FlushPhotos() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.photos) == 0 {
		return
	}

	if err := os.MkdirAll(s.photosDir, 0755); err != nil {
		s.logger.Error("Error creating directory: %v", err)
		return
	}

	savedCount := 0
	for _, photo := range s.photos {
		filename := Filename(photo)
		fullpath := filepath.Join(s.photosDir, filename)

		if err := os.WriteFile(fullpath, photo.Data, 0644); err != nil {
			s.logger.Error("Error saving photo %s: %v", filename, err)
			continue
		}

		if s.photoRepo != nil {
			s.savePhotoRecord(photo, filename, fullpath)
		}
		savedCount++
	}

	s.logger.Info("Flushed %d photos to disk", savedCount)
	s.photos = s.photos[:0]
}

func (s *BufferService) savePhotoRecord(photo dto.BufferedPhoto, filename, fullpath string) {
	ts, err := time.ParseInLocation(timestampLayout, photo.Timestamp, time.Local)
	if err != nil {
		ts = s.clock.Now()
	}

	photoID, err := s.photoRepo.Insert(&model.Photo{
		Filename:  filename,
		Facing:    model.Facing(photo.Facing),
		Timestamp: ts.UTC(),
		FilePath:  fullpath,
		FileSize:  int64(len(photo.Data)),
	})
	if err != nil {
		s.logger.Error("Error saving photo to database %s: %v", filename, err)
		return
	}

	if s.detectionRepo == nil || len(photo.Detections) == 0 {
		return
	}
	rows := make([]model.PhotoDetection, 0, len(photo.Detections))
	for _, det := range photo.Detections {
		rows = append(rows, model.PhotoDetection{
			PhotoID:    photoID,
			ObjectName: det.Label,
			X:          det.X,
			Y:          det.Y,
			Width:      det.Width,
			Height:     det.Height,
			Confidence: det.Confidence,
		})
	}
	if err := s.detectionRepo.InsertBatch(rows); err != nil {
		s.logger.Error("Error saving detections to database: %v", err)
	}
}
