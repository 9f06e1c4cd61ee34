package repository

import (
	"livedetect/internal/dto"
	"livedetect/internal/model"
)

// PhotoRepository defines the interface for photo data operations.
type PhotoRepository interface {
	// Create operations
	Insert(photo *model.Photo) (int64, error)

	// Read operations
	GetByID(id int64) (*model.Photo, error)
	GetByFilename(filename string) (*model.Photo, error)
	GetAll(filter *dto.PhotoFilters, limit, offset int) ([]model.Photo, error)
	GetTotalCount(filter *dto.PhotoFilters) (int, error)

	// Delete operations
	DeleteByFilename(filename string) error
	DeleteAll() error
}

// DetectionRepository defines the interface for detection data operations.
type DetectionRepository interface {
	// Create operations
	InsertBatch(detections []model.PhotoDetection) error

	// Read operations
	GetByPhotoID(photoID int64) ([]model.PhotoDetection, error)
	GetObjectNamesByPhotoID(photoID int64) ([]string, error)
	GetAllObjectNames() ([]string, error)
}
