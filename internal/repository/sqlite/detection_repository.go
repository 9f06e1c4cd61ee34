package sqlite

import (
	"fmt"

	"livedetect/internal/model"
)

// DetectionRepository implements repository.DetectionRepository for SQLite.
type DetectionRepository struct {
	db *DB
}

// NewDetectionRepository creates a new SQLite detection repository.
func NewDetectionRepository(db *DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

// InsertBatch adds multiple detections in a single transaction.
func (r *DetectionRepository) InsertBatch(detections []model.PhotoDetection) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO detections (photo_id, object_name, x, y, width, height, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, det := range detections {
		if _, err := stmt.Exec(det.PhotoID, det.ObjectName, det.X, det.Y, det.Width, det.Height, det.Confidence); err != nil {
			return fmt.Errorf("failed to insert detection: %w", err)
		}
	}

	return tx.Commit()
}

// GetByPhotoID retrieves all detections for a photo.
func (r *DetectionRepository) GetByPhotoID(photoID int64) ([]model.PhotoDetection, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, photo_id, object_name, x, y, width, height, confidence
		FROM detections WHERE photo_id = ?
	`, photoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var detections []model.PhotoDetection
	for rows.Next() {
		var det model.PhotoDetection
		if err := rows.Scan(&det.ID, &det.PhotoID, &det.ObjectName, &det.X, &det.Y, &det.Width, &det.Height, &det.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		detections = append(detections, det)
	}

	return detections, rows.Err()
}

// GetObjectNamesByPhotoID returns just the object names for a photo.
func (r *DetectionRepository) GetObjectNamesByPhotoID(photoID int64) ([]string, error) {
	return r.names(`SELECT DISTINCT object_name FROM detections WHERE photo_id = ? ORDER BY object_name`, photoID)
}

// GetAllObjectNames returns a list of all unique detected object names.
func (r *DetectionRepository) GetAllObjectNames() ([]string, error) {
	return r.names(`SELECT DISTINCT object_name FROM detections ORDER BY object_name`)
}

func (r *DetectionRepository) names(query string, args ...interface{}) ([]string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query object names: %w", err)
	}
	defer rows.Close()

	var objects []string
	for rows.Next() {
		var obj string
		if err := rows.Scan(&obj); err != nil {
			return nil, fmt.Errorf("failed to scan object name: %w", err)
		}
		objects = append(objects, obj)
	}

	return objects, rows.Err()
}
