package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"livedetect/internal/dto"
	"livedetect/internal/model"
)

// PhotoRepository implements repository.PhotoRepository for SQLite.
type PhotoRepository struct {
	db *DB
}

// NewPhotoRepository creates a new SQLite photo repository.
func NewPhotoRepository(db *DB) *PhotoRepository {
	return &PhotoRepository{db: db}
}

// Insert adds a new photo record to the database.
func (r *PhotoRepository) Insert(photo *model.Photo) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO photos (filename, facing, timestamp, filepath, filesize)
		VALUES (?, ?, ?, ?, ?)
	`, photo.Filename, string(photo.Facing), photo.Timestamp, photo.FilePath, photo.FileSize)
	if err != nil {
		return 0, fmt.Errorf("failed to insert photo: %w", err)
	}

	return result.LastInsertId()
}

// GetByID retrieves a photo by its ID. Returns nil when there is none.
func (r *PhotoRepository) GetByID(id int64) (*model.Photo, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	return scanPhoto(r.db.Conn().QueryRow(`
		SELECT id, filename, facing, timestamp, filepath, filesize
		FROM photos WHERE id = ?
	`, id))
}

// GetByFilename retrieves a photo by its filename. Returns nil when there is none.
func (r *PhotoRepository) GetByFilename(filename string) (*model.Photo, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	return scanPhoto(r.db.Conn().QueryRow(`
		SELECT id, filename, facing, timestamp, filepath, filesize
		FROM photos WHERE filename = ?
	`, filename))
}

func scanPhoto(row *sql.Row) (*model.Photo, error) {
	var photo model.Photo
	var facing string
	err := row.Scan(&photo.ID, &photo.Filename, &facing, &photo.Timestamp, &photo.FilePath, &photo.FileSize)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get photo: %w", err)
	}
	photo.Facing = model.Facing(facing)
	return &photo, nil
}

// filterClause appends the WHERE conditions of filter to query.
func filterClause(query string, filter *dto.PhotoFilters) (string, []interface{}) {
	args := []interface{}{}
	if filter == nil {
		return query, args
	}

	if filter.Facing != "" {
		query += " AND p.facing = ?"
		args = append(args, filter.Facing)
	}

	if filter.Object != "" {
		query += " AND d.object_name = ?"
		args = append(args, filter.Object)
	}

	if !filter.DateAfter.IsZero() {
		query += " AND p.timestamp >= ?"
		args = append(args, filter.DateAfter)
	}

	if !filter.DateBefore.IsZero() {
		query += " AND p.timestamp <= ?"
		args = append(args, filter.DateBefore)
	}

	return query, args
}

// GetAll retrieves photos based on filter criteria, newest first.
func (r *PhotoRepository) GetAll(filter *dto.PhotoFilters, limit, offset int) ([]model.Photo, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query, args := filterClause(`
		SELECT DISTINCT p.id, p.filename, p.facing, p.timestamp, p.filepath, p.filesize
		FROM photos p
		LEFT JOIN detections d ON p.id = d.photo_id
		WHERE 1=1
	`, filter)

	query += " ORDER BY p.timestamp DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query photos: %w", err)
	}
	defer rows.Close()

	var photos []model.Photo
	for rows.Next() {
		var photo model.Photo
		var facing string
		if err := rows.Scan(&photo.ID, &photo.Filename, &facing, &photo.Timestamp, &photo.FilePath, &photo.FileSize); err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photo.Facing = model.Facing(facing)
		photos = append(photos, photo)
	}

	return photos, rows.Err()
}

// GetTotalCount returns the total count of photos matching the filter.
func (r *PhotoRepository) GetTotalCount(filter *dto.PhotoFilters) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query, args := filterClause(`
		SELECT COUNT(DISTINCT p.id)
		FROM photos p
		LEFT JOIN detections d ON p.id = d.photo_id
		WHERE 1=1
	`, filter)

	var count int
	if err := r.db.Conn().QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count photos: %w", err)
	}

	return count, nil
}

// DeleteByFilename removes a photo and its detections.
func (r *PhotoRepository) DeleteByFilename(filename string) error {
	r.db.Lock()
	defer r.db.Unlock()

	var photoID int64
	err := r.db.Conn().QueryRow(`SELECT id FROM photos WHERE filename = ?`, filename).Scan(&photoID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get photo id: %w", err)
	}

	if _, err := r.db.Conn().Exec(`DELETE FROM detections WHERE photo_id = ?`, photoID); err != nil {
		return fmt.Errorf("failed to delete detections: %w", err)
	}

	if _, err := r.db.Conn().Exec(`DELETE FROM photos WHERE id = ?`, photoID); err != nil {
		return fmt.Errorf("failed to delete photo: %w", err)
	}
	return nil
}

// DeleteAll removes all photos and their detections.
func (r *PhotoRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM detections`); err != nil {
		return fmt.Errorf("failed to delete detections: %w", err)
	}

	if _, err := r.db.Conn().Exec(`DELETE FROM photos`); err != nil {
		return fmt.Errorf("failed to delete photos: %w", err)
	}

	return nil
}
