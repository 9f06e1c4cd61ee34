package handler

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"livedetect/internal/dto"
	"livedetect/internal/logger"
	"livedetect/internal/repository"
)

// GetPhotosHandler returns a filtered, paginated list of photos from the database.
func GetPhotosHandler(photosDir string, logger *logger.Logger,
	photoRepo repository.PhotoRepository, detectionRepo repository.DetectionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 24)

		filter := &dto.PhotoFilters{
			Facing:     q.Get("facing"),
			Object:     q.Get("object"),
			DateAfter:  parseDate(q.Get("dateAfter")),
			DateBefore: parseDate(q.Get("dateBefore")),
		}
		if !filter.DateBefore.IsZero() {
			// Inclusive of the whole day.
			filter.DateBefore = filter.DateBefore.Add(24*time.Hour - time.Nanosecond)
		}

		photos, err := photoRepo.GetAll(filter, limit, (page-1)*limit)
		if err != nil {
			logger.Error("Error querying photos from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		totalCount, err := photoRepo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting photos: %v", err)
			totalCount = len(photos)
		}

		infos := make([]dto.PhotoInfo, 0, len(photos))
		for _, p := range photos {
			objects, err := detectionRepo.GetObjectNamesByPhotoID(p.ID)
			if err != nil {
				logger.Error("Error getting objects for photo %d: %v", p.ID, err)
				objects = []string{}
			}
			infos = append(infos, dto.PhotoInfo{
				Name:      p.Filename,
				Date:      p.Timestamp,
				TimeOfDay: p.Timestamp,
				Facing:    string(p.Facing),
				Objects:   objects,
			})
		}

		writeJSON(w, logger, http.StatusOK, dto.PhotosData{
			Photos:      infos,
			PhotosDir:   photosDir,
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		})
	}
}

// ViewPhotoHandler serves a single photo named by the "name" query parameter.
func ViewPhotoHandler(photosDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := photoName(w, r)
		if !ok {
			return
		}
		http.ServeFile(w, r, filepath.Join(photosDir, name))
	}
}

// DeletePhotoHandler removes a photo from disk and database.
func DeletePhotoHandler(photosDir string, logger *logger.Logger, photoRepo repository.PhotoRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		name, ok := photoName(w, r)
		if !ok {
			return
		}

		filePath := filepath.Join(photosDir, name)
		if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
			logger.Error("Failed to delete file %s: %v", filePath, err)
		}
		if err := photoRepo.DeleteByFilename(name); err != nil {
			logger.Error("Failed to delete from database: %v", err)
		}

		logger.Info("Deleted photo: %s", name)
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "deleted", "name": name})
	}
}

// ClearPhotosHandler deletes all files from the photo directory and clears the database.
func ClearPhotosHandler(photosDir string, logger *logger.Logger, photoRepo repository.PhotoRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		files, err := os.ReadDir(photosDir)
		if err != nil && !os.IsNotExist(err) {
			logger.Error("Error reading photos directory: %v", err)
			http.Error(w, "Unable to read photos directory", http.StatusInternalServerError)
			return
		}

		for _, file := range files {
			if file.IsDir() {
				continue
			}
			if err := os.Remove(filepath.Join(photosDir, file.Name())); err != nil {
				logger.Error("Error deleting file %s: %v", file.Name(), err)
			}
		}

		if err := photoRepo.DeleteAll(); err != nil {
			logger.Error("Error clearing database: %v", err)
		}

		logger.Info("All photos cleared from directory: %s", photosDir)
		w.WriteHeader(http.StatusNoContent)
	}
}

// photoName reads the "name" parameter and rejects anything that is not a
// plain file name.
func photoName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "Name parameter is required", http.StatusBadRequest)
		return "", false
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		http.Error(w, "Invalid name", http.StatusBadRequest)
		return "", false
	}
	return name, true
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// parseDate parses a date string in the format "2006-01-02" from the request (HTML input format).
func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}
	}
	return t
}
