package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"livedetect/internal/config"
	"livedetect/internal/model"
	"livedetect/internal/repository/sqlite"
	"livedetect/internal/service/storage"
)

// migrate indexes photo files that are on disk but missing from the database,
// recovering facing and labels from their names.
func main() {
	cfg := config.Load()
	photosDir := flag.String("photos", cfg.ImageDirectory, "Directory containing photos")
	dbPath := flag.String("db", cfg.DatabasePath, "Database path")
	flag.Parse()

	fmt.Printf("Indexing photos from %s into database %s\n", *photosDir, *dbPath)

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	photoRepo := sqlite.NewPhotoRepository(db)
	detectionRepo := sqlite.NewDetectionRepository(db)

	files, err := os.ReadDir(*photosDir)
	if err != nil {
		log.Fatalf("Failed to read photos directory: %v", err)
	}

	inserted, skipped := 0, 0
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".jpg" {
			continue
		}

		existing, err := photoRepo.GetByFilename(file.Name())
		if err != nil {
			log.Fatalf("Failed to query database: %v", err)
		}
		if existing != nil {
			continue
		}

		timestamp, facing, labels, err := storage.ParseFilename(file.Name())
		if err != nil {
			log.Printf("⚠️  Skipping %s: %v", file.Name(), err)
			skipped++
			continue
		}

		info, err := file.Info()
		if err != nil {
			log.Printf("⚠️  Failed to get info for %s: %v", file.Name(), err)
			skipped++
			continue
		}

		id, err := photoRepo.Insert(&model.Photo{
			Filename:  file.Name(),
			Facing:    facing,
			Timestamp: timestamp.UTC(),
			FilePath:  filepath.Join(*photosDir, file.Name()),
			FileSize:  info.Size(),
		})
		if err != nil {
			log.Fatalf("Failed to insert %s: %v", file.Name(), err)
		}

		// Boxes are not part of the file name, only the labels survive.
		rows := make([]model.PhotoDetection, 0, len(labels))
		for _, label := range labels {
			rows = append(rows, model.PhotoDetection{PhotoID: id, ObjectName: label})
		}
		if len(rows) > 0 {
			if err := detectionRepo.InsertBatch(rows); err != nil {
				log.Fatalf("Failed to insert detections for %s: %v", file.Name(), err)
			}
		}
		inserted++
	}

	fmt.Printf("✅ Indexed %d photos\n", inserted)
	if skipped > 0 {
		fmt.Printf("⚠️  Skipped %d files (invalid format or errors)\n", skipped)
	}

	total, err := photoRepo.GetTotalCount(nil)
	if err == nil {
		fmt.Printf("\n📊 Database Statistics:\n")
		fmt.Printf("   Total photos: %d\n", total)
	}
	if names, err := detectionRepo.GetAllObjectNames(); err == nil && len(names) > 0 {
		fmt.Printf("   Objects: %v\n", names)
	}
}
