package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"livedetect/internal/app"
	"livedetect/internal/config"
	"livedetect/internal/logger"
)

// snapshot takes a single photo without starting the web server.
func main() {
	cfg := config.Load()

	facing := flag.String("facing", cfg.InitialFacing, "Camera to use (front or rear)")
	modelSource := flag.String("model", cfg.ModelSource, "Model path or URL")
	outDir := flag.String("out", cfg.ImageDirectory, "Directory for the photo")
	timeout := flag.Duration("timeout", 30*time.Second, "Give up after this long")
	flag.Parse()

	cfg.InitialFacing = *facing
	cfg.ModelSource = *modelSource
	cfg.ImageDirectory = *outDir

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	appLogger, err := logger.NewQuiet(cfg.LogDirectory)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLogger.Close()

	application, err := app.NewApp(cfg, appLogger)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer application.Close()

	if err := application.LoadModel(ctx); err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}
	if err := application.OpenCamera(ctx); err != nil {
		log.Fatalf("Failed to open camera: %v", err)
	}

	result, err := application.Manager().TakePhoto(ctx)
	if err != nil {
		log.Fatalf("Failed to take photo: %v", err)
	}
	application.FlushPhotos()

	fmt.Printf("📸 %s\n", result.Name)
	for _, det := range result.Detections {
		fmt.Printf("   - %s %.0f%% at (%d,%d %dx%d)\n", det.Label, det.Confidence*100, det.X, det.Y, det.Width, det.Height)
	}
}
