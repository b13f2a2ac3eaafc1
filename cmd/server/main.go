package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"

	"github.com/csmith/envflag/v2"
	"github.com/himanishpuri/AcousticLab/internal/service"
	"github.com/himanishpuri/AcousticLab/internal/storage"
	"github.com/himanishpuri/AcousticLab/pkg/logger"
)

var (
	port           = flag.Int("port", 8080, "HTTP server port")
	dbPath         = flag.String("db", storage.DefaultDBFile, "Path to SQLite catalog database")
	clipRoot       = flag.String("clips", service.DefaultClipRoot, "Clip store directory")
	tempDir        = flag.String("temp", os.TempDir(), "Temporary directory for uploads")
	modelPath      = flag.String("model", filepath.Join("models", service.DefaultModelFile), "Default model for /api/predict")
	logFile        = flag.String("log-file", "", "Also write log lines to this file")
	allowedOrigins = flag.String("origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
)

func main() {
	envflag.Parse()
	log := logger.GetLogger()
	if *logFile != "" {
		if err := log.SetFile(*logFile); err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
	}
	defer log.Close()

	var origins []string
	if *allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		origins = strings.Split(*allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	svc, err := service.NewService(
		service.WithDBPath(*dbPath),
		service.WithClipRoot(*clipRoot),
		service.WithTempDir(*tempDir),
		service.WithModelPath(*modelPath),
		service.WithLogger(log),
	)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer svc.Close()

	config := &ServerConfig{
		Port:           *port,
		DBPath:         *dbPath,
		TempDir:        *tempDir,
		ModelPath:      *modelPath,
		AllowedOrigins: origins,
	}

	server := NewServer(svc, config)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
