package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/himanishpuri/AcousticLab/internal/service"
	"github.com/himanishpuri/AcousticLab/pkg/logger"
	"github.com/himanishpuri/AcousticLab/pkg/utils"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service service.Pipeline
	config  *ServerConfig
	log     *logger.Logger
}

type ServerConfig struct {
	Port           int
	DBPath         string
	TempDir        string
	ModelPath      string
	AllowedOrigins []string
}

func NewServer(svc service.Pipeline, config *ServerConfig) *Server {
	return &Server{
		service: svc,
		config:  config,
		log:     logger.GetLogger().Named("http"),
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

func (s *Server) allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	s.respondError(w, http.StatusMethodNotAllowed, fmt.Sprintf("use %s", method))
	return false
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "AcousticLab API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":  "GET /health",
			"metrics": "GET /api/health/metrics",
			"clips":   "GET /api/clips?label={instrument}",
			"runs":    "GET /api/runs?limit={n}",
			"predict": "POST /api/predict",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleMetrics handles GET /api/health/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	clips, err := s.service.ListClips("")
	if err != nil {
		s.log.Errorf("Failed to count clips: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics")
		return
	}
	counts, err := s.service.LabelCounts()
	if err != nil {
		s.log.Errorf("Failed to count labels: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics")
		return
	}

	s.respondJSON(w, http.StatusOK, MetricsResponse{
		Status:       "healthy",
		DatabasePath: s.config.DBPath,
		ModelPath:    s.config.ModelPath,
		ModelReady:   utils.FileExists(s.config.ModelPath),
		ClipCount:    len(clips),
		Labels:       counts,
	})
}

// handleClips handles GET /api/clips
func (s *Server) handleClips(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}
	clips, err := s.service.ListClips(r.URL.Query().Get("label"))
	if err != nil {
		s.log.Errorf("Failed to list clips: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve clips")
		return
	}
	s.respondJSON(w, http.StatusOK, ListClipsResponse{Clips: clips, Count: len(clips)})
}

// handleRuns handles GET /api/runs
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.service.ListRuns(limit)
	if err != nil {
		s.log.Errorf("Failed to list runs: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve runs")
		return
	}
	s.respondJSON(w, http.StatusOK, ListRunsResponse{Runs: runs, Count: len(runs)})
}

// modelFile resolves a requested model name inside the directory of the
// configured model. Only bare file names are accepted.
func (s *Server) modelFile(name string) (string, bool) {
	if name == "" {
		return s.config.ModelPath, true
	}
	base := filepath.Base(name)
	if base != name || base == "." || base == ".." {
		return "", false
	}
	return filepath.Join(filepath.Dir(s.config.ModelPath), base), true
}

// handlePredict handles POST /api/predict (multipart upload in field "audio",
// optional "model" file name next to the configured model)
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodPost) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		s.log.Warnf("Failed to parse form: %v", err)
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	modelPath, ok := s.modelFile(r.FormValue("model"))
	if !ok {
		s.respondError(w, http.StatusBadRequest, "model must be a file name")
		return
	}

	ext := filepath.Ext(header.Filename)
	tmp, err := os.CreateTemp(s.config.TempDir, "upload_*"+ext)
	if err != nil {
		s.log.Errorf("Failed to create temp file: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to process upload")
		return
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, file)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.log.Errorf("Failed to save upload: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to process upload")
		return
	}

	pred, err := s.service.Predict(ctx, modelPath, tmp.Name())
	if err != nil {
		s.log.Warnf("Prediction for %s failed: %v", header.Filename, err)
		if errors.Is(err, os.ErrNotExist) {
			s.respondError(w, http.StatusServiceUnavailable, "Model not available")
			return
		}
		s.respondError(w, http.StatusUnprocessableEntity, "Could not classify the uploaded audio")
		return
	}

	s.log.Infof("Predicted %s for %s (%.1f%%)", pred.Label, header.Filename, pred.Confidence*100)
	s.respondJSON(w, http.StatusOK, PredictResponse{Filename: header.Filename, Prediction: *pred})
}
