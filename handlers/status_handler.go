// handlers/status_handler.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gewnthar/areasync/models"
	"github.com/gewnthar/areasync/services"
	"github.com/sirupsen/logrus"
)

// Pinger checks the database connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckpointReader reads the current resume record.
type CheckpointReader interface {
	Load() (*models.ProgressCheckpoint, error)
}

// StatusHandler serves read-only views of a running ingest.
type StatusHandler struct {
	DB          Pinger
	Progress    *services.Progress
	Checkpoints CheckpointReader
	Log         logrus.FieldLogger

	now func() time.Time
}

func NewStatusHandler(db Pinger, progress *services.Progress, checkpoints CheckpointReader, log logrus.FieldLogger) *StatusHandler {
	return &StatusHandler{DB: db, Progress: progress, Checkpoints: checkpoints, Log: log, now: time.Now}
}

// Routes registers the status endpoints on a fresh mux.
func (h *StatusHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", h.Health)
	mux.HandleFunc("/api/progress", h.ProgressHandler)
	return mux
}

func (h *StatusHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.Log.WithError(err).Error("Error marshalling JSON response")
		http.Error(w, `{"error":"Failed to marshal JSON response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func (h *StatusHandler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.Log.WithField("status", code).Warnf("API error: %s", message)
	h.respondWithJSON(w, code, map[string]string{"error": message})
}

// Health pings the database.
// GET /api/health
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Only GET method is allowed")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := h.DB.Ping(ctx); err != nil {
		h.Log.WithError(err).Warn("Health check failed: DB ping error")
		h.respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "message": "database connection error"})
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ProgressHandler reports the live counters and the stored checkpoint.
// GET /api/progress
func (h *StatusHandler) ProgressHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Only GET method is allowed")
		return
	}

	snap := models.ProgressSnapshot{
		RunID:          h.Progress.RunID(),
		Running:        h.Progress.Running(),
		TotalProcessed: h.Progress.Processed(),
		Elapsed:        services.FormatElapsed(h.Progress.Elapsed(h.now())),
	}
	cp, err := h.Checkpoints.Load()
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to read checkpoint: "+err.Error())
		return
	}
	snap.Checkpoint = cp
	h.respondWithJSON(w, http.StatusOK, snap)
}
