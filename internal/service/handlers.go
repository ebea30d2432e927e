package service

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/rpattn/dashclone/internal/coverage"
	"github.com/rpattn/dashclone/internal/domain"
	"github.com/rpattn/dashclone/internal/repository"
)

// Handler exposes the service over JSON HTTP endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes registers the API endpoints on a fresh mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", h.status)
	mux.HandleFunc("POST /api/run", h.runNow)
	mux.HandleFunc("POST /api/stop", h.stop)
	mux.HandleFunc("GET /api/activity", h.activity)
	mux.HandleFunc("GET /api/activity/stats", h.activityStats)
	mux.HandleFunc("GET /api/tasks", h.listTasks)
	mux.HandleFunc("PUT /api/tasks", h.upsertTask)
	mux.HandleFunc("DELETE /api/tasks/{type}", h.deleteTask)
	mux.HandleFunc("GET /api/databases", h.scanDatabases)
	mux.HandleFunc("GET /api/coverage", h.coverage)
	mux.HandleFunc("GET /api/coverage.xlsx", h.coverageXLSX)
	return mux
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Status())
}

func (h *Handler) runNow(w http.ResponseWriter, r *http.Request) {
	// The check outlives the request; it is bounded by the service
	// lifetime, not the HTTP client's patience.
	go h.service.RunCheck(h.service.runContext())
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "check started"})
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	if h.service.Stop() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "stop requested"})
		return
	}
	writeJSON(w, http.StatusConflict, map[string]string{"error": "no check running"})
}

func (h *Handler) activity(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 200)
	offset := queryInt(r, "offset", 0)
	entries, err := h.service.activity.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) activityStats(w http.ResponseWriter, r *http.Request) {
	since := time.Now().AddDate(0, 0, -queryInt(r, "days", 30))
	stats, err := h.service.activity.Stats(r.Context(), since)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	configs, err := h.service.tasks.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configs)
}

func (h *Handler) upsertTask(w http.ResponseWriter, r *http.Request) {
	var config domain.TaskConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task config: " + err.Error()})
		return
	}
	if config.DatabaseType == "" || config.TemplateDashboardID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "database_type and template_dashboard_id are required"})
		return
	}
	saved, err := h.service.tasks.Upsert(r.Context(), config)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	err := h.service.tasks.Delete(r.Context(), r.PathValue("type"))
	if err != nil {
		if errors.Is(err, repository.ErrTaskConfigNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "task config not found"})
			return
		}
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) scanDatabases(w http.ResponseWriter, r *http.Request) {
	infos, err := h.service.identifier.ScanAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

func (h *Handler) coverage(w http.ResponseWriter, r *http.Request) {
	report, err := h.buildCoverage(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) coverageXLSX(w http.ResponseWriter, r *http.Request) {
	report, err := h.buildCoverage(r)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="coverage.xlsx"`)
	if err := report.WriteXLSX(w); err != nil {
		log.Printf("[HTTP] error: failed to stream coverage workbook: %v", err)
	}
}

func (h *Handler) buildCoverage(r *http.Request) (*coverage.Report, error) {
	infos, err := h.service.identifier.ScanAll(r.Context())
	if err != nil {
		return nil, err
	}
	return h.service.checker.Build(r.Context(), infos)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] error: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	log.Printf("[HTTP] error: %v", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
