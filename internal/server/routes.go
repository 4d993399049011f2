package server

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/b0ase/cardlog/internal/db"
	"github.com/b0ase/cardlog/internal/scanlog"
)

const defaultDaysToKeep = 90

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("POST /log", s.handleLog)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/logs/date/{date}", s.handleLogsByDate)
	mux.HandleFunc("POST /api/cleanup", s.handleCleanup)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	if s.hub != nil {
		mux.Handle("GET /ws", s.hub)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// limitParam reads ?limit=, falling back to the default for missing or
// invalid values and capping at the configured maximum.
func (s *Server) limitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		limit = defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	return limit
}

type logRequest struct {
	UID  string `json:"uid"`
	User string `json:"user"`
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return
	}

	var req logRequest
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
	} else {
		req.UID = r.FormValue("uid")
		req.User = r.FormValue("user")
	}

	rec, err := s.scans.Record(r.Context(), req.UID, req.User, scanlog.SourceHTTP)
	if errors.Is(err, scanlog.ErrMissingUID) {
		writeError(w, http.StatusBadRequest, "Missing UID")
		return
	}
	if err != nil {
		s.log.Errorf("Failed to create log entry: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create log entry: "+err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{
		"message": "Log entry created",
		"log":     rec,
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := db.RecentScans(s.limitParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch logs: "+err.Error())
		return
	}
	recs := db.Records(logs)
	writeJSON(w, map[string]interface{}{
		"logs":  recs,
		"count": len(recs),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := db.GetStats(s.clock.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch stats: "+err.Error())
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		writeError(w, http.StatusBadRequest, "Search term required")
		return
	}
	logs, err := db.SearchScans(term, s.limitParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Search failed: "+err.Error())
		return
	}
	recs := db.Records(logs)
	writeJSON(w, map[string]interface{}{
		"logs":        recs,
		"count":       len(recs),
		"search_term": term,
	})
}

func (s *Server) handleLogsByDate(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format. Use YYYY-MM-DD")
		return
	}
	logs, err := db.ScansByDate(date, s.limitParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch logs for date: "+err.Error())
		return
	}
	recs := db.Records(logs)
	writeJSON(w, map[string]interface{}{
		"logs":  recs,
		"count": len(recs),
		"date":  date,
	})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DaysToKeep *int `json:"days_to_keep"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
	}
	days := defaultDaysToKeep
	if req.DaysToKeep != nil {
		days = *req.DaysToKeep
	}
	if days < 1 {
		writeError(w, http.StatusBadRequest, "Days to keep must be at least 1")
		return
	}

	deleted, err := db.CleanupOlderThan(s.clock.Now().AddDate(0, 0, -days))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Cleanup failed: "+err.Error())
		return
	}
	s.log.Infof("Cleanup removed %d logs older than %d days", deleted, days)
	writeJSON(w, map[string]interface{}{
		"message":       "Cleanup completed",
		"deleted_count": deleted,
		"days_to_keep":  days,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now().Format("2006-01-02T15:04:05.000000")
	err := db.Ping()
	var stats *db.Stats
	if err == nil {
		stats, err = db.GetStats(s.clock.Now())
	}
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": now,
		})
		return
	}
	resp := map[string]interface{}{
		"status":    "healthy",
		"timestamp": now,
		"database":  "connected",
		"stats":     stats,
	}
	if s.hub != nil {
		resp["push_clients"] = s.hub.ClientCount()
	}
	writeJSON(w, resp)
}
