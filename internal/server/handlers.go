// # internal/server/handlers.go
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"
	"unicode/utf8"

	"reviewd/internal/analyzer"
	"reviewd/internal/history"
	"reviewd/internal/observability"
)

const homeMessage = "Code Review Tool Backend Running"

type analyzeRequest struct {
	Code *string `json:"code"`
}

type historyResponse struct {
	Items []history.Record `json:"items"`
}

type healthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": homeMessage})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state := s.state.Load()
	if !s.admit(state, w, r) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, state.cfg.Limits.MaxSourceBytes)

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "request body must be JSON")
		return
	}
	if req.Code == nil {
		writeError(w, http.StatusBadRequest, "missing required field: code")
		return
	}

	start := time.Now()
	report := analyzer.Analyze(r.Context(), []byte(*req.Code), state.opts)
	s.record(history.SourceAPI, *req.Code, report, time.Since(start))
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state := s.state.Load()
	if !s.admit(state, w, r) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, state.cfg.Limits.MaxSourceBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "multipart form with a 'file' field is required")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !state.uploadAllowed(name) {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("file %q does not match the allowed patterns", name))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read uploaded file")
		return
	}
	if !utf8.Valid(data) {
		writeError(w, http.StatusBadRequest, "uploaded file must be UTF-8 encoded text")
		return
	}

	start := time.Now()
	report := analyzer.Analyze(r.Context(), data, state.opts)
	s.record(history.SourceUpload, string(data), report, time.Since(start))
	writeJSON(w, http.StatusOK, report)
}

// admit applies per-client rate limiting to the analyze routes.
func (s *Server) admit(state *runtimeState, w http.ResponseWriter, r *http.Request) bool {
	if state.limiter == nil {
		return true
	}
	ip := GetClientIP(r)
	if !state.limiter.Get(ip).Allow(1) {
		observability.RateLimitedTotal.Inc()
		w.Header().Set("Retry-After", "1")
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return false
	}
	return true
}

// record enqueues a history row for a completed analysis. The submitted
// source itself is never stored.
func (s *Server) record(source, code string, report analyzer.Report, elapsed time.Duration) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(history.Record{
		Source:     source,
		LineCount:  analyzer.CountLines(code),
		Bugs:       report.Summary.Bugs,
		Warnings:   report.Summary.Warnings,
		Info:       report.Summary.Info,
		Errors:     report.Summary.Errors,
		Total:      report.Summary.Total,
		DurationMS: elapsed.Milliseconds(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusOK, historyResponse{Items: []history.Record{}})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	records, err := s.store.Recent(limit)
	if err != nil {
		slog.Error("history query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not read review history")
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Items: records})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := healthStatus{
		Status:    "up",
		Timestamp: time.Now().UTC(),
		Components: map[string]string{
			"analyzer": "ok",
		},
	}
	switch {
	case s.store == nil:
		status.Components["history"] = "disabled"
	case s.store.Ping(r.Context()) != nil:
		status.Status = "degraded"
		status.Components["history"] = "unreachable"
	default:
		status.Components["history"] = "ok"
	}

	code := http.StatusOK
	if status.Status != "up" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(s.openapi); err != nil {
		slog.Warn("write openapi document", "error", err)
	}
}
