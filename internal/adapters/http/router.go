package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/asporlabs/aspor-intelligence/internal/core/domain"
	"github.com/asporlabs/aspor-intelligence/internal/core/usecase"
	"github.com/asporlabs/aspor-intelligence/internal/observability/metrics"
)

const serviceName = "api"

// RouterConfig carries the traffic-control knobs for the public API.
type RouterConfig struct {
	RateLimitRPS    float64
	RateLimitBurst  int
	MaxInFlight     int
	MaxInFlightWait time.Duration
}

type Router struct {
	uploadUC  *usecase.UploadURLUseCase
	extractUC *usecase.ExtractRunUseCase
	analyzeUC *usecase.AnalyzeRunUseCase
	statusUC  *usecase.RunStatusUseCase
	metrics   *metrics.HTTPServerMetrics
	cfg       RouterConfig
}

func NewRouter(
	uploadUC *usecase.UploadURLUseCase,
	extractUC *usecase.ExtractRunUseCase,
	analyzeUC *usecase.AnalyzeRunUseCase,
	statusUC *usecase.RunStatusUseCase,
	serverMetrics *metrics.HTTPServerMetrics,
	cfg RouterConfig,
) *Router {
	return &Router{
		uploadUC:  uploadUC,
		extractUC: extractUC,
		analyzeUC: analyzeUC,
		statusUC:  statusUC,
		metrics:   serverMetrics,
		cfg:       cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/uploads", rt.createUpload)
	mux.HandleFunc("POST /v1/runs", rt.startRun)
	mux.HandleFunc("POST /v1/runs/analyze", rt.analyzeRun)
	mux.HandleFunc("GET /v1/users/{userId}/runs/{runId}", rt.getRun)
	mux.HandleFunc("GET /v1/users/{userId}/runs", rt.listRuns)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.MaxInFlight, rt.cfg.MaxInFlightWait)
	handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) createUpload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileName string `json:"fileName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.FileName) == "" {
		writeJSONError(w, http.StatusBadRequest, "fileName is required")
		return
	}

	key, url, err := rt.uploadUC.IssueUploadURL(r.Context(), req.FileName)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"fileKey":   key,
		"uploadUrl": url,
	})
}

func (rt *Router) startRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string `json:"userId"`
		FileKey string `json:"fileKey"`
		RunID   string `json:"runId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeJSONError(w, http.StatusBadRequest, "userId is required")
		return
	}

	var (
		run        *domain.Run
		extraction domain.Extraction
		err        error
	)
	start := time.Now()
	switch {
	case strings.TrimSpace(req.RunID) != "":
		run, extraction, err = rt.extractUC.ResumeExtraction(r.Context(), req.UserID, req.RunID)
	case strings.TrimSpace(req.FileKey) != "":
		run, extraction, err = rt.extractUC.TriggerExtraction(r.Context(), req.UserID, req.FileKey)
	default:
		writeJSONError(w, http.StatusBadRequest, "fileKey or runId is required")
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordExtraction(serviceName, string(extraction.Outcome), extraction.Method, time.Since(start))
	}
	if err != nil {
		// A failed run is still a run: surface its record alongside the
		// error status so the client sees the FAILED state it will poll.
		if run != nil && run.Status == domain.StatusFailed {
			writeJSON(w, mapErrorToHTTPStatus(err), runResponse(run))
			return
		}
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if extraction.Outcome == domain.ExtractionDeferred {
		status = http.StatusAccepted
	}
	writeJSON(w, status, runResponse(run))
}

func (rt *Router) analyzeRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
		RunID  string `json:"runId"`
		Model  string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.RunID) == "" {
		writeJSONError(w, http.StatusBadRequest, "userId and runId are required")
		return
	}

	start := time.Now()
	run, analysis, err := rt.analyzeUC.TriggerAnalysis(r.Context(), req.UserID, req.RunID, domain.ModelVariant(req.Model))
	if rt.metrics != nil {
		rt.metrics.RecordAnalysis(serviceName, req.Model, string(analysis.Outcome), time.Since(start))
	}
	if err != nil {
		if run != nil && run.Status == domain.StatusFailed {
			writeJSON(w, mapErrorToHTTPStatus(err), runResponse(run))
			return
		}
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if analysis.Outcome == domain.AnalysisDeferred {
		status = http.StatusAccepted
	}
	writeJSON(w, status, runResponse(run))
}

func (rt *Router) getRun(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	runID := r.PathValue("runId")

	run, err := rt.statusUC.GetStatus(r.Context(), userID, runID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse(run))
}

func (rt *Router) listRuns(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	runs, err := rt.statusUC.History(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]map[string]any, 0, len(runs))
	for i := range runs {
		items = append(items, runResponse(&runs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId": userID,
		"runs":   items,
		"count":  len(items),
	})
}

// runResponse shapes a run for API clients. Nullable fields stay explicit so
// pollers can distinguish "not yet" from "absent".
func runResponse(run *domain.Run) map[string]any {
	resp := map[string]any{
		"runId":          run.RunID,
		"userId":         run.UserID,
		"status":         run.Status,
		"fileName":       run.FileName,
		"createdAt":      run.CreatedAt,
		"analysisResult": nil,
		"errorMessage":   nil,
		"completedAt":    nil,
	}
	if run.Model != "" {
		resp["model"] = run.Model
	}
	if run.ExtractedTextLength > 0 {
		resp["extractedTextLength"] = run.ExtractedTextLength
	}
	if run.ExtractionMethod != "" {
		resp["extractionMethod"] = run.ExtractionMethod
	}
	if run.ExtractedAt != nil {
		resp["extractedAt"] = run.ExtractedAt
	}
	if run.Status == domain.StatusCompleted {
		resp["analysisResult"] = run.AnalysisResult
		resp["completedAt"] = run.CompletedAt
	}
	if run.Status == domain.StatusFailed {
		resp["errorMessage"] = run.ErrorMessage
	}
	return resp
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= 500 {
		// 5xx details stay in the logs, keyed by request id.
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		writeJSONError(w, status, "internal error")
		return
	}
	writeJSONError(w, status, err.Error())
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
