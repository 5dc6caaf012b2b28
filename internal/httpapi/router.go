package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gambitlabs/insights/internal/analyzer"
	"github.com/gambitlabs/insights/internal/chess"
	"github.com/gambitlabs/insights/internal/scheduler"
	"github.com/gambitlabs/insights/internal/store"
)

// JobService is the scheduler surface the API needs.
type JobService interface {
	Submit(in analyzer.GameInput, cfg analyzer.EngineConfig) (string, error)
	Status(id string) (scheduler.Status, error)
	Cancel(id string) error
}

// ResultStore reads back persisted analyses.
type ResultStore interface {
	GetGameAnalysis(ctx context.Context, platform, gameID, configKey string) (*analyzer.GameAnalysis, error)
}

// Handler serves the analysis API.
type Handler struct {
	jobs       JobService
	results    ResultStore
	defaultCfg analyzer.EngineConfig
	log        zerolog.Logger
}

// NewRouter wires the API routes plus health, metrics, and pprof endpoints.
// defaultCfg fills in engine settings a submit request leaves zero.
func NewRouter(log zerolog.Logger, jobs JobService, results ResultStore, defaultCfg analyzer.EngineConfig) http.Handler {
	h := &Handler{
		jobs:       jobs,
		results:    results,
		defaultCfg: defaultCfg,
		log:        log,
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", http.HandlerFunc(h.health))
	mux.Handle("/readyz", http.HandlerFunc(h.health))
	mux.Handle("/v1/analysis", http.HandlerFunc(h.submit))
	mux.Handle("/v1/analysis/jobs/", http.HandlerFunc(h.job))
	mux.Handle("/v1/analysis/result", http.HandlerFunc(h.result))
	mux.Handle("/metrics", promhttp.Handler())

	// pprof endpoints
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return CORS(RequestID(AccessLog(log, mux)))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// submit accepts a game for analysis and returns the job ID.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.GameID == "" || req.Platform == "" {
		http.Error(w, "game_id and platform are required", http.StatusBadRequest)
		return
	}
	if len(req.Moves) == 0 {
		http.Error(w, "moves must not be empty", http.StatusBadRequest)
		return
	}

	cfg := h.defaultCfg
	if req.Config != nil {
		cfg = req.Config.merge(h.defaultCfg)
	}

	id, err := h.jobs.Submit(analyzer.GameInput{
		GameID:   req.GameID,
		UserID:   req.UserID,
		Platform: req.Platform,
		Moves:    req.Moves,
		Rating:   req.Rating,
	}, cfg)
	switch {
	case errors.Is(err, scheduler.ErrBusy):
		http.Error(w, "queue full, retry later", http.StatusTooManyRequests)
		return
	case errors.Is(err, chess.ErrIllegalMove), errors.Is(err, chess.ErrEmptyGame):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.log.Error().Err(err).Str("game_id", req.GameID).Msg("submit failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, SubmitResponse{JobID: id, ConfigKey: cfg.Key()})
}

// job serves GET (status) and DELETE (cancel) for /v1/analysis/jobs/{id}.
func (h *Handler) job(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/v1/analysis/jobs"))
	if len(parts) != 1 {
		http.Error(w, "job ID required", http.StatusBadRequest)
		return
	}
	id := parts[0]

	switch r.Method {
	case http.MethodGet:
		st, err := h.jobs.Status(id)
		if errors.Is(err, scheduler.ErrJobNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, st)
	case http.MethodDelete:
		err := h.jobs.Cancel(id)
		if errors.Is(err, scheduler.ErrJobNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// result returns a persisted analysis by (platform, game_id, config).
func (h *Handler) result(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	platform := r.URL.Query().Get("platform")
	gameID := r.URL.Query().Get("game_id")
	if platform == "" || gameID == "" {
		http.Error(w, "platform and game_id are required", http.StatusBadRequest)
		return
	}
	configKey := r.URL.Query().Get("config")
	if configKey == "" {
		configKey = h.defaultCfg.Key()
	}

	ga, err := h.results.GetGameAnalysis(r.Context(), platform, gameID, configKey)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "analysis not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("game_id", gameID).Msg("result lookup failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, ToAnalysisResponse(ga))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// splitPath splits a URL path into non-empty segments.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
