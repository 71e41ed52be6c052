package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"PerpCore/internal/ingestion"
	"PerpCore/internal/observability"
	"PerpCore/internal/persistence"
	"PerpCore/internal/projection"
	"PerpCore/internal/query"
)

// HTTPServer is the JSON API: queries, admin operations, manual event
// injection, health and metrics.
type HTTPServer struct {
	server  *http.Server
	deps    *Deps
	metrics *observability.Metrics
	log     zerolog.Logger
}

// Deps holds everything the API handlers reach into.
type Deps struct {
	DB            *sql.DB
	Query         *query.Service
	Ingest        *ingestion.IngestService
	SnapshotMgr   *persistence.SnapshotManager
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
	StartTime     time.Time
}

func NewHTTPServer(addr string, deps *Deps, log zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		deps:    deps,
		metrics: deps.Metrics,
		log:     log.With().Str("component", "http").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/liquidity", s.handleLiquidity)
	mux.HandleFunc("GET /v1/markets/{token}/balances", s.handleMarketBalances)
	mux.HandleFunc("GET /v1/actions", s.handleActionHistory)
	mux.HandleFunc("GET /v1/positions/history", s.handlePositionHistory)
	mux.HandleFunc("GET /v1/journals", s.handleJournals)
	mux.HandleFunc("GET /v1/prices", s.handlePrices)
	mux.HandleFunc("POST /v1/ingest/{type}", s.handleIngest)
	mux.HandleFunc("POST /v1/admin/rebuild-projections", s.handleRebuild)
	mux.HandleFunc("GET /v1/admin/integrity", s.handleIntegrity)
	mux.HandleFunc("GET /v1/admin/event-log", s.handleEventLogInfo)

	if deps.HealthChecker != nil {
		mux.HandleFunc("/healthz", deps.HealthChecker.LivenessHandler)
		mux.HandleFunc("/readyz", deps.HealthChecker.ReadinessHandler)
	}
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until ctx is cancelled (blocking).
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.log.Info().Msg("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// --- handlers ---

func (s *HTTPServer) handleLiquidity(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerParam(w, r)
	if !ok {
		return
	}
	marketToken := r.URL.Query().Get("market")
	if marketToken == "" {
		s.writeError(w, http.StatusBadRequest, "market is required")
		return
	}

	resp, err := s.deps.Query.GetLiquidity(r.Context(), owner, marketToken)
	if err != nil {
		s.serveError(w, "liquidity", err)
		return
	}
	s.writeJSON(w, resp)
}

func (s *HTTPServer) handleMarketBalances(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if token == "" {
		s.writeError(w, http.StatusBadRequest, "market token is required")
		return
	}

	resp, err := s.deps.Query.GetMarketBalances(r.Context(), token)
	if err != nil {
		s.serveError(w, "market_balances", err)
		return
	}
	s.writeJSON(w, resp)
}

func (s *HTTPServer) handleActionHistory(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerParam(w, r)
	if !ok {
		return
	}
	limit := limitParam(r, 50, 500)
	after := afterParam(r)

	history, err := s.deps.Query.GetActionHistory(r.Context(), owner, limit, after)
	if err != nil {
		s.serveError(w, "actions", err)
		return
	}
	s.writeJSON(w, map[string]any{"actions": history})
}

func (s *HTTPServer) handlePositionHistory(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerParam(w, r)
	if !ok {
		return
	}
	limit := limitParam(r, 50, 500)
	after := afterParam(r)

	var marketToken *string
	if m := r.URL.Query().Get("market"); m != "" {
		marketToken = &m
	}

	history, err := s.deps.Query.GetPositionHistory(r.Context(), owner, marketToken, limit, after)
	if err != nil {
		s.serveError(w, "position_history", err)
		return
	}
	s.writeJSON(w, map[string]any{"positions": history})
}

func (s *HTTPServer) handleJournals(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerParam(w, r)
	if !ok {
		return
	}
	limit := limitParam(r, 100, 1000)
	after := afterParam(r)

	entries, err := s.deps.Query.GetJournalHistory(r.Context(), owner, limit, after)
	if err != nil {
		s.serveError(w, "journals", err)
		return
	}
	s.writeJSON(w, map[string]any{"journals": entries})
}

func (s *HTTPServer) handlePrices(w http.ResponseWriter, r *http.Request) {
	resp, err := s.deps.Query.GetLatestPrices(r.Context())
	if err != nil {
		s.serveError(w, "prices", err)
		return
	}
	s.writeJSON(w, resp)
}

func (s *HTTPServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	eventType := r.PathValue("type")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read body failed")
		return
	}

	if err := s.deps.Ingest.Inject(r.Context(), eventType, body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"accepted": true})
}

func (s *HTTPServer) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if err := projection.RebuildProjections(r.Context(), s.deps.DB); err != nil {
		s.serveError(w, "rebuild", err)
		return
	}
	s.writeJSON(w, map[string]any{"rebuilt": true})
}

func (s *HTTPServer) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Query.VerifyIntegrity(r.Context())
	if err != nil {
		s.serveError(w, "integrity", err)
		return
	}
	s.writeJSON(w, report)
}

func (s *HTTPServer) handleEventLogInfo(w http.ResponseWriter, r *http.Request) {
	latest, err := s.deps.SnapshotMgr.GetLatestSequence(r.Context())
	if err != nil {
		s.serveError(w, "event_log", err)
		return
	}
	s.writeJSON(w, map[string]any{
		"last_sequence":  latest,
		"uptime_seconds": int64(time.Since(s.deps.StartTime).Seconds()),
	})
}

// --- helpers ---

func (s *HTTPServer) ownerParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.URL.Query().Get("owner")
	if raw == "" {
		s.writeError(w, http.StatusBadRequest, "owner is required")
		return uuid.Nil, false
	}
	owner, err := uuid.Parse(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid owner: %v", err))
		return uuid.Nil, false
	}
	return owner, true
}

func limitParam(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > max {
		return def
	}
	return n
}

func afterParam(r *http.Request) *int64 {
	raw := r.URL.Query().Get("after")
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("write response failed")
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *HTTPServer) serveError(w http.ResponseWriter, op string, err error) {
	if s.metrics != nil {
		s.metrics.QueryErrors.WithLabelValues(op).Inc()
	}
	s.log.Error().Err(err).Str("op", op).Msg("request failed")
	s.writeError(w, http.StatusInternalServerError, "internal error")
}
