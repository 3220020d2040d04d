package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/callbridge/internal/calllog"
	"github.com/ent0n29/callbridge/internal/config"
	"github.com/ent0n29/callbridge/internal/observability"
	"github.com/ent0n29/callbridge/internal/session"
)

// MediaHandler owns an upgraded telephony connection until it closes.
type MediaHandler interface {
	HandleConn(ctx context.Context, conn *websocket.Conn)
}

type Server struct {
	cfg      config.Config
	registry *session.Registry
	media    MediaHandler
	store    calllog.Store
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, registry *session.Registry, media MediaHandler, store calllog.Store, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		registry: registry,
		media:    media,
		store:    store,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Telephony providers connect without a browser Origin; only
				// same-origin browser connections are allowed otherwise.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/media", s.handleMediaWS)
	r.Get("/v1/calls", s.handleListCalls)
	r.Get("/v1/calls/recent", s.handleRecentCalls)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"upstream_configured": s.cfg.GeminiAPIKey != "",
		"call_log":            s.storeMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	status := "ready"
	code := http.StatusOK
	if s.cfg.GeminiAPIKey == "" {
		status = "missing_upstream_credentials"
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]any{
		"status":       status,
		"active_calls": s.registry.ActiveCount(),
	})
}

func (s *Server) handleMediaWS(w http.ResponseWriter, r *http.Request) {
	if s.media == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "media gateway not configured")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.media.HandleConn(r.Context(), conn)
}

type callSummary struct {
	CallSID   string    `json:"call_sid"`
	StreamSID string    `json:"stream_sid"`
	State     string    `json:"state"`
	Greeted   bool      `json:"greeted"`
	StartedAt time.Time `json:"started_at"`
	AgeMS     int64     `json:"age_ms"`
}

func (s *Server) handleListCalls(w http.ResponseWriter, _ *http.Request) {
	calls := s.registry.Snapshot()
	out := make([]callSummary, 0, len(calls))
	for _, c := range calls {
		out = append(out, callSummary{
			CallSID:   c.CallSID,
			StreamSID: c.StreamSID,
			State:     string(c.State()),
			Greeted:   c.Greeted(),
			StartedAt: c.StartedAt,
			AgeMS:     c.Age().Milliseconds(),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"calls": out})
}

func (s *Server) handleRecentCalls(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "call log not configured")
		return
	}

	limit := 20
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"calls": records})
}

func (s *Server) storeMode() string {
	switch s.store.(type) {
	case nil:
		return "disabled"
	case *calllog.PostgresStore:
		return "postgres"
	default:
		return "in-memory"
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
