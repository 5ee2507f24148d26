// Package server exposes the prediction workflow over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emezpr/Sureodds/internal/cache"
	"github.com/emezpr/Sureodds/internal/fetcher"
	"github.com/emezpr/Sureodds/internal/gemini"
	"github.com/emezpr/Sureodds/internal/logger"
	"github.com/emezpr/Sureodds/internal/models"
	"github.com/emezpr/Sureodds/internal/ws"
)

// Fetcher runs the prediction workflow.
type Fetcher interface {
	Fetch(ctx context.Context, forceRefresh bool, exclude []string) (*models.FetchResult, error)
}

// Notifier pushes fresh picks to a chat. Optional.
type Notifier interface {
	SendPredictions(res *models.FetchResult) error
}

// Publisher emits fresh picks to an event stream. Optional.
type Publisher interface {
	PublishUpdated(ctx context.Context, res *models.FetchResult) error
}

// Config tunes the HTTP surface.
type Config struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// Server wires the fetcher, cache, hub, and side channels behind the API.
type Server struct {
	cfg       Config
	fetcher   Fetcher
	store     cache.Store
	hub       *ws.Hub
	notifier  Notifier
	publisher Publisher
	state     *stateHolder
}

// New creates a Server. notifier and publisher may be nil to disable those
// side channels.
func New(cfg Config, f Fetcher, store cache.Store, hub *ws.Hub, notifier Notifier, publisher Publisher) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 90 * time.Second
	}
	return &Server{
		cfg:       cfg,
		fetcher:   f,
		store:     store,
		hub:       hub,
		notifier:  notifier,
		publisher: publisher,
		state:     &stateHolder{},
	}
}

// Router assembles the chi router with middleware and all routes. The
// WebSocket endpoint sits outside the timeout group so connections can
// outlive the request deadline.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(s.cfg.RequestTimeout))

		r.Get("/healthz", s.handleHealthz)
		r.Handle("/metrics", promhttp.Handler())

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/predictions", s.handleGetPredictions)
			r.Post("/predictions/refresh", s.handleRefresh)
			r.Get("/state", s.handleState)
		})
	})

	if s.hub != nil {
		r.Get("/api/v1/ws", s.hub.HandleWS)
	}

	return r
}

// Refresh runs one fetch, updates the application state, and fans the new
// snapshot out to WebSocket clients. Fresh results additionally notify the
// chat and the event stream when configured; their failures only log.
func (s *Server) Refresh(ctx context.Context, force bool, exclude []string) (*models.FetchResult, error) {
	s.broadcast(s.state.setLoading())

	res, err := s.fetcher.Fetch(ctx, force, exclude)
	if err != nil {
		s.broadcast(s.state.applyError(err))
		return nil, err
	}
	s.broadcast(s.state.applyResult(res))

	if !res.FromCache {
		if s.notifier != nil {
			if nerr := s.notifier.SendPredictions(res); nerr != nil {
				logger.Warn("Telegram notification failed: %v", nerr)
			}
		}
		if s.publisher != nil {
			if perr := s.publisher.PublishUpdated(ctx, res); perr != nil {
				logger.Warn("Kafka publish failed: %v", perr)
			}
		}
	}
	return res, nil
}

// State returns the current application state snapshot.
func (s *Server) State() models.AppState {
	return s.state.snapshot()
}

func (s *Server) broadcast(state models.AppState) {
	if s.hub != nil {
		s.hub.Broadcast(state)
	}
}

func (s *Server) handleGetPredictions(w http.ResponseWriter, r *http.Request) {
	res, err := s.Refresh(r.Context(), false, nil)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type refreshRequest struct {
	ExcludeMatches []string `json:"excludeMatches"`
}

// handleRefresh forces a live fetch. The optional body lists matches the
// model should avoid repeating.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	res, err := s.Refresh(r.Context(), true, req.ExcludeMatches)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.snapshot())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("cache unhealthy: %w", err))
		return
	}
	resp := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	}
	if s.hub != nil {
		resp["wsClients"] = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusForError maps workflow errors onto HTTP statuses: configuration
// problems are ours (500), quota is the client's to wait out (429), and
// upstream or parse trouble is a bad gateway (502).
func statusForError(err error) int {
	var rlErr *fetcher.RateLimitError
	var mrErr *fetcher.MalformedResponseError
	var apiErr *gemini.APIError
	var urlErr *url.Error
	switch {
	case errors.Is(err, fetcher.ErrAPIKeyMissing):
		return http.StatusInternalServerError
	case errors.As(err, &rlErr):
		return http.StatusTooManyRequests
	case errors.As(err, &mrErr), errors.Is(err, fetcher.ErrNoPicks):
		return http.StatusBadGateway
	case errors.As(err, &apiErr), errors.As(err, &urlErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug("%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}
