// Package server is the HTTP front door: two authenticated POST
// endpoints that publish trigger events to the dispatch bus. It holds no
// pipeline logic itself.
package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sitewatch/internal/dispatch"
	"sitewatch/internal/logging"
	"sitewatch/internal/watcher"
)

// Server routes ingress requests onto the bus.
type Server struct {
	cfg       Config
	publisher dispatch.Publisher
	targets   []watcher.Target
	router    chi.Router
	logger    logging.Logger
}

// NewServer creates the ingress server. targets is the configured watch
// list, used to reject trigger requests for unknown URLs.
func NewServer(cfg Config, publisher dispatch.Publisher, targets []watcher.Target, logger logging.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		publisher: publisher,
		targets:   targets,
		router:    chi.NewRouter(),
		logger:    logger.With(logging.Field{Key: "component", Value: "server"}),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Group(func(r chi.Router) {
		r.Use(s.secretMiddleware(s.cfg.AlertSecretName, s.cfg.AlertSecretValue))
		r.Post("/alertmanager", s.handleAlertmanager)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.secretMiddleware(s.cfg.WatchSecretName, s.cfg.WatchSecretValue))
		// The whole remainder of the path is the target URL.
		r.Post("/sites/*", s.handleSiteCheck)
	})
}

// secretMiddleware guards a route group with a shared secret, accepted
// from the named header or a query parameter of the same name.
func (s *Server) secretMiddleware(name, value string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret := r.Header.Get(name)
			if secret == "" {
				secret = r.URL.Query().Get(name)
			}
			if secret == "" || secret != value {
				s.logger.Warn("invalid or missing secret",
					logging.Field{Key: "name", Value: name},
					logging.Field{Key: "path", Value: r.URL.Path})
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) handleSiteCheck(w http.ResponseWriter, r *http.Request) {
	siteURL := chi.URLParam(r, "*")

	known := false
	for _, t := range s.targets {
		if t.URL == siteURL {
			known = true
			break
		}
	}
	if !known {
		writeError(w, http.StatusNotFound, "url not found")
		return
	}

	payload, _ := json.Marshal(map[string]string{"url": siteURL})
	id, err := s.publisher.Publish(r.Context(), dispatch.TopicSiteChecks, payload)
	if err != nil {
		s.logger.Error("publish failed",
			logging.Field{Key: "topic", Value: dispatch.TopicSiteChecks},
			logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, "Server Error")
		return
	}

	s.logger.Info("published site-check event",
		logging.Field{Key: "url", Value: siteURL},
		logging.Field{Key: "message_id", Value: id})
	writeJSON(w, http.StatusAccepted, map[string]string{"message_id": id})
}

func (s *Server) handleAlertmanager(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil || !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	id, err := s.publisher.Publish(r.Context(), dispatch.TopicAlerts, body)
	if err != nil {
		s.logger.Error("publish failed",
			logging.Field{Key: "topic", Value: dispatch.TopicAlerts},
			logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, "Server Error")
		return
	}

	s.logger.Info("published alertmanager event",
		logging.Field{Key: "message_id", Value: id},
		logging.Field{Key: "bytes", Value: len(body)})
	writeJSON(w, http.StatusAccepted, map[string]string{"message_id": id})
}

// ServeHTTP implements http.Handler with request logging.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if r.Body != nil && r.Method == http.MethodPost {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			fields = append(fields, logging.Field{Key: "body_bytes", Value: len(bodyBytes)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)
	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
