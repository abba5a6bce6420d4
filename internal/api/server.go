// Package api exposes the drop pipeline over HTTP so other local tools can
// open files in the running editor without shelling out.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/emacshere/internal/app"
	"github.com/bryanchriswhite/emacshere/internal/config"
	"github.com/bryanchriswhite/emacshere/internal/dnd"
	"github.com/bryanchriswhite/emacshere/internal/logger"
	"github.com/bryanchriswhite/emacshere/internal/window"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	runner    *app.Runner
	configMgr *config.Manager
	upgrader  websocket.Upgrader
	log       *zerolog.Logger

	// dropMu keeps a single XdndSelection owner at a time
	dropMu sync.Mutex
}

// NewServer creates a new API server
func NewServer(runner *app.Runner, configMgr *config.Manager) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		runner:    runner,
		configMgr: configMgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: logger.WithComponent("api"),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/candidates", s.handleCandidates).Methods("GET")
	api.HandleFunc("/drop", s.handleDrop).Methods("POST")
	api.HandleFunc("/drop/stream", s.handleDropStream).Methods("GET")
}

// Handler returns the router wrapped in the CORS middleware
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on localhost:port until the listener fails
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	s.log.Info().Str("addr", addr).Msg("Starting server")
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// DropRequest is the body of POST /api/drop
type DropRequest struct {
	Path string `json:"path"`
}

// DropResponse reports the outcome of a drop
type DropResponse struct {
	Session *dnd.Session   `json:"session,omitempty"`
	Result  *window.Result `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// StreamMessage is one frame of /api/drop/stream. Type is "state" for every
// session transition and "result" for the last frame.
type StreamMessage struct {
	Type    string         `json:"type"`
	Status  int            `json:"status,omitempty"`
	Session *dnd.Session   `json:"session,omitempty"`
	Result  *window.Result `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// statusFor maps a pipeline error to an HTTP status
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, window.ErrNoMatchingWindow):
		return http.StatusNotFound
	case errors.Is(err, window.ErrNoVisibleWindow),
		errors.Is(err, dnd.ErrRejected),
		errors.Is(err, dnd.ErrNotAware):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func validPath(path string) error {
	if path == "" {
		return errors.New("path is required")
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("path must be absolute: %q", path)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) open(path string, observe func(dnd.Session)) (*window.Result, *dnd.Session, error) {
	s.dropMu.Lock()
	defer s.dropMu.Unlock()
	return s.runner.Open(path, observe)
}

// HTTP Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.configMgr.Get()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	listing, err := s.runner.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	var req DropRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validPath(req.Path); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, sess, err := s.open(req.Path, nil)
	resp := DropResponse{Session: sess, Result: res}
	if err != nil {
		resp.Error = err.Error()
		s.log.Warn().Err(err).Str("path", req.Path).Msg("Drop failed")
	}
	writeJSON(w, statusFor(err), resp)
}

func (s *Server) handleDropStream(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if err := validPath(path); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	// A broken stream does not abort the drop; later frames are dropped.
	streaming := true
	send := func(msg StreamMessage) {
		if !streaming {
			return
		}
		if err := conn.WriteJSON(msg); err != nil {
			s.log.Warn().Err(err).Msg("WebSocket write error")
			streaming = false
		}
	}

	res, sess, err := s.open(path, func(sess dnd.Session) {
		send(StreamMessage{Type: "state", Session: &sess})
	})
	final := StreamMessage{
		Type:    "result",
		Status:  statusFor(err),
		Session: sess,
		Result:  res,
	}
	if err != nil {
		final.Error = err.Error()
	}
	send(final)
}
