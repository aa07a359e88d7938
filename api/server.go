// Package api provides the HTTP REST API server for TradeSwarm.
//
// It exposes endpoints for running the trading analysis pipeline, querying
// and appending situational memories, post-outcome reflection, saved report
// retrieval, and WebSocket streaming of session events.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seenimoa/tradeswarm/internal/config"
	"github.com/seenimoa/tradeswarm/internal/memory"
	"github.com/seenimoa/tradeswarm/internal/reflection"
	"github.com/seenimoa/tradeswarm/internal/trading"
)

// Server is the HTTP API server.
type Server struct {
	router chi.Router
	cfg    *config.Config
	env    *trading.Env
	wsHub  *WSHub
}

// NewServer wires the full runtime from configuration and creates the server.
func NewServer(cfg *config.Config) (*Server, error) {
	env, err := trading.BuildEnv(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	return NewServerWithEnv(cfg, env), nil
}

// NewServerWithEnv creates a server around an already wired runtime.
func NewServerWithEnv(cfg *config.Config, env *trading.Env) *Server {
	srv := &Server{
		cfg:   cfg,
		env:   env,
		wsHub: NewWSHub(),
	}
	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe starts the HTTP server with graceful shutdown.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // analysis runs are long
		IdleTimeout:  60 * time.Second,
	}

	go s.wsHub.Run()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api: HTTP server error: %v", err)
		}
	}()

	<-done
	log.Println("api: shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/providers/health", s.handleProvidersHealth)

		// Full analysis pipeline
		r.Post("/analyze", s.handleAnalyze)

		// Reflection
		r.Post("/reflect", s.handleReflect)

		// Situational memories
		r.Post("/memories/{collection}/query", s.handleMemoriesQuery)
		r.Post("/memories/{collection}", s.handleMemoriesAdd)
		r.Get("/memories/{collection}/count", s.handleMemoriesCount)

		// Saved reports
		r.Get("/reports/{subject}/{date}", s.handleGetReport)

		// WebSocket session events
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// AnalyzeRequest is the body for POST /api/v1/analyze.
type AnalyzeRequest struct {
	Company string `json:"company"`
	Date    string `json:"date,omitempty"` // YYYY-MM-DD, default today
}

// ReflectRequest is the body for POST /api/v1/reflect.
type ReflectRequest struct {
	State   reflection.State `json:"state"`
	Outcome string           `json:"outcome"`
}

// MemoriesQueryRequest is the body for POST /api/v1/memories/{collection}/query.
type MemoriesQueryRequest struct {
	Situation string `json:"situation"`
	K         int    `json:"k,omitempty"`
}

// MemoriesAddRequest is the body for POST /api/v1/memories/{collection}.
type MemoriesAddRequest struct {
	Pairs []memory.Pair `json:"pairs"`
}

var tickerPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,16}$`)

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":  "ok",
			"version": "dev",
			"time":    time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func (s *Server) handleProvidersHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	health := s.env.Provider.HealthCheck(ctx)
	data := make(map[string]string, len(health))
	for name, err := range health {
		if err != nil {
			data[name] = err.Error()
		} else {
			data[name] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !tickerPattern.MatchString(req.Company) {
		writeError(w, http.StatusBadRequest, "company ticker is required")
		return
	}
	if req.Date == "" {
		req.Date = time.Now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date; use YYYY-MM-DD")
		return
	}

	s.wsHub.Broadcast(WSMessage{
		Type: "analysis_started",
		Data: map[string]string{"company": req.Company, "date": req.Date},
	})

	out, err := s.env.Graph.Propagate(r.Context(), req.Company, req.Date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.wsHub.Broadcast(WSMessage{
		Type: "analysis_complete",
		Data: map[string]string{
			"company":  req.Company,
			"date":     req.Date,
			"decision": out.FinalDecision,
		},
	})

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: out})
}

func (s *Server) handleReflect(w http.ResponseWriter, r *http.Request) {
	var req ReflectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Outcome == "" {
		writeError(w, http.StatusBadRequest, "outcome is required")
		return
	}

	reflections := s.env.Reflection.ReflectOnAll(r.Context(), req.State, req.Outcome)
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: reflections})
}

func (s *Server) collection(w http.ResponseWriter, r *http.Request) *memory.Store {
	name := chi.URLParam(r, "collection")
	store, ok := s.env.Stores[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown memory collection: "+name)
		return nil
	}
	return store
}

func (s *Server) handleMemoriesQuery(w http.ResponseWriter, r *http.Request) {
	store := s.collection(w, r)
	if store == nil {
		return
	}

	var req MemoriesQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Situation == "" {
		writeError(w, http.StatusBadRequest, "situation is required")
		return
	}
	k := req.K
	if k <= 0 {
		k = s.cfg.Reflection.MaxMatches
	}

	matches, err := store.Query(r.Context(), req.Situation, k)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: matches})
}

func (s *Server) handleMemoriesAdd(w http.ResponseWriter, r *http.Request) {
	store := s.collection(w, r)
	if store == nil {
		return
	}

	var req MemoriesAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Pairs) == 0 {
		writeError(w, http.StatusBadRequest, "pairs are required")
		return
	}

	inserted, err := store.Append(r.Context(), req.Pairs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    map[string]int{"inserted": inserted},
	})
}

func (s *Server) handleMemoriesCount(w http.ResponseWriter, r *http.Request) {
	store := s.collection(w, r)
	if store == nil {
		return
	}
	count, err := store.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    map[string]int{"count": count},
	})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	date := chi.URLParam(r, "date")

	sections, err := s.env.Reports.Sections(subject, date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(sections) == 0 {
		writeError(w, http.StatusNotFound, "no report for "+subject+" on "+date)
		return
	}

	data := make(map[string]string, len(sections))
	for _, section := range sections {
		content, err := s.env.Reports.Read(subject, date, section)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		data[section] = content
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

// ============================================================
// Helpers
// ============================================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: failed to write JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}

// ============================================================
// WebSocket Hub
// ============================================================

// WSMessage is a message sent over WebSocket connections.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// WSHub manages WebSocket connections and session event broadcasting.
type WSHub struct {
	mu         sync.RWMutex
	clients    map[*WSClient]bool
	broadcast  chan WSMessage
	register   chan *WSClient
	unregister chan *WSClient
}

// WSClient represents a single WebSocket connection.
type WSClient struct {
	hub  *WSHub
	send chan WSMessage
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan WSMessage, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
	}
}

// Run starts the hub event loop.
func (h *WSHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// Slow client; disconnect
					h.mu.RUnlock()
					h.mu.Lock()
					delete(h.clients, client)
					close(client.send)
					h.mu.Unlock()
					h.mu.RLock()
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends a message to all connected WebSocket clients.
func (h *WSHub) Broadcast(msg WSMessage) {
	select {
	case h.broadcast <- msg:
	default:
		// Drop message if broadcast channel is full
	}
}

// ClientCount returns the number of connected WebSocket clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a client to the hub.
func (h *WSHub) Register(client *WSClient) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *WSHub) Unregister(client *WSClient) {
	h.unregister <- client
}
