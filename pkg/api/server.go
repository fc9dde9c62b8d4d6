package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/halcyonforge/cutplane/pkg/collab"
	"github.com/halcyonforge/cutplane/pkg/editor"
	"github.com/halcyonforge/cutplane/util"
	"github.com/halcyonforge/cutplane/util/log"
)

// Server is the loopback REST/WebSocket server exposing editor sessions
// to the front end.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	upgrader   websocket.Upgrader

	// WebSocket management
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex

	// Open editing sessions
	sessions   map[string]*sessionEntry
	sessionsMu sync.Mutex

	pipeline *editor.Pipeline
	detector collab.SectionDetector

	// Set once Stop begins; new sessions are refused from then on.
	closing *util.SafeFlag

	defaultContainerWidth float64
	defaultMaxHeight      float64
}

// sessionEntry pairs a session with the context that outstanding
// collaborator calls run under, so teardown cancels them and nothing
// updates state after the view is gone.
type sessionEntry struct {
	session *editor.Session
	ctx     context.Context
	cancel  context.CancelFunc

	dragMu    sync.Mutex
	drag      *editor.DragHandle
	dragIndex int
}

// Options configures a Server.
type Options struct {
	Pipeline              *editor.Pipeline
	Detector              collab.SectionDetector
	DefaultContainerWidth float64
	DefaultMaxHeight      float64
}

// NewServer creates a new API server.
func NewServer(opts Options) *Server {
	s := &Server{
		mux: http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:               make(map[*websocket.Conn]bool),
		sessions:              make(map[string]*sessionEntry),
		pipeline:              opts.Pipeline,
		detector:              opts.Detector,
		closing:               util.NewSafeFlag(),
		defaultContainerWidth: opts.DefaultContainerWidth,
		defaultMaxHeight:      opts.DefaultMaxHeight,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Method-specific patterns never match preflight requests, so
	// OPTIONS gets its own catch-all.
	s.mux.HandleFunc("OPTIONS /", s.enableCORS(func(w http.ResponseWriter, r *http.Request) {}))

	s.mux.HandleFunc("GET /health", s.enableCORS(s.handleHealth))
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)

	s.mux.HandleFunc("POST /sessions", s.enableCORS(s.handleCreateSession))
	s.mux.HandleFunc("GET /sessions/{id}", s.enableCORS(s.handleGetSession))
	s.mux.HandleFunc("DELETE /sessions/{id}", s.enableCORS(s.handleCloseSession))
	s.mux.HandleFunc("POST /sessions/{id}/geometry", s.enableCORS(s.handleGeometry))
	s.mux.HandleFunc("POST /sessions/{id}/cutlines", s.enableCORS(s.handleAddCutLine))
	s.mux.HandleFunc("DELETE /sessions/{id}/cutlines/{index}", s.enableCORS(s.handleRemoveCutLine))
	s.mux.HandleFunc("POST /sessions/{id}/cutlines/{index}/drag", s.enableCORS(s.handleDrag))
	s.mux.HandleFunc("POST /sessions/{id}/redetect", s.enableCORS(s.handleRedetect))
	s.mux.HandleFunc("POST /sessions/{id}/sections", s.enableCORS(s.handleAddSection))
	s.mux.HandleFunc("POST /sessions/{id}/sections/{sid}", s.enableCORS(s.handleUpdateSection))
	s.mux.HandleFunc("DELETE /sessions/{id}/sections/{sid}", s.enableCORS(s.handleRemoveSection))
	s.mux.HandleFunc("POST /sessions/{id}/generate", s.enableCORS(s.handleGenerate))
}

// enableCORS adds CORS headers to the handler.
func (s *Server) enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the server on addr. This is blocking.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down and tears down every open session.
func (s *Server) Stop(ctx context.Context) error {
	s.closing.Set(true)

	s.sessionsMu.Lock()
	for id, entry := range s.sessions {
		entry.cancel()
		entry.session.Close()
		delete(s.sessions, id)
	}
	s.sessionsMu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Broadcast sends an event to all connected WebSocket clients.
func (s *Server) Broadcast(event string, payload interface{}) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	msg := map[string]interface{}{
		"type":    event,
		"payload": payload,
	}

	for client := range s.clients {
		if err := client.WriteJSON(msg); err != nil {
			log.Printf("Failed to broadcast to client: %v", err)
			client.Close()
			delete(s.clients, client)
		}
	}
}

// handleWebSocket upgrades the connection and keeps it registered until
// the client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, conn)
		s.clientsMu.Unlock()
	}()

	for {
		// Keepalive reads; clients only listen.
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) lookupSession(id string) (*sessionEntry, bool) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	entry, ok := s.sessions[id]
	return entry, ok
}
