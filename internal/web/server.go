// Package web provides an HTTP status server for the door-dictator daemon.
package web

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sweeney/door-dictator/internal/status"
)

// DefaultPushInterval is how often websocket clients are checked for a changed snapshot.
const DefaultPushInterval = 250 * time.Millisecond

// Controls accepts operator requests to pause and resume dictation.
type Controls interface {
	RequestStart()
	RequestStop()
}

// DoorFunc drives a simulated door sensor. It is only installed in dry-run mode.
type DoorFunc func(open bool)

// Option configures a Server.
type Option func(*Server)

// WithControls enables POST /dictation.
func WithControls(c Controls) Option {
	return func(s *Server) { s.controls = c }
}

// WithDoorSimulator enables POST /door.
func WithDoorSimulator(fn DoorFunc) Option {
	return func(s *Server) { s.door = fn }
}

// WithPushInterval overrides DefaultPushInterval.
func WithPushInterval(d time.Duration) Option {
	return func(s *Server) { s.pushInterval = d }
}

// WithLogger sets the server logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer   *http.Server
	tracker      *status.Tracker
	controls     Controls
	door         DoorFunc
	upgrader     websocket.Upgrader
	pushInterval time.Duration
	log          zerolog.Logger
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, opts ...Option) *Server {
	s := &Server{
		tracker:      tracker,
		pushInterval: DefaultPushInterval,
		log:          zerolog.Nop(),
		upgrader: websocket.Upgrader{
			// The page is served from the same device; any LAN origin may watch it.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/dictation", s.handleDictation)
	mux.HandleFunc("/door", s.handleDoor)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap, s.door != nil, s.controls != nil); err != nil {
		s.log.Error().Err(err).Msg("render index")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleWS pushes the status JSON whenever the tracker version changes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("websocket client connected")

	// Reads only detect the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	var last uint64
	sent := false
	for {
		snap := s.tracker.Snapshot()
		if !sent || snap.Version != last {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, status.FormatJSON(snap)); err != nil {
				s.log.Debug().Err(err).Msg("websocket write failed")
				return
			}
			last, sent = snap.Version, true
		}
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) handleDictation(w http.ResponseWriter, r *http.Request) {
	if s.controls == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Query().Get("action") {
	case "start":
		s.controls.RequestStart()
	case "stop":
		s.controls.RequestStop()
	default:
		http.Error(w, "action must be start or stop", http.StatusBadRequest)
		return
	}
	accepted(w, r)
}

func (s *Server) handleDoor(w http.ResponseWriter, r *http.Request) {
	if s.door == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Query().Get("state") {
	case "open":
		s.door(true)
	case "closed":
		s.door(false)
	default:
		http.Error(w, "state must be open or closed", http.StatusBadRequest)
		return
	}
	accepted(w, r)
}

// accepted sends browser form posts back to the status page and answers API clients with 202.
func accepted(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
