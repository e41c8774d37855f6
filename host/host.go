// Package host exposes the two HTTP surfaces a hosting application
// needs for sandboxed widgets: document delivery for isolated frames
// and the websocket bridge endpoint.
package host

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"github.com/weftwork/weft/bridge"
	"github.com/weftwork/weft/mount"
)

// Logger receives host flow events. A nil Logger is silent.
type Logger interface {
	Logf(format string, args ...any)
}

// frame is one published sandbox document plus the capability tokens
// its isolated context runs under.
type frame struct {
	document string
	sandbox  []string
}

// Server serves sandbox documents and bridge connections.
type Server struct {
	bridge *bridge.Bridge
	logger Logger

	mu     sync.RWMutex
	frames map[string]frame
}

// New creates a server over the given bridge.
func New(b *bridge.Bridge, logger Logger) *Server {
	return &Server{
		bridge: b,
		logger: logger,
		frames: make(map[string]frame),
	}
}

// Publish makes a sandboxed mount's document fetchable at
// /widgets/{id}/frame.html until Withdraw.
func (s *Server) Publish(handle *mount.MountedWidget) error {
	if handle.Mode != mount.ModeSandboxed {
		return fmt.Errorf("widget %s: only sandboxed mounts have documents", handle.Widget)
	}
	s.mu.Lock()
	s.frames[handle.ID] = frame{document: handle.Document, sandbox: handle.Sandbox}
	s.mu.Unlock()
	s.logf("document for mount %s published", handle.ID)
	return nil
}

// Withdraw removes a published document. Safe for unknown ids.
func (s *Server) Withdraw(mountID string) {
	s.mu.Lock()
	delete(s.frames, mountID)
	s.mu.Unlock()
}

// Router returns the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/widgets/{id}/frame.html", s.handleFrame).Methods(http.MethodGet)
	r.HandleFunc("/bridge/{session}", s.handleBridge).Methods(http.MethodGet)
	return r
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.RLock()
	f, ok := s.frames[id]
	s.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	tokens := f.sandbox
	if len(tokens) == 0 {
		tokens = []string{"allow-scripts"}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	// the frame's content is sandboxed regardless of how the hosting
	// page builds its iframe: scripts only, no same-origin access, and
	// no embedding outside the host origin
	w.Header().Set("Content-Security-Policy",
		"sandbox "+strings.Join(tokens, " ")+"; frame-ancestors 'self'")
	fmt.Fprint(w, f.document)
}

func (s *Server) handleBridge(w http.ResponseWriter, r *http.Request) {
	session := mux.Vars(r)["session"]
	s.bridge.ServeWS(w, r, session, r.URL.Query().Get("token"))
}

func (s *Server) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Logf(format, args...)
	}
}
