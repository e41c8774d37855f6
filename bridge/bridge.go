package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/weftwork/weft/service"
)

// Sentinel errors returned by session operations.
var (
	ErrSessionNotFound  = errors.New("bridge session not found")
	ErrInvalidToken     = errors.New("bridge session token mismatch")
	ErrAlreadyAttached  = errors.New("bridge session already has a connection")
	ErrConnectionClosed = errors.New("bridge connection closed")
	ErrSendBufferFull   = errors.New("bridge connection send buffer full")
)

// Router invokes service procedures on behalf of sandboxed widgets.
// It is the service layer's call surface; *service.Proxy satisfies it.
type Router = service.Router

// Conn is one side of a bridge transport: the host sends messages to
// the sandboxed context through it. Implementations must be safe for
// concurrent Send.
type Conn interface {
	Send(Message) error
	Close() error
}

// Session is one sandboxed mount's registration with the bridge. The
// Token is issued at registration, travels inside the sandbox
// document, and must be presented when the context attaches its
// connection; messages from any other connection are dropped.
type Session struct {
	ID     string
	Token  string
	Widget string

	// services the widget's manifest declares; empty allows none.
	services map[string]bool

	mu    sync.Mutex
	conn  Conn
	ready bool
}

// Ready reports whether the sandboxed context has loaded its module.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Bridge routes service calls from sandboxed contexts to a Router. One
// bridge serves every sandboxed mount in the process; sessions are
// addressed per mount.
type Bridge struct {
	router Router
	logger Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// Logger receives bridge flow events. A nil Logger is silent.
type Logger interface {
	Logf(format string, args ...any)
}

// New creates a bridge over the given router.
func New(router Router, logger Logger) *Bridge {
	return &Bridge{
		router:   router,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Register creates a session for one sandboxed mount. The allowed
// service names come from the widget's manifest; calls to any other
// service are refused without reaching the router.
func (b *Bridge) Register(widget string, services []string) *Session {
	s := &Session{
		ID:       uuid.NewString(),
		Token:    uuid.NewString(),
		Widget:   widget,
		services: make(map[string]bool, len(services)),
	}
	for _, name := range services {
		s.services[name] = true
	}
	b.mu.Lock()
	b.sessions[s.ID] = s
	b.mu.Unlock()
	b.logf("session %s registered for widget %s", s.ID, widget)
	return s
}

// Deregister removes a session and closes its connection. Safe to call
// for unknown or already-deregistered ids.
func (b *Bridge) Deregister(sessionID string) {
	b.mu.Lock()
	s, ok := b.sessions[sessionID]
	delete(b.sessions, sessionID)
	b.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	b.logf("session %s deregistered", sessionID)
}

// Session looks up a registered session.
func (b *Bridge) Session(sessionID string) (*Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionID]
	return s, ok
}

// Attach binds a connection to a session after validating its token.
// A session holds at most one connection at a time.
func (b *Bridge) Attach(sessionID, token string, conn Conn) error {
	s, ok := b.Session(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if token != s.Token {
		return ErrInvalidToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return ErrAlreadyAttached
	}
	s.conn = conn
	return nil
}

// Detach releases a session's connection. Only the currently attached
// connection detaches; a stale connection detaching late is a no-op.
func (b *Bridge) Detach(sessionID string, conn Conn) {
	s, ok := b.Session(sessionID)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		s.ready = false
	}
	s.mu.Unlock()
}

// HandleMessage processes one frame from a sandboxed context. Frames
// from a connection other than the session's attached one are dropped
// silently, as are frames for unknown sessions and unknown types.
func (b *Bridge) HandleMessage(ctx context.Context, sessionID string, from Conn, msg Message) {
	s, ok := b.Session(sessionID)
	if !ok {
		return
	}
	s.mu.Lock()
	attached := s.conn
	s.mu.Unlock()
	if attached == nil || attached != from {
		b.logf("session %s: frame from unattached connection dropped", sessionID)
		return
	}

	switch msg.Type {
	case TypeReady:
		s.mu.Lock()
		s.ready = true
		s.mu.Unlock()
		b.logf("session %s: widget %s ready", sessionID, s.Widget)

	case TypeServiceCall:
		b.dispatch(ctx, s, attached, msg)

	default:
		// unknown frame types are dropped, matching the unknown-id rule
	}
}

// dispatch routes one service call and sends the response frame. The
// response carries either the call result or an error string, never
// both.
func (b *Bridge) dispatch(ctx context.Context, s *Session, conn Conn, msg Message) {
	response := Message{Type: TypeServiceResponse, ID: msg.ID}

	switch {
	case msg.ID == "":
		// a call without a correlation id can never be answered
		return
	case !s.services[msg.Service]:
		response.Error = fmt.Sprintf("service %q is not declared by widget %s", msg.Service, s.Widget)
	default:
		result, err := b.router.CallProcedure(ctx, msg.Service, msg.Procedure, msg.Args, service.CallOptions{})
		if err != nil {
			response.Error = err.Error()
		} else {
			response.Result = result
		}
	}

	if err := conn.Send(response); err != nil {
		b.logf("session %s: response send failed: %v", s.ID, err)
	}
}

func (b *Bridge) logf(format string, args ...any) {
	if b.logger != nil {
		b.logger.Logf(format, args...)
	}
}
