// Package remotetool implements the remote-tool backend: a spawned
// child process speaking MCP over its standard streams. The child is
// started lazily on the first call, handshaken once to learn its
// advertised tools, and reused until it dies or the backend closes.
package remotetool

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/weftwork/weft/service"
)

// DefaultHandshakeTimeout bounds the spawn-and-list handshake when the
// service configuration does not set its own.
const DefaultHandshakeTimeout = 30 * time.Second

// toolSession is the slice of mcp.ClientSession the backend uses.
// Tests substitute a fake.
type toolSession interface {
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	Close() error
}

// connectFunc spawns the child and completes the MCP handshake.
type connectFunc func(ctx context.Context) (toolSession, error)

// Backend implements service.Backend by proxying calls to a child
// process. At most one child is live at a time; a transport failure
// discards it so the next call spawns a fresh one.
type Backend struct {
	name    string
	timeout time.Duration
	connect connectFunc

	mu      sync.Mutex
	session toolSession
	tools   map[string]bool
	closed  bool
}

// New creates a remote-tool backend. cfg.Target is the command to
// spawn, cfg.Args its arguments, cfg.Env extra environment.
func New(name string, cfg service.Config) (service.Backend, error) {
	if cfg.Target == "" {
		return nil, fmt.Errorf("remote-tool backend %s: target command is required", name)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	var env []string
	for key, value := range cfg.Env {
		env = append(env, key+"="+value)
	}
	sort.Strings(env)

	b := &Backend{name: name, timeout: timeout}
	b.connect = func(ctx context.Context) (toolSession, error) {
		cmd := exec.Command(cfg.Target, cfg.Args...)
		if len(env) > 0 {
			cmd.Env = append(cmd.Environ(), env...)
		}
		client := mcp.NewClient(&mcp.Implementation{Name: "weft", Version: "1.0.0"}, nil)
		return client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	}
	return b, nil
}

// Kind returns the backend kind.
func (b *Backend) Kind() service.Kind {
	return service.KindRemoteTool
}

// Name returns the service name.
func (b *Backend) Name() string {
	return b.name
}

// Procedures returns the tools the child advertises, spawning it if
// needed.
func (b *Backend) Procedures(ctx context.Context) ([]string, error) {
	if _, err := b.ensureSession(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.tools))
	for name := range b.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Call invokes one advertised tool. A tool-level error from the child
// is a failure result; losing the child is an error, and the dead
// session is discarded so the next call respawns.
func (b *Backend) Call(ctx context.Context, procedure string, args any) (service.Result, error) {
	session, err := b.ensureSession(ctx)
	if err != nil {
		return service.Result{}, err
	}

	b.mu.Lock()
	known := b.tools[procedure]
	b.mu.Unlock()
	if !known {
		return service.Failure("tool %q is not advertised by service %s", procedure, b.name), nil
	}

	params := &mcp.CallToolParams{Name: procedure}
	if fields, ok := args.(map[string]any); ok {
		params.Arguments = fields
	} else if args != nil {
		params.Arguments = map[string]any{"value": args}
	}

	result, err := session.CallTool(ctx, params)
	if err != nil {
		b.discard(session)
		return service.Result{}, fmt.Errorf("remote-tool %s: %w", b.name, err)
	}

	data := resultData(result)
	if result.IsError {
		return service.Result{Data: data, Error: resultText(result)}, nil
	}
	return service.Result{Success: true, Data: data}, nil
}

// Close tears down the child process.
func (b *Backend) Close() error {
	b.mu.Lock()
	session := b.session
	b.session = nil
	b.closed = true
	b.mu.Unlock()
	if session != nil {
		return session.Close()
	}
	return nil
}

// ensureSession returns the live session, spawning and handshaking a
// new child when none exists. The handshake (connect plus the initial
// tool listing) is bounded by the configured timeout.
func (b *Backend) ensureSession(ctx context.Context) (toolSession, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("remote-tool %s: backend is closed", b.name)
	}
	if b.session != nil {
		session := b.session
		b.mu.Unlock()
		return session, nil
	}
	b.mu.Unlock()

	// Spawn outside the lock; the handshake can take a while.
	handshakeCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	session, err := b.connect(handshakeCtx)
	if err != nil {
		return nil, fmt.Errorf("remote-tool %s: spawn: %w", b.name, err)
	}
	listing, err := session.ListTools(handshakeCtx, &mcp.ListToolsParams{})
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("remote-tool %s: handshake: %w", b.name, err)
	}
	tools := make(map[string]bool, len(listing.Tools))
	for _, tool := range listing.Tools {
		tools[tool.Name] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		session.Close()
		return nil, fmt.Errorf("remote-tool %s: backend is closed", b.name)
	}
	if b.session != nil {
		// lost the race; keep the winner
		session.Close()
		return b.session, nil
	}
	b.session = session
	b.tools = tools
	return session, nil
}

// discard drops a dead session so the next call spawns a new child.
// Only the session that failed is dropped; a replacement raced in by
// another call survives.
func (b *Backend) discard(dead toolSession) {
	b.mu.Lock()
	if b.session == dead {
		b.session = nil
		b.tools = nil
	}
	b.mu.Unlock()
	dead.Close()
}

// resultData prefers the tool's structured payload and falls back to
// its joined text content.
func resultData(result *mcp.CallToolResult) any {
	if result.StructuredContent != nil {
		return result.StructuredContent
	}
	if text := resultText(result); text != "" {
		return text
	}
	return nil
}

// resultText joins the text blocks of a tool result.
func resultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}
