package service

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Common errors for service resolution. Both fail fast and are never
// retried; procedure-level failures are returned as failure Results
// instead, so widget code can render its own error state.
var (
	// ErrServiceNotConfigured is returned when a service name has no
	// configuration.
	ErrServiceNotConfigured = errors.New("service not configured")

	// ErrUnknownBackendKind is returned when a configured backend kind
	// has no registered factory.
	ErrUnknownBackendKind = errors.New("unknown backend kind")

	// ErrProxyClosed is returned after Close has disposed the proxy.
	ErrProxyClosed = errors.New("service proxy closed")
)

// Kind identifies a backend implementation.
type Kind string

// Backend kinds.
const (
	KindRemoteTool Kind = "remote-tool"
	KindHTTP       Kind = "http"
	KindShell      Kind = "shell"
	KindStore      Kind = "store"
)

// Result is the outcome of one procedure invocation.
//
// Cached marks a result served from the cache layer rather than a live
// backend call; it never appears on a result returned directly by a
// Backend.
type Result struct {
	Success    bool   `json:"success"`
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
	Cached     bool   `json:"cached,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// Failure builds a failed Result with a formatted message.
func Failure(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// Backend executes procedures for one configured service.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Call must honor cancellation/deadlines.
// - Errors: Call returns an error only for transport-level failures
//   (dead process, unreachable host); procedure failures are failure
//   Results with a nil error. Call must never set Result.Cached.
// - Lifetime: instances live until Close; Close must be safe to call
//   once after any sequence of calls.
type Backend interface {
	// Kind returns the backend kind.
	Kind() Kind

	// Name returns the service name this backend serves.
	Name() string

	// Call invokes a procedure with the given arguments.
	Call(ctx context.Context, procedure string, args any) (Result, error)

	// Procedures returns the procedure names this backend advertises.
	Procedures(ctx context.Context) ([]string, error)

	// Close releases the backend's resources.
	Close() error
}

// Factory creates a Backend for one configured service.
type Factory func(name string, cfg Config) (Backend, error)

// Router is the call surface consumers depend on: the mount layer's
// dispatch tables and the bridge dispatcher route through it. *Proxy
// satisfies it.
type Router interface {
	CallProcedure(ctx context.Context, service, procedure string, args any, opts CallOptions) (Result, error)
}

// AuthConfig describes how a backend authenticates. The credential is
// never stored in configuration; EnvVar names the environment variable
// holding it.
type AuthConfig struct {
	// Type is the auth scheme: "bearer", "header", or "query".
	Type string `json:"type"`

	// EnvVar is the environment variable holding the credential.
	EnvVar string `json:"envVar"`

	// Header is the header or query-parameter name for the
	// header/query schemes.
	Header string `json:"header,omitempty"`
}

// APIOperation declares one operation of an HTTP service's API
// description, matched by procedure name.
type APIOperation struct {
	// ID is the operation identifier a procedure name resolves to.
	ID string `json:"id"`

	// Method is the HTTP method.
	Method string `json:"method"`

	// Path is the request path, with {placeholder} segments filled
	// from the call arguments.
	Path string `json:"path"`
}

// Config is the static per-service configuration supplied by the
// hosting application.
type Config struct {
	// Kind selects the backend implementation.
	Kind Kind `json:"kind"`

	// Target is the backend's connection target: the command path for
	// remote-tool, the base URL for http, the working directory for
	// shell, or the namespace for store.
	Target string `json:"target,omitempty"`

	// Args are extra command arguments for spawned processes.
	Args []string `json:"args,omitempty"`

	// Env is extra environment for spawned processes.
	Env map[string]string `json:"env,omitempty"`

	// Operations is the optional API description for http backends.
	Operations []APIOperation `json:"operations,omitempty"`

	// Auth is the optional auth descriptor.
	Auth *AuthConfig `json:"auth,omitempty"`

	// CacheTTL enables result caching for this service when positive.
	CacheTTL time.Duration `json:"-"`

	// RateLimit caps calls per second when positive; RateBurst is the
	// accompanying burst size (defaults to 1).
	RateLimit float64 `json:"rateLimit,omitempty"`
	RateBurst int     `json:"rateBurst,omitempty"`

	// Timeout bounds one backend operation: a shell execution, an
	// http request, or the remote-tool capability handshake.
	Timeout time.Duration `json:"-"`
}

// Call is one entry of a batch execution.
type Call struct {
	Service     string `json:"service"`
	Procedure   string `json:"procedure"`
	Args        any    `json:"args,omitempty"`
	BypassCache bool   `json:"bypassCache,omitempty"`
}

// CallOptions modify a single CallProcedure invocation.
type CallOptions struct {
	// BypassCache skips the cache lookup; a successful live result is
	// still written back.
	BypassCache bool
}

// Logger is an optional interface for observability in the service
// layer.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: logging must be best-effort; Logf should not panic.
type Logger interface {
	// Logf logs a formatted message.
	Logf(format string, args ...any)
}
