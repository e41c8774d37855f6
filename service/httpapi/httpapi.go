// Package httpapi implements the http backend. A procedure resolves to
// a method and path through the service's declared API description
// when one exists, or through naming-convention inference otherwise.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/weftwork/weft/service"
)

// DefaultTimeout bounds one request when the service configuration
// does not set its own.
const DefaultTimeout = 30 * time.Second

// verbPrefixes maps procedure-name prefixes to inferred HTTP methods.
// Order matters: earlier entries win when prefixes overlap.
var verbPrefixes = []struct {
	prefix string
	method string
}{
	{"get", http.MethodGet},
	{"list", http.MethodGet},
	{"fetch", http.MethodGet},
	{"create", http.MethodPost},
	{"add", http.MethodPost},
	{"update", http.MethodPut},
	{"set", http.MethodPut},
	{"delete", http.MethodDelete},
	{"remove", http.MethodDelete},
}

// Backend implements service.Backend over a remote HTTP API.
type Backend struct {
	name       string
	baseURL    string
	operations []service.APIOperation
	auth       *service.AuthConfig
	client     *http.Client

	// credential resolves the auth env var; replaceable in tests.
	credential func(string) string
}

// New creates an http backend. cfg.Target is the base URL.
func New(name string, cfg service.Config) (service.Backend, error) {
	base := strings.TrimSuffix(cfg.Target, "/")
	if base == "" {
		return nil, fmt.Errorf("http backend %s: target base URL is required", name)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Backend{
		name:       name,
		baseURL:    base,
		operations: cfg.Operations,
		auth:       cfg.Auth,
		client:     &http.Client{Timeout: timeout},
		credential: lookupEnv,
	}, nil
}

// Kind returns the backend kind.
func (b *Backend) Kind() service.Kind {
	return service.KindHTTP
}

// Name returns the service name.
func (b *Backend) Name() string {
	return b.name
}

// Procedures returns the declared operation identifiers.
func (b *Backend) Procedures(_ context.Context) ([]string, error) {
	ids := make([]string, 0, len(b.operations))
	for _, op := range b.operations {
		ids = append(ids, op.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// Call resolves the procedure to a request and executes it. HTTP-level
// failures (including 429) come back as failure results; only a
// transport breakdown is an error.
func (b *Backend) Call(ctx context.Context, procedure string, args any) (service.Result, error) {
	method, path := b.resolve(procedure)
	fields := argFields(args)

	path, used, err := fillPath(path, fields)
	if err != nil {
		return service.Failure("%v", err), nil
	}
	rest := make(map[string]any, len(fields))
	for key, value := range fields {
		if !used[key] {
			rest[key] = value
		}
	}

	var body io.Reader
	target := b.baseURL + path
	if method == http.MethodGet || method == http.MethodHead {
		if query := encodeQuery(rest); query != "" {
			target += "?" + query
		}
	} else if len(rest) > 0 {
		encoded, err := json.Marshal(rest)
		if err != nil {
			return service.Failure("encode request body: %v", err), nil
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return service.Failure("build request: %v", err), nil
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := b.applyAuth(req); err != nil {
		return service.Failure("%v", err), nil
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return service.Result{}, err
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	data := decodeBody(payload)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		// surfaced, not retried; the caller decides when to come back
		return service.Result{
			Data:  map[string]any{"retryAfter": resp.Header.Get("Retry-After")},
			Error: fmt.Sprintf("%s %s: rate limited (429)", method, path),
		}, nil
	case resp.StatusCode >= 400:
		return service.Result{
			Data:  data,
			Error: fmt.Sprintf("%s %s: %s", method, path, resp.Status),
		}, nil
	default:
		return service.Result{Success: true, Data: data}, nil
	}
}

// Close is a no-op; the client holds no persistent connection state
// worth tearing down.
func (b *Backend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

// resolve maps a procedure to method and path: declared operations
// first, naming convention otherwise.
func (b *Backend) resolve(procedure string) (string, string) {
	for _, op := range b.operations {
		if op.ID == procedure {
			method := strings.ToUpper(op.Method)
			if method == "" {
				method = http.MethodPost
			}
			return method, ensureLeadingSlash(op.Path)
		}
	}
	for _, verb := range verbPrefixes {
		remainder, ok := strip(procedure, verb.prefix)
		if !ok {
			continue
		}
		if remainder == "" {
			remainder = procedure
		}
		return verb.method, "/" + slugify(remainder)
	}
	return http.MethodPost, "/" + slugify(procedure)
}

// strip removes a verb prefix when it ends on a word boundary
// (uppercase letter, underscore, or end of string).
func strip(procedure, prefix string) (string, bool) {
	if !strings.HasPrefix(procedure, prefix) {
		return "", false
	}
	rest := procedure[len(prefix):]
	if rest == "" {
		return "", true
	}
	if rest[0] == '_' || rest[0] == '-' {
		return rest[1:], true
	}
	if rest[0] >= 'A' && rest[0] <= 'Z' {
		return rest, true
	}
	return "", false
}

// fillPath substitutes {placeholder} segments from the argument
// object and reports which fields it consumed.
func fillPath(path string, fields map[string]any) (string, map[string]bool, error) {
	used := make(map[string]bool)
	for {
		open := strings.IndexByte(path, '{')
		if open < 0 {
			return path, used, nil
		}
		close := strings.IndexByte(path[open:], '}')
		if close < 0 {
			return "", nil, fmt.Errorf("unterminated path placeholder in %q", path)
		}
		name := path[open+1 : open+close]
		value, ok := fields[name]
		if !ok {
			return "", nil, fmt.Errorf("missing path parameter %q", name)
		}
		used[name] = true
		path = path[:open] + url.PathEscape(fmt.Sprintf("%v", value)) + path[open+close+1:]
	}
}

// encodeQuery renders leftover fields as query parameters.
func encodeQuery(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}
	values := url.Values{}
	for key, value := range fields {
		values.Set(key, fmt.Sprintf("%v", value))
	}
	return values.Encode()
}

// applyAuth injects the configured credential.
func (b *Backend) applyAuth(req *http.Request) error {
	if b.auth == nil {
		return nil
	}
	credential := b.credential(b.auth.EnvVar)
	if credential == "" {
		return fmt.Errorf("auth credential %s is not set", b.auth.EnvVar)
	}
	switch b.auth.Type {
	case "bearer", "":
		req.Header.Set("Authorization", "Bearer "+credential)
	case "header":
		req.Header.Set(b.auth.Header, credential)
	case "query":
		query := req.URL.Query()
		query.Set(b.auth.Header, credential)
		req.URL.RawQuery = query.Encode()
	default:
		return fmt.Errorf("unknown auth type %q", b.auth.Type)
	}
	return nil
}

// argFields coerces the single argument object into a field map.
func argFields(args any) map[string]any {
	switch v := args.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	case []any:
		if len(v) == 1 {
			if m, ok := v[0].(map[string]any); ok {
				return m
			}
		}
	}
	return map[string]any{}
}

// decodeBody parses a JSON response when possible and falls back to
// the raw text.
func decodeBody(payload []byte) any {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err == nil {
		return decoded
	}
	return string(payload)
}

func lookupEnv(name string) string {
	return os.Getenv(name)
}

func ensureLeadingSlash(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + path
}
