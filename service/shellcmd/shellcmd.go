// Package shellcmd implements the shell backend: each procedure name
// is a local command, executed with a hard timeout. Non-zero exits and
// timeouts are failure results carrying the captured output, never
// errors, so widget code can render them.
package shellcmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"time"

	"github.com/weftwork/weft/service"
)

// DefaultTimeout bounds one execution when the service configuration
// does not set its own.
const DefaultTimeout = 30 * time.Second

// Backend implements service.Backend by spawning local commands.
type Backend struct {
	name    string
	dir     string
	env     []string
	allowed []string
	timeout time.Duration
}

// New creates a shell backend. cfg.Target is the working directory,
// cfg.Args the optional command allowlist.
func New(name string, cfg service.Config) (service.Backend, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var env []string
	for key, value := range cfg.Env {
		env = append(env, key+"="+value)
	}
	sort.Strings(env)
	return &Backend{
		name:    name,
		dir:     cfg.Target,
		env:     env,
		allowed: cfg.Args,
		timeout: timeout,
	}, nil
}

// Kind returns the backend kind.
func (b *Backend) Kind() service.Kind {
	return service.KindShell
}

// Name returns the service name.
func (b *Backend) Name() string {
	return b.name
}

// Procedures returns the configured command allowlist. An unrestricted
// backend advertises nothing.
func (b *Backend) Procedures(_ context.Context) ([]string, error) {
	return append([]string(nil), b.allowed...), nil
}

// Call runs the procedure as a command. The timeout force-kills the
// child; the failure result still carries whatever output was
// captured.
func (b *Backend) Call(ctx context.Context, procedure string, args any) (service.Result, error) {
	if len(b.allowed) > 0 && !contains(b.allowed, procedure) {
		return service.Failure("command %q not allowed", procedure), nil
	}

	argv, err := commandArgs(args)
	if err != nil {
		return service.Failure("%v", err), nil
	}

	runCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, procedure, argv...)
	cmd.Dir = b.dir
	if len(b.env) > 0 {
		cmd.Env = append(cmd.Environ(), b.env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	data := map[string]any{
		"stdout":   stdout.String(),
		"stderr":   stderr.String(),
		"exitCode": exitCode(cmd, runErr),
	}

	switch {
	case runErr == nil:
		return service.Result{Success: true, Data: data}, nil
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return service.Result{Data: data, Error: fmt.Sprintf("command %q timed out after %s", procedure, b.timeout)}, nil
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return service.Result{Data: data, Error: runErr.Error()}, nil
		}
		// spawn failure (command missing, permission)
		return service.Failure("command %q failed to start: %v", procedure, runErr), nil
	}
}

// Close is a no-op; commands do not outlive their call.
func (b *Backend) Close() error {
	return nil
}

// commandArgs derives argv from the call arguments: an array maps
// positionally, an object maps to --flag / --flag value pairs with
// falsy values omitted.
func commandArgs(args any) ([]string, error) {
	switch v := args.(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case []any:
		argv := make([]string, 0, len(v))
		for _, item := range v {
			argv = append(argv, fmt.Sprintf("%v", item))
		}
		return argv, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var argv []string
		for _, key := range keys {
			value := v[key]
			switch tv := value.(type) {
			case nil:
				continue
			case bool:
				if tv {
					argv = append(argv, "--"+key)
				}
			case string:
				if tv != "" {
					argv = append(argv, "--"+key, tv)
				}
			default:
				if zeroNumber(tv) {
					continue
				}
				argv = append(argv, "--"+key, fmt.Sprintf("%v", tv))
			}
		}
		return argv, nil
	default:
		return nil, fmt.Errorf("unsupported argument shape %T", args)
	}
}

// zeroNumber reports whether a flag value is a numeric zero. Zero is
// falsy and omitted like false, "" and nil; JSON numbers arrive as
// float64.
func zeroNumber(v any) bool {
	switch n := v.(type) {
	case float64:
		return n == 0
	case float32:
		return n == 0
	case int:
		return n == 0
	case int32:
		return n == 0
	case int64:
		return n == 0
	case uint:
		return n == 0
	case uint64:
		return n == 0
	}
	return false
}

// exitCode extracts the child's exit status; -1 when it never ran or
// was killed.
func exitCode(cmd *exec.Cmd, runErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if runErr != nil {
		return -1
	}
	return 0
}

func contains(list []string, item string) bool {
	for _, entry := range list {
		if entry == item {
			return true
		}
	}
	return false
}
