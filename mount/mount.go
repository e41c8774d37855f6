// Package mount places compiled widgets into execution contexts and
// hands back MountedWidget handles whose Unmount restores the context
// exactly.
package mount

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weftwork/weft/bridge"
	"github.com/weftwork/weft/service"
	"github.com/weftwork/weft/widget"
)

// Logger receives mount flow events. A nil Logger is silent.
type Logger interface {
	Logf(format string, args ...any)
}

// Options configures a Mounter.
type Options struct {
	// Environment is the preset widgets mount into.
	Environment widget.Environment

	// Bridge handles sandboxed mounts. Required for MountSandboxed.
	Bridge *bridge.Bridge

	// Document options for sandboxed mounts (CDN base, bridge URL,
	// framework for default-export rendering).
	CDNBase   string
	BridgeURL string
	Framework string

	// Sandbox lists extra capability tokens granted to the isolated
	// context. Script execution is always allowed; nothing else is
	// unless named here.
	Sandbox []string

	// Logger is an optional logger.
	Logger Logger
}

// Mounter mounts compiled widgets in embedded or sandboxed mode.
type Mounter struct {
	router service.Router
	opts   Options

	seq atomic.Uint64

	mu    sync.Mutex
	setup map[Surface]bool
}

// NewMounter creates a mounter that routes widget service calls
// through router.
func NewMounter(router service.Router, opts Options) *Mounter {
	return &Mounter{
		router: router,
		opts:   opts,
		setup:  make(map[Surface]bool),
	}
}

// nextID issues a unique mount id from an atomic counter and a
// timestamp. Ids are never reused, even across rapid mount cycles.
func (m *Mounter) nextID() string {
	return fmt.Sprintf("mount-%d-%d", m.seq.Add(1), time.Now().UnixMilli())
}

// MountEmbedded mounts a compiled widget into the given surface. The
// sequence is container, one-time environment setup, theme style,
// service dispatch globals, positional preload globals, then module
// evaluation. If any step fails, the steps already performed are
// rolled back and no handle is returned.
func (m *Mounter) MountEmbedded(ctx context.Context, compiled widget.Compiled, surface Surface, inputs map[string]any) (*MountedWidget, error) {
	if strings.TrimSpace(compiled.Code) == "" {
		return nil, fmt.Errorf("widget %s: %w", compiled.Manifest.Name, ErrEmptyCode)
	}

	handle := &MountedWidget{
		ID:     m.nextID(),
		Widget: compiled.Manifest.Name,
		Mode:   ModeEmbedded,
	}
	fail := func(step string, err error) (*MountedWidget, error) {
		handle.Unmount()
		return nil, fmt.Errorf("%w: widget %s: %s: %v", ErrMountFailed, compiled.Manifest.Name, step, err)
	}

	if err := surface.CreateContainer(handle.ID); err != nil {
		return nil, fmt.Errorf("%w: widget %s: container: %v", ErrMountFailed, compiled.Manifest.Name, err)
	}
	handle.push(func() error {
		surface.RemoveContainer(handle.ID)
		return nil
	})

	if err := m.setupOnce(ctx, surface); err != nil {
		return fail("environment setup", err)
	}

	if css := m.opts.Environment.ThemeCSS; css != "" {
		if err := surface.InjectStyle(handle.ID, css); err != nil {
			return fail("theme style", err)
		}
		handle.push(func() error {
			surface.RemoveStyle(handle.ID)
			return nil
		})
	}

	for _, dep := range compiled.Manifest.Services {
		name := dispatchGlobal(dep.Name)
		if err := surface.SetGlobal(name, m.dispatchTable(dep)); err != nil {
			return fail("service global "+dep.Name, err)
		}
		handle.push(globalCleanup(surface, name))
	}

	env := m.opts.Environment
	for i, module := range env.PreloadModules {
		if i >= len(env.PreloadGlobals) {
			break
		}
		loaded, err := surface.LoadModule(ctx, module)
		if err != nil {
			return fail("preload "+module, err)
		}
		global := env.PreloadGlobals[i]
		if err := surface.SetGlobal(global, loaded); err != nil {
			return fail("preload global "+global, err)
		}
		handle.push(globalCleanup(surface, global))
	}

	exports, err := surface.Evaluate(ctx, handle.ID, compiled.Code)
	if err != nil {
		return fail("evaluate", err)
	}
	entry, ok := entryPoint(exports)
	if !ok {
		handle.Unmount()
		return nil, fmt.Errorf("widget %s: %w", compiled.Manifest.Name, ErrNoEntryPoint)
	}
	cleanup, err := entry(ctx, handle.ID, inputs)
	if err != nil {
		return fail("render", err)
	}
	if cleanup != nil {
		handle.push(cleanup)
	}

	m.logf("widget %s mounted embedded as %s", compiled.Manifest.Name, handle.ID)
	return handle, nil
}

// MountSandboxed builds the standalone document for a compiled widget
// and registers its bridge session. The isolated context loads the
// document and connects back over the bridge; Unmount deregisters the
// session, which drops the connection.
func (m *Mounter) MountSandboxed(ctx context.Context, compiled widget.Compiled, inputs map[string]any) (*MountedWidget, error) {
	if strings.TrimSpace(compiled.Code) == "" {
		return nil, fmt.Errorf("widget %s: %w", compiled.Manifest.Name, ErrEmptyCode)
	}
	if m.opts.Bridge == nil {
		return nil, fmt.Errorf("%w: widget %s: no bridge configured", ErrMountFailed, compiled.Manifest.Name)
	}

	services := make([]string, 0, len(compiled.Manifest.Services))
	for _, dep := range compiled.Manifest.Services {
		services = append(services, dep.Name)
	}
	session := m.opts.Bridge.Register(compiled.Manifest.Name, services)

	document, err := bridge.BuildDocument(compiled, m.opts.Environment, session, bridge.DocumentOptions{
		CDNBase:   m.opts.CDNBase,
		BridgeURL: m.opts.BridgeURL,
		Framework: m.opts.Framework,
		Inputs:    inputs,
	})
	if err != nil {
		m.opts.Bridge.Deregister(session.ID)
		return nil, fmt.Errorf("%w: widget %s: %v", ErrMountFailed, compiled.Manifest.Name, err)
	}

	handle := &MountedWidget{
		ID:       m.nextID(),
		Widget:   compiled.Manifest.Name,
		Mode:     ModeSandboxed,
		Document: document,
		Session:  session,
		Sandbox:  append([]string{"allow-scripts"}, m.opts.Sandbox...),
	}
	handle.push(func() error {
		m.opts.Bridge.Deregister(session.ID)
		return nil
	})

	m.logf("widget %s mounted sandboxed as %s (session %s)", compiled.Manifest.Name, handle.ID, session.ID)
	return handle, nil
}

// setupOnce runs the environment setup hook the first time a surface
// is seen.
func (m *Mounter) setupOnce(ctx context.Context, surface Surface) error {
	m.mu.Lock()
	done := m.setup[surface]
	m.mu.Unlock()
	if done {
		return nil
	}
	if err := surface.Setup(ctx, m.opts.Environment); err != nil {
		return err
	}
	m.mu.Lock()
	m.setup[surface] = true
	m.mu.Unlock()
	return nil
}

// dispatchTable builds one service's procedure table. Only declared
// procedures get entries; everything else never reaches the router.
func (m *Mounter) dispatchTable(dep widget.ServiceDependency) Dispatch {
	table := make(Dispatch, len(dep.Procedures))
	for _, procedure := range dep.Procedures {
		procedure := procedure
		table[procedure] = func(ctx context.Context, args any) (service.Result, error) {
			return m.router.CallProcedure(ctx, dep.Name, procedure, args, service.CallOptions{})
		}
	}
	return table
}

func (m *Mounter) logf(format string, args ...any) {
	if m.opts.Logger != nil {
		m.opts.Logger.Logf(format, args...)
	}
}

// dispatchGlobal names the global a service's dispatch table binds to.
func dispatchGlobal(serviceName string) string {
	return "services_" + serviceName
}

func globalCleanup(surface Surface, name string) func() error {
	return func() error {
		surface.RemoveGlobal(name)
		return nil
	}
}
