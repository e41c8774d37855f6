// Package weft is a host runtime for externally generated UI widgets:
// it compiles untrusted component source into loadable modules, mounts
// them in embedded or sandboxed contexts, and routes their service
// calls through a configured proxy.
//
// The root package is a facade: New wires a compiler, a service proxy
// with all four backend kinds registered, a bridge, and a mounter from
// one Options struct. Applications needing finer control use the
// subpackages directly.
package weft

import (
	"context"

	"github.com/weftwork/weft/bridge"
	"github.com/weftwork/weft/compiler"
	"github.com/weftwork/weft/mount"
	"github.com/weftwork/weft/service"
	"github.com/weftwork/weft/service/httpapi"
	"github.com/weftwork/weft/service/memstore"
	"github.com/weftwork/weft/service/remotetool"
	"github.com/weftwork/weft/service/shellcmd"
	"github.com/weftwork/weft/widget"
)

// Logger receives flow events from every layer the facade wires. A nil
// Logger is silent.
type Logger interface {
	Logf(format string, args ...any)
}

// Options configures a Weft runtime.
type Options struct {
	// Services is the service map widgets call into.
	Services map[string]service.Config

	// Environment is the preset widgets compile against and mount into.
	Environment widget.Environment

	// TypeScript enables type erasure before compilation.
	TypeScript bool

	// CacheDir persists compiled artifacts across processes.
	CacheDir string

	// CDNBase overrides the external module host.
	// Default: compiler.DefaultCDNBase.
	CDNBase string

	// Framework overrides the markup runtime package.
	// Default: compiler.DefaultFramework.
	Framework string

	// ResultCacheSize bounds the shared service result cache.
	ResultCacheSize int

	// BridgeURL is the websocket endpoint sandbox documents connect
	// back to. Default: "/bridge".
	BridgeURL string

	// Sandbox lists extra capability tokens granted to sandboxed
	// mounts beyond script execution.
	Sandbox []string

	// Logger is an optional logger shared by all layers.
	Logger Logger
}

// Weft is a wired runtime.
type Weft struct {
	compiler *compiler.Compiler
	proxy    *service.Proxy
	bridge   *bridge.Bridge
	mounter  *mount.Mounter
}

// New wires a runtime. The four shipped backend kinds (remote-tool,
// http, shell, store) are registered; additional kinds can be added
// through Services().RegisterFactory before the first call.
func New(opts Options) (*Weft, error) {
	comp, err := compiler.New(compiler.Options{
		TypeScript:  opts.TypeScript,
		CacheDir:    opts.CacheDir,
		CDNBase:     opts.CDNBase,
		Framework:   opts.Framework,
		Environment: opts.Environment,
		Logger:      opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	proxy := service.NewProxy(opts.Services, service.ProxyOptions{
		CacheSize: opts.ResultCacheSize,
		Logger:    opts.Logger,
	})
	proxy.RegisterFactory(service.KindRemoteTool, remotetool.New)
	proxy.RegisterFactory(service.KindHTTP, httpapi.New)
	proxy.RegisterFactory(service.KindShell, shellcmd.New)
	proxy.RegisterFactory(service.KindStore, memstore.New)

	b := bridge.New(proxy, opts.Logger)
	mounter := mount.NewMounter(proxy, mount.Options{
		Environment: opts.Environment,
		Bridge:      b,
		CDNBase:     opts.CDNBase,
		BridgeURL:   opts.BridgeURL,
		Framework:   opts.Framework,
		Sandbox:     opts.Sandbox,
		Logger:      opts.Logger,
	})

	return &Weft{compiler: comp, proxy: proxy, bridge: b, mounter: mounter}, nil
}

// Compile turns widget source into a loadable module artifact.
func (w *Weft) Compile(source string, m widget.Manifest) (widget.Compiled, error) {
	return w.compiler.Compile(source, m)
}

// MountEmbedded mounts a compiled widget into a trusted surface.
func (w *Weft) MountEmbedded(ctx context.Context, compiled widget.Compiled, surface mount.Surface, inputs map[string]any) (*mount.MountedWidget, error) {
	return w.mounter.MountEmbedded(ctx, compiled, surface, inputs)
}

// MountSandboxed builds a sandbox document and bridge session for a
// compiled widget.
func (w *Weft) MountSandboxed(ctx context.Context, compiled widget.Compiled, inputs map[string]any) (*mount.MountedWidget, error) {
	return w.mounter.MountSandboxed(ctx, compiled, inputs)
}

// CallProcedure routes one service call, as widget dispatch tables do.
func (w *Weft) CallProcedure(ctx context.Context, serviceName, procedure string, args any, opts service.CallOptions) (service.Result, error) {
	return w.proxy.CallProcedure(ctx, serviceName, procedure, args, opts)
}

// Services exposes the service proxy.
func (w *Weft) Services() *service.Proxy {
	return w.proxy
}

// Bridge exposes the bridge, for wiring the host HTTP surfaces.
func (w *Weft) Bridge() *bridge.Bridge {
	return w.bridge
}

// Close disposes every constructed backend. Mounted widgets are owned
// by their callers and are not unmounted here.
func (w *Weft) Close() error {
	return w.proxy.Close()
}
