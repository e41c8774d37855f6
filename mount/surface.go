package mount

import (
	"context"

	"github.com/weftwork/weft/service"
	"github.com/weftwork/weft/widget"
)

// Surface is the trusted rendering environment an embedded mount
// drives. The hosting application supplies the implementation; the
// mounter only sequences calls against it.
//
// Contract:
// - Identifiers: every per-mount call receives the mount id; a Surface
//   must keep per-mount resources separate so concurrent mounts do not
//   collide.
// - Cleanup: the Remove* methods must be tolerant of the resource
//   already being gone, so unmount stays safe after a partial teardown.
type Surface interface {
	// Setup runs the environment's one-time setup hook. The mounter
	// calls it at most once per Surface value.
	Setup(ctx context.Context, env widget.Environment) error

	// CreateContainer allocates the widget's root container.
	CreateContainer(mountID string) error

	// RemoveContainer releases the container and everything in it.
	RemoveContainer(mountID string)

	// InjectStyle installs the environment's theme style for one mount.
	InjectStyle(mountID, css string) error

	// RemoveStyle removes a previously injected style.
	RemoveStyle(mountID string)

	// SetGlobal binds a named global visible to evaluated modules.
	SetGlobal(name string, value any) error

	// RemoveGlobal unbinds a global.
	RemoveGlobal(name string)

	// LoadModule loads an external module by URL and returns its
	// exports value for global binding.
	LoadModule(ctx context.Context, url string) (any, error)

	// Evaluate runs compiled module code for one mount and returns its
	// exports.
	Evaluate(ctx context.Context, mountID, code string) (Exports, error)
}

// Exports is the named-export table of an evaluated module.
type Exports map[string]any

// EntryFunc is a widget entry point: it renders into the mount's
// container and returns the renderer's cleanup. Entry points are
// looked up on the exports table as "default", then "render", then
// "mount".
type EntryFunc func(ctx context.Context, mountID string, inputs map[string]any) (cleanup func() error, err error)

// Dispatch is one service's procedure table, bound as a global for
// embedded mounts. Only procedures the manifest declares get entries.
type Dispatch map[string]func(ctx context.Context, args any) (service.Result, error)

// entryPoint resolves the widget entry from an exports table.
func entryPoint(exports Exports) (EntryFunc, bool) {
	for _, name := range []string{"default", "render", "mount"} {
		if fn, ok := exports[name].(EntryFunc); ok {
			return fn, true
		}
		if fn, ok := exports[name].(func(ctx context.Context, mountID string, inputs map[string]any) (func() error, error)); ok {
			return fn, true
		}
	}
	return nil, false
}
