package mount

import (
	"sync"

	"github.com/weftwork/weft/bridge"
)

// Mode distinguishes the two execution contexts a widget can mount in.
type Mode string

const (
	// ModeEmbedded runs the widget in the trusted surface the hosting
	// application owns.
	ModeEmbedded Mode = "embedded"

	// ModeSandboxed runs the widget in an isolated browsing context
	// that talks back over the bridge.
	ModeSandboxed Mode = "iframe"
)

// MountedWidget is the handle for one live mount. A handle is only
// ever returned complete: if any mount step fails, everything already
// done is rolled back and no handle exists.
type MountedWidget struct {
	// ID is the unique mount id. Ids are never reused.
	ID string

	// Widget is the manifest name of the mounted widget.
	Widget string

	// Mode records which context the widget mounted in.
	Mode Mode

	// Document is the generated sandbox document. Sandboxed mounts only.
	Document string

	// Session is the bridge session. Sandboxed mounts only.
	Session *bridge.Session

	// Sandbox is the capability token list the isolated context runs
	// under. Always includes allow-scripts. Sandboxed mounts only.
	Sandbox []string

	mu        sync.Mutex
	unmounted bool
	// cleanups run in reverse order on unmount.
	cleanups []func() error
}

// Unmount tears the mount down in reverse mount order: renderer
// cleanup first, then styles and globals, then the container.
// Idempotent; a cleanup step failing does not stop the remaining
// steps, and the first failure is returned.
func (w *MountedWidget) Unmount() error {
	w.mu.Lock()
	if w.unmounted {
		w.mu.Unlock()
		return nil
	}
	w.unmounted = true
	cleanups := w.cleanups
	w.cleanups = nil
	w.mu.Unlock()

	var firstErr error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Unmounted reports whether the handle has been torn down.
func (w *MountedWidget) Unmounted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unmounted
}

func (w *MountedWidget) push(cleanup func() error) {
	w.mu.Lock()
	w.cleanups = append(w.cleanups, cleanup)
	w.mu.Unlock()
}
