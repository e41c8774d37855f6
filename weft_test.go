package weft

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/weftwork/weft/mount"
	"github.com/weftwork/weft/service"
	"github.com/weftwork/weft/service/memstore"
	"github.com/weftwork/weft/widget"
)

func newTestRuntime(t *testing.T) *Weft {
	t.Helper()
	memstore.ResetShared()
	t.Cleanup(memstore.ResetShared)

	w, err := New(Options{
		Services: map[string]service.Config{
			"prefs": {Kind: service.KindStore, CacheTTL: time.Minute},
		},
		Environment: widget.Environment{
			Name:     "dashboard",
			Packages: map[string]string{"preact": "^10.19.0"},
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

const widgetSource = `import { useState } from "preact/hooks";

export default function Card() {
  return <div class="card">hello</div>;
}
`

func TestCompileAndSandboxMount(t *testing.T) {
	w := newTestRuntime(t)

	manifest := widget.Manifest{
		Name:     "status-card",
		Services: []widget.ServiceDependency{{Name: "prefs", Procedures: []string{"get", "set"}}},
	}
	compiled, err := w.Compile(widgetSource, manifest)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if !strings.Contains(compiled.Code, "https://esm.sh/preact@10/hooks") {
		t.Errorf("Code missing rewritten import:\n%s", compiled.Code)
	}

	handle, err := w.MountSandboxed(context.Background(), compiled, map[string]any{"user": "u1"})
	if err != nil {
		t.Fatalf("MountSandboxed() error = %v", err)
	}
	defer handle.Unmount()

	if handle.Mode != mount.ModeSandboxed || handle.Document == "" {
		t.Errorf("handle = %+v, want a sandboxed mount with a document", handle)
	}
	if _, ok := w.Bridge().Session(handle.Session.ID); !ok {
		t.Error("session not registered with the facade's bridge")
	}
}

func TestFacadeRoutesStoreCalls(t *testing.T) {
	w := newTestRuntime(t)
	ctx := context.Background()

	set, err := w.CallProcedure(ctx, "prefs", "set", map[string]any{"key": "theme", "value": "dark"}, service.CallOptions{})
	if err != nil {
		t.Fatalf("CallProcedure(set) error = %v", err)
	}
	if !set.Success {
		t.Fatalf("set = %+v, want success", set)
	}

	got, err := w.CallProcedure(ctx, "prefs", "get", map[string]any{"key": "theme"}, service.CallOptions{})
	if err != nil {
		t.Fatalf("CallProcedure(get) error = %v", err)
	}
	data := got.Data.(map[string]any)
	if data["value"] != "dark" {
		t.Errorf("get = %#v, want stored value", data)
	}

	// identical call comes from the result cache
	again, err := w.CallProcedure(ctx, "prefs", "get", map[string]any{"key": "theme"}, service.CallOptions{})
	if err != nil {
		t.Fatalf("CallProcedure(get again) error = %v", err)
	}
	if !again.Cached {
		t.Error("repeat call not served from cache")
	}
}

func TestClose_RejectsFurtherCalls(t *testing.T) {
	w := newTestRuntime(t)
	ctx := context.Background()

	if _, err := w.CallProcedure(ctx, "prefs", "get", map[string]any{"key": "x"}, service.CallOptions{}); err != nil {
		t.Fatalf("CallProcedure() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := w.CallProcedure(ctx, "prefs", "get", map[string]any{"key": "x"}, service.CallOptions{}); !errors.Is(err, service.ErrProxyClosed) {
		t.Errorf("error after Close = %v, want ErrProxyClosed", err)
	}
}
