package bridge

import (
	"fmt"
	"strings"

	"github.com/weftwork/weft/widget"
)

// bridgeScript renders the in-document bridge client: a websocket back
// to the host, a pending map keyed by correlation id, and the explicit
// per-service method table under window.services. It mirrors the
// native Client protocol exactly.
func bridgeScript(m widget.Manifest, session *Session, bridgeURL string) string {
	endpoint := fmt.Sprintf("%s/%s?token=%s", strings.TrimSuffix(bridgeURL, "/"), session.ID, session.Token)

	var b strings.Builder
	b.WriteString("const __weftBridge = (() => {\n")
	fmt.Fprintf(&b, "  const url = (location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + %s;\n", jsString(endpoint))
	b.WriteString(`  const pending = new Map();
  const sock = new WebSocket(url);
  sock.onopen = () => { sock.send(JSON.stringify({ type: 'ready' })); };
  sock.onmessage = (event) => {
    let msg;
    try { msg = JSON.parse(event.data); } catch { return; }
    const entry = pending.get(msg.id);
    if (!entry) return; // unknown ids are dropped
    pending.delete(msg.id);
    if (msg.error) entry.reject(new Error(msg.error));
    else entry.resolve(msg.result);
  };
  sock.onclose = () => {
    for (const entry of pending.values()) entry.reject(new Error('bridge connection closed'));
    pending.clear();
  };
  function call(service, procedure, args) {
    const id = crypto.randomUUID();
    return new Promise((resolve, reject) => {
      pending.set(id, { resolve, reject });
      if (sock.readyState === WebSocket.OPEN) {
        sock.send(JSON.stringify({ type: 'service-call', id, service, procedure, args }));
      } else if (sock.readyState === WebSocket.CONNECTING) {
        sock.addEventListener('open', () => {
          sock.send(JSON.stringify({ type: 'service-call', id, service, procedure, args }));
        }, { once: true });
      } else {
        pending.delete(id);
        reject(new Error('bridge connection closed'));
      }
    });
  }
  return { call };
})();
`)
	fmt.Fprintf(&b, "window.services = %s;\n", methodTable(m))
	return b.String()
}

// bootSnippet loads the compiled module (inlined as __weftCode) and
// runs its entry point, trying the same export names the embedded
// mounter does: the default export first, then render, then mount. A
// default export is a component and goes through the framework's own
// root-mounting API; render and mount exports are plain calls.
// Blob-URL module loading keeps the document's import map in effect.
func bootSnippet(framework string) string {
	return fmt.Sprintf(`const __weftRoot = document.getElementById('widget-root');
const __weftModule = await import(URL.createObjectURL(new Blob([__weftCode], { type: 'text/javascript' })));
if (typeof __weftModule.default === 'function') {
  const { render, h } = await import(%s);
  render(h(__weftModule.default, window.__weftInputs), __weftRoot);
} else if (typeof __weftModule.render === 'function') {
  __weftModule.render(__weftRoot, window.__weftInputs, window.services);
} else if (typeof __weftModule.mount === 'function') {
  __weftModule.mount(__weftRoot, window.__weftInputs, window.services);
}
`, jsString(framework))
}
