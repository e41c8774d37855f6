package bridge

import (
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/weftwork/weft/compiler"
	"github.com/weftwork/weft/widget"
)

// DocumentOptions configures sandbox document generation.
type DocumentOptions struct {
	// CDNBase is the external module host for import map entries.
	// Default: compiler.DefaultCDNBase.
	CDNBase string

	// BridgeURL is the websocket endpoint the sandbox connects back
	// to, without session routing. Default: "/bridge".
	BridgeURL string

	// Framework is the component framework whose root-mounting API
	// renders default-export components. Default:
	// compiler.DefaultFramework.
	Framework string

	// ImportMap entries override everything derived from the
	// environment and manifest.
	ImportMap map[string]string

	// Inputs are serialized into the document and handed to the widget
	// at evaluation.
	Inputs map[string]any
}

// BuildDocument renders the standalone HTML document for one sandboxed
// mount: merged import map, theme style, bridge script bound to the
// session, serialized inputs, and the compiled module inline.
//
// The import map merges three layers, later layers winning: the
// environment's baseline packages and explicit entries, the manifest's
// packages, and finally caller overrides.
func BuildDocument(compiled widget.Compiled, env widget.Environment, session *Session, opts DocumentOptions) (string, error) {
	if strings.TrimSpace(compiled.Code) == "" {
		return "", fmt.Errorf("widget %s: compiled code is empty", compiled.Manifest.Name)
	}
	base := opts.CDNBase
	if base == "" {
		base = compiler.DefaultCDNBase
	}
	bridgeURL := opts.BridgeURL
	if bridgeURL == "" {
		bridgeURL = "/bridge"
	}
	framework := opts.Framework
	if framework == "" {
		framework = compiler.DefaultFramework
	}

	imports := importMap(compiled.Manifest, env, base, framework, opts.ImportMap)
	importJSON, err := json.MarshalIndent(map[string]any{"imports": imports}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode import map: %w", err)
	}
	inputJSON, err := json.Marshal(opts.Inputs)
	if err != nil {
		return "", fmt.Errorf("encode inputs: %w", err)
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(compiled.Manifest.Name))
	fmt.Fprintf(&b, "<script type=\"importmap\">\n%s\n</script>\n", importJSON)
	if env.ThemeCSS != "" {
		fmt.Fprintf(&b, "<style>\n%s\n</style>\n", env.ThemeCSS)
	}
	b.WriteString("</head>\n<body>\n<div id=\"widget-root\"></div>\n")
	fmt.Fprintf(&b, "<script>\n%s\n</script>\n", bridgeScript(compiled.Manifest, session, bridgeURL))
	fmt.Fprintf(&b, "<script>window.__weftInputs = %s;</script>\n", inputJSON)
	preloadScript(&b, env)
	fmt.Fprintf(&b, "<script type=\"module\">\nconst __weftCode = %s;\n%s</script>\n", jsString(compiled.Code), bootSnippet(framework))
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}

// importMap builds the merged specifier table.
func importMap(m widget.Manifest, env widget.Environment, base, framework string, overrides map[string]string) map[string]string {
	imports := make(map[string]string)
	for name, rng := range env.MergedPackages(m) {
		imports[name] = compiler.PackageURL(base, name, rng)
	}
	// the boot script imports the framework by bare specifier
	if _, ok := imports[framework]; !ok {
		imports[framework] = compiler.PackageURL(base, framework, "")
	}
	for name, url := range env.ImportMap {
		imports[name] = url
	}
	for name, url := range overrides {
		imports[name] = url
	}
	return imports
}

// preloadScript emits the environment's positional preload bindings:
// the nth module binds to the nth global name.
func preloadScript(b *strings.Builder, env widget.Environment) {
	for i, module := range env.PreloadModules {
		if i >= len(env.PreloadGlobals) {
			break
		}
		fmt.Fprintf(b, "<script type=\"module\">import * as m%d from %s; window[%s] = m%d;</script>\n",
			i, jsString(module), jsString(env.PreloadGlobals[i]), i)
	}
}

// methodTable renders the explicit service→procedure dispatch table
// the bridge script exposes as window.services. Services and
// procedures are emitted in sorted order so documents are
// deterministic.
func methodTable(m widget.Manifest) string {
	deps := append([]widget.ServiceDependency(nil), m.Services...)
	sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })

	var b strings.Builder
	b.WriteString("{")
	for i, dep := range deps {
		if i > 0 {
			b.WriteString(",")
		}
		procedures := append([]string(nil), dep.Procedures...)
		sort.Strings(procedures)
		fmt.Fprintf(&b, "\n  %s: {", jsString(dep.Name))
		for j, procedure := range procedures {
			if j > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "\n    %s: (args) => __weftBridge.call(%s, %s, args)",
				jsString(procedure), jsString(dep.Name), jsString(procedure))
		}
		b.WriteString("\n  }")
	}
	b.WriteString("\n}")
	return b.String()
}

// jsString renders a Go string as a JS string literal.
func jsString(s string) string {
	encoded, _ := json.Marshal(s)
	return string(encoded)
}
