// Package widget defines the shared data model for compiled, mountable
// UI components: the Manifest a widget declares, the Compiled artifact
// the compiler produces, and the Environment preset a widget mounts into.
package widget

import "strings"

// Manifest describes a widget's identity, its external package
// dependencies, and the services it is allowed to call.
//
// Contract:
// - Immutability: a Manifest must not be modified after it has been
//   compiled against; the compiler and mounter read it concurrently.
// - Nil/zero: Packages may be nil, in which case only the environment's
//   baseline packages are resolved.
type Manifest struct {
	// Name is the widget's unique name.
	Name string `json:"name"`

	// Version is the widget's own version string.
	Version string `json:"version,omitempty"`

	// Platform is the target platform preset (environment name).
	Platform string `json:"platform,omitempty"`

	// Packages maps external package names to version ranges
	// ("^1.2.3", "~1.2.3", "1.2.3", "latest", "*").
	Packages map[string]string `json:"packages,omitempty"`

	// Services lists the service dependencies the widget may call.
	Services []ServiceDependency `json:"services,omitempty"`
}

// ServiceDependency declares one service a widget depends on and the
// procedures it is allowed to invoke on it.
type ServiceDependency struct {
	// Name is the service name as configured in the host.
	Name string `json:"name"`

	// Procedures lists the allowed procedure names.
	Procedures []string `json:"procedures,omitempty"`
}

// Service returns the declared dependency for the given service name.
func (m Manifest) Service(name string) (ServiceDependency, bool) {
	for _, dep := range m.Services {
		if dep.Name == name {
			return dep, true
		}
	}
	return ServiceDependency{}, false
}

// Allows reports whether the manifest declares the given
// service/procedure pair.
func (m Manifest) Allows(service, procedure string) bool {
	dep, ok := m.Service(service)
	if !ok {
		return false
	}
	for _, p := range dep.Procedures {
		if p == procedure {
			return true
		}
	}
	return false
}

// Compiled is the immutable output of a compile request.
//
// Hash is a deterministic digest of the pre-transform source: identical
// source always yields the same hash regardless of when it was
// compiled, so artifact caches can be consulted before any compilation
// work runs. Code is module-format text whose imports reference only
// rewritten external locations or globals injected at mount time.
type Compiled struct {
	// Code is the compiled module text. Empty when compilation
	// produced fatal diagnostics; empty code must never be mounted.
	Code string `json:"code"`

	// Hash is the content digest of the pre-transform source.
	Hash string `json:"hash"`

	// Manifest is the manifest the source was compiled against.
	Manifest Manifest `json:"manifest"`

	// Warnings holds non-fatal diagnostic messages.
	Warnings []string `json:"warnings,omitempty"`

	// DurationMs is the compile time in milliseconds. Zero for
	// artifacts served from a compile cache.
	DurationMs int64 `json:"durationMs"`
}

// Environment is a named bundle of baseline dependencies, theme CSS,
// and setup behavior shared by widgets targeting the same preset.
// The zero value is a valid, empty environment.
type Environment struct {
	// Name identifies the preset.
	Name string `json:"name"`

	// Packages are baseline packages resolved for every widget in
	// this environment, in addition to the widget's own manifest.
	Packages map[string]string `json:"packages,omitempty"`

	// ThemeCSS is style text injected once per mount.
	ThemeCSS string `json:"themeCss,omitempty"`

	// PreloadModules are module URLs loaded before widget evaluation.
	// The nth module is bound to the nth name in PreloadGlobals; this
	// positional mapping is a configuration contract, not inferred.
	PreloadModules []string `json:"preloadModules,omitempty"`

	// PreloadGlobals are the global names preload modules bind to.
	PreloadGlobals []string `json:"preloadGlobals,omitempty"`

	// ImportMap holds additional specifier-to-URL entries merged into
	// sandbox documents.
	ImportMap map[string]string `json:"importMap,omitempty"`
}

// MergedPackages returns the union of the environment baseline and the
// manifest packages. Manifest entries win on conflict.
func (e Environment) MergedPackages(m Manifest) map[string]string {
	merged := make(map[string]string, len(e.Packages)+len(m.Packages))
	for name, rng := range e.Packages {
		merged[name] = rng
	}
	for name, rng := range m.Packages {
		merged[name] = rng
	}
	return merged
}

// ValidPackageName reports whether name is usable as a bare import
// specifier package name (optionally scoped).
func ValidPackageName(name string) bool {
	if name == "" || strings.ContainsAny(name, " \t\n\"'") {
		return false
	}
	if strings.HasPrefix(name, "@") {
		parts := strings.SplitN(name[1:], "/", 2)
		return len(parts) == 2 && parts[0] != "" && parts[1] != ""
	}
	return !strings.HasPrefix(name, "/") && !strings.HasPrefix(name, ".")
}
