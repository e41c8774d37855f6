package compiler

import (
	"regexp"
	"sort"
	"strings"
)

// Module specifier positions in compiler-produced module code. The
// input is a closed set of specifier forms, so a text-level rewrite is
// sufficient here; the contract (longest package name first,
// subpath-aware) must hold for any substitute implementation.
var (
	importFromRe = regexp.MustCompile(`(\b(?:import|export)\b[^;'"]*?\bfrom\s*)(['"])([^'"]+)(['"])`)
	importBareRe = regexp.MustCompile(`(\bimport\s+)(['"])([^'"]+)(['"])`)
	importCallRe = regexp.MustCompile(`(\bimport\s*\(\s*)(['"])([^'"]+)(['"])`)
)

// resolver rewrites bare import specifiers to external module URLs.
type resolver struct {
	base string
	// names is every resolvable package name, longest first, so a
	// shorter package name never matches inside a longer one's
	// specifier.
	names    []string
	versions map[string]string
}

func newResolver(base string, packages map[string]string) *resolver {
	names := make([]string, 0, len(packages))
	for name := range packages {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return &resolver{base: strings.TrimSuffix(base, "/"), names: names, versions: packages}
}

// rewrite replaces every bare specifier in code that matches a known
// package, including subpath imports. Unknown specifiers are reported
// so the caller can surface them as warnings.
func (r *resolver) rewrite(code string) (string, []string) {
	var unresolved []string
	seen := make(map[string]bool)

	replace := func(match string, re *regexp.Regexp) string {
		groups := re.FindStringSubmatch(match)
		spec := groups[3]
		target, ok := r.resolve(spec)
		if !ok {
			if bareSpecifier(spec) && !seen[spec] {
				seen[spec] = true
				unresolved = append(unresolved, spec)
			}
			return match
		}
		return groups[1] + groups[2] + target + groups[4]
	}

	code = importFromRe.ReplaceAllStringFunc(code, func(m string) string { return replace(m, importFromRe) })
	code = importCallRe.ReplaceAllStringFunc(code, func(m string) string { return replace(m, importCallRe) })
	code = importBareRe.ReplaceAllStringFunc(code, func(m string) string { return replace(m, importBareRe) })
	return code, unresolved
}

// resolve maps one specifier to its external URL.
func (r *resolver) resolve(spec string) (string, bool) {
	if !bareSpecifier(spec) {
		return "", false
	}
	for _, name := range r.names {
		if spec != name && !strings.HasPrefix(spec, name+"/") {
			continue
		}
		subpath := strings.TrimPrefix(spec, name)
		return r.base + "/" + name + pinSuffix(r.versions[name]) + subpath, true
	}
	return "", false
}

// PackageURL renders the external module URL for one package at one
// manifest version range, using the same pinning rules the import
// rewrite applies.
func PackageURL(base, name, rng string) string {
	return strings.TrimSuffix(base, "/") + "/" + name + pinSuffix(rng)
}

// bareSpecifier reports whether spec is a bare package specifier
// rather than a relative path or absolute URL.
func bareSpecifier(spec string) bool {
	if spec == "" {
		return false
	}
	if strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || strings.HasPrefix(spec, "/") {
		return false
	}
	return !strings.Contains(spec, "://") && !strings.HasPrefix(spec, "data:")
}

/// pinSuffix derives the version pin from a manifest range:
// caret ranges pin to major only, tilde ranges to major.minor, exact
// versions pass through verbatim, and latest/* stay unpinned.
func pinSuffix(rng string) string {
	rng = strings.TrimSpace(rng)
	switch {
	case rng == "" || rng == "latest" || rng == "*":
		return ""
	case strings.HasPrefix(rng, "^"):
		return "@" + versionPrefix(rng[1:], 1)
	case strings.HasPrefix(rng, "~"):
		return "@" + versionPrefix(rng[1:], 2)
	default:
		return "@" + rng
	}
}

// versionPrefix keeps the first n dotted segments of version.
func versionPrefix(version string, n int) string {
	parts := strings.Split(version, ".")
	if len(parts) > n {
		parts = parts[:n]
	}
	return strings.Join(parts, ".")
}
