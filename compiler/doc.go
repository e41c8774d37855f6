// Package compiler turns externally generated widget source into
// loadable module code.
//
// Compilation is deterministic and content-addressed: the hash of the
// pre-transform source identifies the artifact, so cache lookups run
// before any compilation work. The pipeline is
//
//  1. optional TypeScript erasure,
//  2. markup-to-factory-call transform,
//  3. bare-import rewriting to pinned external module URLs.
//
// # Import Resolution
//
// Bare specifiers from the union of the widget manifest and the
// environment baseline are rewritten to CDN URLs. Version ranges pin as
// follows: caret ranges to the major version, tilde ranges to
// major.minor, exact versions verbatim, latest/* unpinned. Packages are
// matched longest name first so a short name never matches inside a
// longer one's specifier, and subpath imports keep their subpath.
//
// # Diagnostics
//
// A compile producing only warnings returns usable code with the
// warnings attached. Fatal diagnostics yield empty code and a
// [CompileError]; callers must treat empty code as unmountable.
package compiler
