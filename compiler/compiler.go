package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/weftwork/weft/widget"
)

// Default configuration values.
const (
	DefaultCDNBase      = "https://esm.sh"
	DefaultFramework    = "preact"
	DefaultMaxArtifacts = 128
)

// Logger is an optional interface for observability during compilation.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: logging must be best-effort; Logf should not panic.
type Logger interface {
	// Logf logs a formatted message.
	Logf(format string, args ...any)
}

// Options configures a Compiler.
type Options struct {
	// TypeScript enables type erasure before the markup transform.
	TypeScript bool

	// CacheDir, when set, persists compiled artifacts keyed by source
	// hash so identical source never compiles twice across processes.
	CacheDir string

	// CDNBase is the external module location prefix bare imports are
	// rewritten to. Default: DefaultCDNBase.
	CDNBase string

	// Framework is the component framework package whose jsx-runtime
	// backs transformed markup. Default: DefaultFramework.
	Framework string

	// Environment supplies the baseline packages resolved for every
	// widget in addition to its own manifest.
	Environment widget.Environment

	// MaxArtifacts bounds the in-memory artifact cache.
	// Default: DefaultMaxArtifacts.
	MaxArtifacts int

	// Logger is an optional logger for compile events.
	Logger Logger
}

// applyDefaults sets default values for unset optional fields.
func (o *Options) applyDefaults() {
	if o.CDNBase == "" {
		o.CDNBase = DefaultCDNBase
	}
	if o.Framework == "" {
		o.Framework = DefaultFramework
	}
	if o.MaxArtifacts == 0 {
		o.MaxArtifacts = DefaultMaxArtifacts
	}
}

// Compiler turns widget source text into loadable module code. It is
// safe for concurrent use.
type Compiler struct {
	opts      Options
	artifacts *lru.Cache[string, widget.Compiled]
}

// New creates a Compiler with the given options.
func New(opts Options) (*Compiler, error) {
	opts.applyDefaults()
	artifacts, err := lru.New[string, widget.Compiled](opts.MaxArtifacts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return &Compiler{opts: opts, artifacts: artifacts}, nil
}

// Hash returns the deterministic content digest of pre-transform
// source. Identical source always yields the identical hash.
func Hash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// Compile transforms source against manifest and returns the compiled
// artifact. On fatal diagnostics the returned Compiled has empty code
// and the error is a *CompileError; empty code must never be mounted.
func (c *Compiler) Compile(source string, m widget.Manifest) (widget.Compiled, error) {
	hash := Hash(source)

	if artifact, ok := c.artifacts.Get(hash); ok {
		artifact.Manifest = m
		return artifact, nil
	}
	if artifact, ok := c.readCacheDir(hash, m); ok {
		c.artifacts.Add(hash, artifact)
		return artifact, nil
	}

	start := time.Now()

	code := source
	if c.opts.TypeScript {
		code = stripTypes(code)
	}

	code, sawMarkup, diags := transformMarkup(code)
	if hasFatal(diags) {
		return widget.Compiled{Hash: hash, Manifest: m}, &CompileError{Diagnostics: diags}
	}
	if sawMarkup {
		code = runtimeImport(c.opts.Framework) + code
	}

	packages := c.opts.Environment.MergedPackages(m)
	code, unresolved := newResolver(c.opts.CDNBase, packages).rewrite(code)

	artifact := widget.Compiled{
		Code:       code,
		Hash:       hash,
		Manifest:   m,
		DurationMs: time.Since(start).Milliseconds(),
	}
	for _, d := range diags {
		artifact.Warnings = append(artifact.Warnings, d.String())
	}
	for _, spec := range unresolved {
		artifact.Warnings = append(artifact.Warnings, fmt.Sprintf("unresolved bare import %q", spec))
	}

	c.artifacts.Add(hash, artifact)
	c.writeCacheDir(artifact)
	c.logf("compiled %s (%s) in %dms", m.Name, shortHash(hash), artifact.DurationMs)

	return artifact, nil
}

// readCacheDir loads a persisted artifact for hash, if any.
func (c *Compiler) readCacheDir(hash string, m widget.Manifest) (widget.Compiled, bool) {
	if c.opts.CacheDir == "" {
		return widget.Compiled{}, false
	}
	data, err := os.ReadFile(c.artifactPath(hash))
	if err != nil || len(data) == 0 {
		return widget.Compiled{}, false
	}
	return widget.Compiled{Code: string(data), Hash: hash, Manifest: m}, true
}

// writeCacheDir persists an artifact; failures are logged, not fatal.
func (c *Compiler) writeCacheDir(artifact widget.Compiled) {
	if c.opts.CacheDir == "" || artifact.Code == "" {
		return
	}
	if err := os.MkdirAll(c.opts.CacheDir, 0o755); err != nil {
		c.logf("artifact cache dir: %v", err)
		return
	}
	if err := os.WriteFile(c.artifactPath(artifact.Hash), []byte(artifact.Code), 0o644); err != nil {
		c.logf("artifact cache write: %v", err)
	}
}

func (c *Compiler) artifactPath(hash string) string {
	return filepath.Join(c.opts.CacheDir, hash+".mjs")
}

func (c *Compiler) logf(format string, args ...any) {
	if c.opts.Logger != nil {
		c.opts.Logger.Logf(format, args...)
	}
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
