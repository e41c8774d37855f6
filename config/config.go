// Package config loads the host's service map and environment presets
// from JSON files, with credentials referenced by environment variable
// and optionally supplied through a .env file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/weftwork/weft/service"
	"github.com/weftwork/weft/widget"
)

// LoadDotenv loads variables from the given .env files into the
// process environment. Missing files are skipped; existing variables
// are never overwritten.
func LoadDotenv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// serviceEntry is the wire form of one service configuration.
// Durations travel as integer seconds.
type serviceEntry struct {
	Kind           string                 `json:"kind"`
	Target         string                 `json:"target,omitempty"`
	Args           []string               `json:"args,omitempty"`
	Env            map[string]string      `json:"env,omitempty"`
	Operations     []service.APIOperation `json:"operations,omitempty"`
	Auth           *service.AuthConfig    `json:"auth,omitempty"`
	TTLSeconds     int                    `json:"ttlSeconds,omitempty"`
	RateLimit      float64                `json:"rateLimit,omitempty"`
	RateBurst      int                    `json:"rateBurst,omitempty"`
	TimeoutSeconds int                    `json:"timeoutSeconds,omitempty"`
}

// LoadServices parses a service map file. Keys are service names.
func LoadServices(path string) (map[string]service.Config, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service map: %w", err)
	}
	return ParseServices(payload)
}

// ParseServices parses service map JSON.
func ParseServices(payload []byte) (map[string]service.Config, error) {
	var entries map[string]serviceEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, fmt.Errorf("parse service map: %w", err)
	}

	configs := make(map[string]service.Config, len(entries))
	for name, entry := range entries {
		kind := service.Kind(strings.TrimSpace(entry.Kind))
		if kind == "" {
			return nil, fmt.Errorf("service %s: kind is required", name)
		}
		configs[name] = service.Config{
			Kind:       kind,
			Target:     entry.Target,
			Args:       entry.Args,
			Env:        entry.Env,
			Operations: entry.Operations,
			Auth:       entry.Auth,
			CacheTTL:   time.Duration(entry.TTLSeconds) * time.Second,
			RateLimit:  entry.RateLimit,
			RateBurst:  entry.RateBurst,
			Timeout:    time.Duration(entry.TimeoutSeconds) * time.Second,
		}
	}
	return configs, nil
}

// LoadEnvironment parses an environment preset file.
func LoadEnvironment(path string) (widget.Environment, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return widget.Environment{}, fmt.Errorf("read environment: %w", err)
	}
	return ParseEnvironment(payload)
}

// ParseEnvironment parses environment preset JSON and validates the
// positional preload contract.
func ParseEnvironment(payload []byte) (widget.Environment, error) {
	var env widget.Environment
	if err := json.Unmarshal(payload, &env); err != nil {
		return widget.Environment{}, fmt.Errorf("parse environment: %w", err)
	}
	if len(env.PreloadModules) != len(env.PreloadGlobals) {
		return widget.Environment{}, fmt.Errorf("environment %s: %d preload modules but %d globals; the mapping is positional",
			env.Name, len(env.PreloadModules), len(env.PreloadGlobals))
	}
	for name := range env.Packages {
		if !widget.ValidPackageName(name) {
			return widget.Environment{}, fmt.Errorf("environment %s: invalid package name %q", env.Name, name)
		}
	}
	return env, nil
}

// Getenv returns a trimmed environment variable, or the fallback when
// unset or blank.
func Getenv(key, fallback string) string {
	return firstNonEmpty(strings.TrimSpace(os.Getenv(key)), fallback)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
