package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/ryanuber/go-glob"
	"gopkg.in/yaml.v3"
)

// HandleEntry is one configured provider handle, read from the YAML
// registry file (spec §3 ProviderHandle, §6 "hot-reloaded provider
// handle registry").
type HandleEntry struct {
	ID          string `yaml:"id"`
	Family      string `yaml:"family"` // "webhook" or "bot"
	OutboundURL string `yaml:"outboundUrl"`
	Credential  string `yaml:"credential"`
	Enabled     bool   `yaml:"enabled"`
}

type handleFile struct {
	Handles      []HandleEntry `yaml:"handles"`
	AllowedHosts []string      `yaml:"allowedHosts"` // glob patterns, e.g. "*.example.com"
}

// HandleRegistry holds the current set of configured handles, reloaded
// whenever its backing file changes on disk (spec §6: the registry is
// "hot-reloaded", not restart-only).
type HandleRegistry struct {
	mu      sync.RWMutex
	path    string
	entries []HandleEntry
	hosts   []string
	watcher *fsnotify.Watcher
}

// LoadHandleRegistry reads path once and starts an fsnotify watcher
// that reloads it on every write. If path is empty, it returns an
// empty, non-watching registry with no handles (useful for tests).
func LoadHandleRegistry(path string) (*HandleRegistry, error) {
	r := &HandleRegistry{path: path}
	if path == "" {
		return r, nil
	}

	if err := r.reload(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create handle-registry watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config: watch handle-registry file: %w", err)
	}
	r.watcher = w

	go r.watch()
	return r, nil
}

func (r *HandleRegistry) watch() {
	for {
		select {
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				_ = r.reload()
			}
		case _, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (r *HandleRegistry) reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("config: read handle registry: %w", err)
	}

	var parsed handleFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse handle registry: %w", err)
	}

	r.mu.Lock()
	r.entries = parsed.Handles
	r.hosts = parsed.AllowedHosts
	r.mu.Unlock()
	return nil
}

// Handles returns a snapshot of the current handle entries for the
// given family ("webhook" or "bot").
func (r *HandleRegistry) Handles(family string) []HandleEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]HandleEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Enabled && e.Family == family {
			out = append(out, e)
		}
	}
	return out
}

// IsAllowedHost reports whether host matches one of the configured
// allowlist globs, guarding against a handle pointing at an
// unrecognized outbound endpoint (e.g. a misconfigured webhook URL).
func (r *HandleRegistry) IsAllowedHost(host string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.hosts) == 0 {
		return true // no allowlist configured: permissive default
	}
	for _, pattern := range r.hosts {
		if glob.Glob(pattern, host) {
			return true
		}
	}
	return false
}

// Close stops the watcher goroutine, if one is running.
func (r *HandleRegistry) Close() error {
	if r.watcher == nil {
		return nil
	}
	return r.watcher.Close()
}
