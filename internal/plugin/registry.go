// File: internal/plugin/registry.go
// Brief: Stack plugin registry with priority-ordered detection.

package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-logr/logr"
)

// ErrNoStackDetected is returned by Detect when every detector declined.
var ErrNoStackDetected = errors.New("no suitable stack detected")

// DuplicateStackError reports a second registration for the same stack key.
type DuplicateStackError struct {
	StackKey string
}

func (e *DuplicateStackError) Error() string {
	return fmt.Sprintf("stack %q already registered", e.StackKey)
}

// Registry maps stack keys to plugin bundles. Registration happens once at
// process start; afterwards the registry is read-only and safe for
// concurrent use by any number of pipeline sessions.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]*Plugin
	log     logr.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(log logr.Logger) *Registry {
	return &Registry{
		plugins: map[string]*Plugin{},
		log:     log.WithName("registry"),
	}
}

// Register adds a plugin bundle. A bundle must carry a stack key and a
// detector; registering a key twice fails with DuplicateStackError.
func (r *Registry) Register(p *Plugin) error {
	if p == nil || p.StackKey == "" {
		return errors.New("plugin must declare a stack key")
	}
	if p.Detector == nil {
		return fmt.Errorf("plugin %q must declare a detector", p.StackKey)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plugins[p.StackKey]; exists {
		return &DuplicateStackError{StackKey: p.StackKey}
	}
	r.plugins[p.StackKey] = p
	return nil
}

// Get returns the bundle registered for a stack key.
func (r *Registry) Get(stackKey string) (*Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[stackKey]
	return p, ok
}

// StackKeys returns every registered key, sorted.
func (r *Registry) StackKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.plugins))
	for key := range r.plugins {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// detectionOrder returns the plugins sorted by descending detector priority,
// with stack key as the tie-break so equal priorities stay deterministic.
func (r *Registry) detectionOrder() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ordered := make([]*Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool {
		pi, pj := ordered[i].Detector.Priority(), ordered[j].Detector.Priority()
		if pi != pj {
			return pi > pj
		}
		return ordered[i].StackKey < ordered[j].StackKey
	})
	return ordered
}

// Detect runs every detector highest-priority-first and returns the first
// plan produced. A detector error (or panic) is logged and treated as "found
// nothing"; the scan continues with the next detector. When the caller
// supplied a repository URL and the winning plan lacks one, it is injected
// before the plan is returned. No plan at all yields ErrNoStackDetected.
func (r *Registry) Detect(ctx context.Context, repoPath string, dctx DetectionContext) (*StackPlan, error) {
	for _, p := range r.detectionOrder() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		plan, err := r.runDetector(ctx, p, repoPath, dctx)
		if err != nil {
			r.log.Error(err, "detector failed", "stack", p.StackKey)
			continue
		}
		if plan == nil {
			continue
		}
		if plan.StackKey == "" {
			plan.StackKey = p.StackKey
		}
		if dctx.RepositoryURL != "" && plan.ConfigString(ConfigRepositoryURL) == "" {
			plan.SetConfig(ConfigRepositoryURL, dctx.RepositoryURL)
		}
		r.log.V(1).Info("stack detected", "stack", plan.StackKey, "priority", p.Detector.Priority())
		return plan, nil
	}
	return nil, ErrNoStackDetected
}

// runDetector isolates one detector call: a panic inside a plugin is
// converted to an error so the remaining detectors still run.
func (r *Registry) runDetector(ctx context.Context, p *Plugin, repoPath string, dctx DetectionContext) (plan *StackPlan, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			plan = nil
			err = fmt.Errorf("detector panic: %v", rec)
		}
	}()
	return p.Detector.Detect(ctx, repoPath, dctx)
}

// HealthReport aggregates per-plugin health. Stacks maps each stack key to
// its failure message, "" meaning healthy.
type HealthReport struct {
	Healthy bool
	Stacks  map[string]string
}

// Health probes every plugin. The registry is healthy when at least one
// plugin is.
func (r *Registry) Health(ctx context.Context) HealthReport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	report := HealthReport{Stacks: make(map[string]string, len(r.plugins))}
	for key, p := range r.plugins {
		if p.Health == nil {
			report.Stacks[key] = ""
			report.Healthy = true
			continue
		}
		if err := p.Health(ctx); err != nil {
			report.Stacks[key] = err.Error()
			continue
		}
		report.Stacks[key] = ""
		report.Healthy = true
	}
	return report
}
