package credentials

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ResolveMode controls whether resolved secrets are returned as values or
// masked placeholders (for display).
type ResolveMode string

const (
	ResolveModeValue ResolveMode = "value"
	ResolveModeMask  ResolveMode = "mask"
)

// Provider resolves secret paths to string values.
type Provider interface {
	Resolve(ctx context.Context, path string) (string, error)
}

// ResolverOptions customize resolver behavior.
type ResolverOptions struct {
	DefaultProvider string
	Mode            ResolveMode
	Mask            string
	// BaseDir anchors relative file provider paths.
	BaseDir string
}

// AuditEntry records one resolved secret reference. Values never appear in
// the audit trail.
type AuditEntry struct {
	Provider  string
	Path      string
	Reference string
	Masked    bool
}

// AuditReport is a sorted list of resolved references.
type AuditReport struct {
	Entries []AuditEntry
}

func (r AuditReport) Empty() bool { return len(r.Entries) == 0 }

// Resolver turns secret references inside credential maps into values.
type Resolver struct {
	providers       map[string]Provider
	defaultProvider string
	mode            ResolveMode
	mask            string
	cache           map[string]string
	seen            map[string]struct{}
	audit           []AuditEntry
}

// NewResolver builds a resolver from provider declarations.
func NewResolver(cfg Config, opts ResolverOptions) (*Resolver, error) {
	providers := make(map[string]Provider, len(cfg.Providers))
	for name, pcfg := range cfg.Providers {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("secret provider name cannot be empty")
		}
		switch strings.ToLower(strings.TrimSpace(pcfg.Type)) {
		case "file":
			provider, err := newFileProvider(pcfg.Path, opts.BaseDir)
			if err != nil {
				return nil, fmt.Errorf("provider %q: %w", name, err)
			}
			providers[name] = provider
		case "vault":
			provider, err := newVaultProvider(pcfg)
			if err != nil {
				return nil, fmt.Errorf("provider %q: %w", name, err)
			}
			providers[name] = provider
		case "aws":
			providers[name] = newAWSProvider(pcfg)
		case "":
			return nil, fmt.Errorf("provider %q missing type", name)
		default:
			return nil, fmt.Errorf("provider %q has unsupported type %q", name, pcfg.Type)
		}
	}
	mode := opts.Mode
	if mode == "" {
		mode = ResolveModeValue
	}
	defaultProvider := strings.TrimSpace(opts.DefaultProvider)
	if defaultProvider == "" {
		defaultProvider = strings.TrimSpace(cfg.DefaultProvider)
	}
	return &Resolver{
		providers:       providers,
		defaultProvider: defaultProvider,
		mode:            mode,
		mask:            strings.TrimSpace(opts.Mask),
		cache:           map[string]string{},
		seen:            map[string]struct{}{},
	}, nil
}

// ResolveMap resolves every secret reference in a flat credentials map and
// returns a new map. Plain values pass through unchanged.
func (r *Resolver) ResolveMap(ctx context.Context, in map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(in))
	for key, value := range in {
		resolved, _, err := r.ResolveString(ctx, value)
		if err != nil {
			return nil, fmt.Errorf("credential %q: %w", key, err)
		}
		out[key] = resolved
	}
	return out, nil
}

// ResolveString resolves a single value when it is a secret reference.
// replaced=false means the value was returned as-is.
func (r *Resolver) ResolveString(ctx context.Context, value string) (resolved string, replaced bool, err error) {
	ref, ok, err := ParseRef(value, r.defaultProvider)
	if !ok {
		return value, false, nil
	}
	if err != nil {
		return "", false, err
	}
	val, err := r.resolveRef(ctx, ref)
	if err != nil {
		return "", false, err
	}
	if r.mode == ResolveModeMask {
		return r.maskFor(ref), true, nil
	}
	return val, true, nil
}

func (r *Resolver) resolveRef(ctx context.Context, ref Ref) (string, error) {
	key := ref.Provider + "|" + ref.Path
	if cached, ok := r.cache[key]; ok {
		r.record(ref)
		return cached, nil
	}
	provider, ok := r.providers[ref.Provider]
	if !ok {
		return "", fmt.Errorf("secret provider %q is not configured", ref.Provider)
	}
	val, err := provider.Resolve(ctx, ref.Path)
	if err != nil {
		return "", err
	}
	r.cache[key] = val
	r.record(ref)
	return val, nil
}

func (r *Resolver) record(ref Ref) {
	key := ref.Provider + "|" + ref.Path
	if _, ok := r.seen[key]; ok {
		return
	}
	r.seen[key] = struct{}{}
	r.audit = append(r.audit, AuditEntry{
		Provider:  ref.Provider,
		Path:      ref.Path,
		Reference: ref.Reference(),
		Masked:    r.mode == ResolveModeMask,
	})
}

func (r *Resolver) maskFor(ref Ref) string {
	if r.mask != "" {
		return r.mask
	}
	return "[secret:" + ref.Provider + "/" + ref.Path + "]"
}

// Audit returns a sorted copy of the references resolved so far.
func (r *Resolver) Audit() AuditReport {
	entries := append([]AuditEntry(nil), r.audit...)
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Provider != entries[j].Provider {
			return entries[i].Provider < entries[j].Provider
		}
		return entries[i].Path < entries[j].Path
	})
	return AuditReport{Entries: entries}
}

// ProviderNames lists configured provider names, sorted.
func (r *Resolver) ProviderNames() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadAndResolve loads a credentials file and resolves every reference in
// its credentials block. Relative file provider paths are anchored at the
// credentials file's directory.
func LoadAndResolve(ctx context.Context, path string) (map[string]string, AuditReport, error) {
	f, err := Load(path)
	if err != nil {
		return nil, AuditReport{}, err
	}
	baseDir := filepath.Dir(path)
	if abs, err := filepath.Abs(baseDir); err == nil {
		baseDir = abs
	}
	resolver, err := NewResolver(f.Config(), ResolverOptions{BaseDir: baseDir})
	if err != nil {
		return nil, AuditReport{}, err
	}
	creds, err := resolver.ResolveMap(ctx, f.Credentials)
	if err != nil {
		return nil, AuditReport{}, err
	}
	return creds, resolver.Audit(), nil
}
