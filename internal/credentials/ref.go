package credentials

import (
	"fmt"
	"strings"
)

const refScheme = "secret://"

// Ref is a parsed secret reference of the form
// secret://<provider>/<path>, secret:///<path> (default provider), or
// secret://<path> when a default provider is configured.
type Ref struct {
	Provider string
	Path     string
	Raw      string
}

// Reference returns the canonical form of the reference.
func (r Ref) Reference() string {
	return refScheme + r.Provider + "/" + r.Path
}

// ParseRef detects and parses a secret reference. ok=false means the value
// is a plain string, not a reference.
func ParseRef(value, defaultProvider string) (Ref, bool, error) {
	if !strings.HasPrefix(value, refScheme) {
		return Ref{}, false, nil
	}
	defaultProvider = strings.TrimSpace(defaultProvider)
	rest := strings.TrimSpace(strings.TrimPrefix(value, refScheme))
	if rest == "" {
		return Ref{}, true, fmt.Errorf("secret reference %q is missing provider and path", value)
	}
	if strings.HasPrefix(rest, "/") {
		path := strings.TrimPrefix(rest, "/")
		if path == "" {
			return Ref{}, true, fmt.Errorf("secret reference %q is missing path", value)
		}
		if defaultProvider == "" {
			return Ref{}, true, fmt.Errorf("secret reference %q requires a default provider", value)
		}
		return Ref{Provider: defaultProvider, Path: path, Raw: value}, true, nil
	}
	provider, path, found := strings.Cut(rest, "/")
	if !found {
		if defaultProvider == "" {
			return Ref{}, true, fmt.Errorf("secret reference %q is missing provider", value)
		}
		return Ref{Provider: defaultProvider, Path: provider, Raw: value}, true, nil
	}
	provider = strings.TrimSpace(provider)
	path = strings.TrimSpace(path)
	if provider == "" {
		if defaultProvider == "" {
			return Ref{}, true, fmt.Errorf("secret reference %q is missing provider", value)
		}
		provider = defaultProvider
	}
	if path == "" {
		return Ref{}, true, fmt.Errorf("secret reference %q is missing path", value)
	}
	return Ref{Provider: provider, Path: path, Raw: value}, true, nil
}

// FindRefs returns the raw secret references present in a credentials map.
func FindRefs(creds map[string]string) []string {
	var refs []string
	for _, v := range creds {
		if strings.HasPrefix(v, refScheme) {
			refs = append(refs, v)
		}
	}
	return refs
}
