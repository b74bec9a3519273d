package credentials

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileProvider serves secrets from a local YAML document. Paths address
// nested keys, e.g. "db/password" resolves data["db"]["password"].
type fileProvider struct {
	path string
	data map[string]any
}

func newFileProvider(path, baseDir string) (*fileProvider, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("file provider path is required")
	}
	if baseDir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	path = filepath.Clean(path)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secrets file %q: %w", path, err)
	}
	data := map[string]any{}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse secrets file %q: %w", path, err)
	}
	return &fileProvider{path: path, data: data}, nil
}

func (p *fileProvider) Resolve(ctx context.Context, secretPath string) (string, error) {
	_ = ctx
	node, err := p.lookup(secretPath)
	if err != nil {
		return "", err
	}
	switch v := node.(type) {
	case string:
		return v, nil
	case nil:
		return "", fmt.Errorf("secret path %q resolves to empty value in %s", secretPath, p.path)
	default:
		return "", fmt.Errorf("secret path %q resolved to non-string value in %s", secretPath, p.path)
	}
}

func (p *fileProvider) lookup(secretPath string) (any, error) {
	secretPath = strings.TrimSpace(secretPath)
	if secretPath == "" {
		return nil, fmt.Errorf("secret path is required")
	}
	var node any = p.data
	for _, part := range strings.Split(strings.Trim(secretPath, "/"), "/") {
		if part == "" {
			continue
		}
		m, ok := node.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("secret path %q does not resolve to a value in %s", secretPath, p.path)
		}
		node, ok = m[part]
		if !ok {
			return nil, fmt.Errorf("secret path %q not found in %s", secretPath, p.path)
		}
	}
	return node, nil
}
