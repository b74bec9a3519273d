// File: internal/services/compose.go
// Brief: ServiceDescriptor extraction from container-compose manifests.

package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	composetypes "github.com/compose-spec/compose-go/v2/types"
	"github.com/go-logr/logr"
)

// composeFileNames in lookup order.
var composeFileNames = []string{"docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml"}

// FindComposeFile returns the first conventional compose file at root.
func FindComposeFile(root string) (string, bool) {
	for _, name := range composeFileNames {
		path := filepath.Join(root, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// fromCompose extracts one descriptor per compose service. A repository
// without a compose file, or with one that fails to load, contributes
// nothing; load failures are logged and skipped.
func fromCompose(root string, log logr.Logger) []ServiceDescriptor {
	file, ok := FindComposeFile(root)
	if !ok {
		return nil
	}
	project, err := loadComposeProject(file)
	if err != nil {
		log.V(1).Info("compose file unreadable", "file", filepath.Base(file), "reason", err.Error())
		return nil
	}

	names := project.ServiceNames()
	sort.Strings(names)

	out := make([]ServiceDescriptor, 0, len(names))
	for _, name := range names {
		svc, svcErr := project.GetService(name)
		if svcErr != nil {
			continue
		}
		sd := ServiceDescriptor{
			ID:      normalizeID(name),
			Path:    ".",
			Runtime: RuntimeGeneric,
			Source:  SourceCompose,
			Image:   svc.Image,
		}
		if svc.Image != "" {
			sd.Runtime = imageRuntime(svc.Image)
		}
		if svc.Build != nil && svc.Build.Context != "" {
			if rel := relPath(root, project.WorkingDir, svc.Build.Context); rel != "" {
				sd.Path = rel
			}
			if probe := probeDir(root, sd.Path); probe.HasMarker {
				sd.Runtime = probe.Runtime
				sd.Framework = probe.Framework
			}
		}
		if port, found := composeServicePort(svc); found {
			sd.Ports = []int{port}
		}
		out = append(out, sd)
	}
	return out
}

// composeServicePort picks the service's own port from its first mapping:
// the container-side target, or the published side when no target is set.
func composeServicePort(svc composetypes.ServiceConfig) (int, bool) {
	for _, mapping := range svc.Ports {
		if mapping.Target != 0 {
			return int(mapping.Target), true
		}
		if mapping.Published != "" {
			if n, err := strconv.Atoi(mapping.Published); err == nil && n > 0 {
				return n, true
			}
		}
	}
	return 0, false
}

func loadComposeProject(file string) (*composetypes.Project, error) {
	env := make(composetypes.Mapping)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[key] = value
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read compose file %s: %w", file, err)
	}

	workingDir := filepath.Dir(file)
	details := composetypes.ConfigDetails{
		WorkingDir:  workingDir,
		ConfigFiles: []composetypes.ConfigFile{{Filename: file, Content: data}},
		Environment: env,
	}
	return loader.Load(details, func(o *loader.Options) {
		o.SetProjectName(normalizeID(filepath.Base(workingDir)), true)
	})
}

// relPath renders a compose build context repo-relative; contexts outside
// the repository collapse to the root.
func relPath(root, workingDir, context string) string {
	abs := context
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(workingDir, context)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "."
	}
	return filepath.ToSlash(rel)
}
