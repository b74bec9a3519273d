package services

import (
	"os"
	"path/filepath"

	"github.com/go-logr/logr"

	"github.com/example/gantry/internal/scan"
)

// serviceParents are the monorepo directories whose immediate children are
// treated as service candidates.
var serviceParents = []string{"services", "apps", "packages", "src"}

// fromFolders extracts one descriptor per conventional service directory
// that carries a recognizable project marker (a manifest or a Dockerfile).
// Directories without markers are skipped silently; they are usually shared
// libraries or assets.
func fromFolders(root string, sig *scan.Signals, log logr.Logger) []ServiceDescriptor {
	var out []ServiceDescriptor
	for _, parent := range serviceParents {
		if !sig.HasTopDir(parent) {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(root, parent))
		if err != nil {
			log.V(1).Info("service directory unreadable", "dir", parent, "reason", err.Error())
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			rel := parent + "/" + entry.Name()
			probe := probeDir(root, rel)
			if !probe.HasMarker {
				continue
			}
			out = append(out, ServiceDescriptor{
				ID:        normalizeID(entry.Name()),
				Path:      rel,
				Runtime:   probe.Runtime,
				Framework: probe.Framework,
				Ports:     probe.Ports,
				Source:    SourceFolder,
			})
		}
	}
	return out
}
