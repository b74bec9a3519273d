// File: internal/services/decompose.go
// Brief: Multi-source decomposition: dedup, port resolution, shared-resource
// split, enrichment, routing synthesis.

package services

import (
	"path/filepath"

	"github.com/go-logr/logr"

	"github.com/example/gantry/internal/scan"
)

// Options tunes a Decompose run.
type Options struct {
	Log logr.Logger
}

// Decompose gathers service candidates from compose, cluster manifests, and
// directory conventions, then reduces them to one deduplicated, enriched
// service set with shared resources and routing rules. The reduction is pure
// over the gathered candidates, so re-running on an unchanged repository
// yields an identical result.
func Decompose(root string, sig *scan.Signals, opts Options) *Decomposition {
	log := opts.Log

	var gathered []ServiceDescriptor
	gathered = append(gathered, fromCompose(root, log)...)
	gathered = append(gathered, fromKubernetes(root, sig, log)...)
	gathered = append(gathered, fromFolders(root, sig, log)...)
	if len(gathered) == 0 {
		return &Decomposition{}
	}

	merged := dedup(gathered)
	resolvePorts(root, merged)
	dec := splitSharedResources(merged)
	enrich(dec.Services)
	dec.Routes = synthesizeRoutes(dec.Services)
	return dec
}

// dedup collapses candidates onto (id, path) identity. Candidate order
// encodes source priority (compose, then cluster, then folders): the first
// occurrence wins every field, except that an empty port, image, or
// framework is filled from later duplicates, and a generic runtime yields to
// a specific one.
func dedup(in []ServiceDescriptor) []*ServiceDescriptor {
	type identity struct{ id, path string }
	index := map[identity]*ServiceDescriptor{}
	var order []*ServiceDescriptor
	for i := range in {
		sd := in[i]
		key := identity{sd.ID, sd.Path}
		existing, ok := index[key]
		if !ok {
			kept := sd
			index[key] = &kept
			order = append(order, &kept)
			continue
		}
		if len(existing.Ports) == 0 && len(sd.Ports) > 0 {
			existing.Ports = append([]int(nil), sd.Ports...)
		}
		if existing.Image == "" {
			existing.Image = sd.Image
		}
		if existing.Framework == "" {
			existing.Framework = sd.Framework
		}
		if existing.Runtime == RuntimeGeneric && sd.Runtime != RuntimeGeneric {
			existing.Runtime = sd.Runtime
		}
	}
	return order
}

// resolvePorts reduces every service to exactly one canonical port: the
// source-declared port when present (compose beats cluster beats Dockerfile
// by candidate order), then a Dockerfile EXPOSE at the service path, then
// the runtime default.
func resolvePorts(root string, merged []*ServiceDescriptor) {
	for _, sd := range merged {
		if len(sd.Ports) > 0 {
			sd.Ports = sd.Ports[:1]
			continue
		}
		dockerfile := filepath.Join(root, filepath.FromSlash(sd.Path), "Dockerfile")
		if info, err := scan.ParseDockerfile(dockerfile); err == nil && len(info.Ports) > 0 {
			sd.Ports = []int{info.Ports[0]}
			continue
		}
		sd.Ports = []int{runtimeDefaultPorts[sd.Runtime]}
	}
}

// splitSharedResources moves keyword-classified services out of the app set.
func splitSharedResources(merged []*ServiceDescriptor) *Decomposition {
	dec := &Decomposition{}
	for _, sd := range merged {
		if category, keyword, ok := classifyResource(sd.ID); ok {
			dec.SharedResources = append(dec.SharedResources, SharedResource{
				Category:      category,
				Name:          sd.ID,
				ManagedTarget: managedTargetTable[keyword],
			})
			continue
		}
		dec.Services = append(dec.Services, *sd)
	}
	return dec
}

// enrich fills build commands, health paths, and blueprint ids on the
// remaining app services from the static lookup tables.
func enrich(services []ServiceDescriptor) {
	for i := range services {
		sd := &services[i]
		if len(sd.BuildCommands) == 0 {
			sd.BuildCommands = BuildCommandsFor(sd.Runtime, sd.Framework)
		}
		if sd.HealthPath == "" {
			sd.HealthPath = HealthPathFor(sd.Framework)
		}
		if sd.BlueprintID == "" {
			sd.BlueprintID = BlueprintFor(sd.Runtime, sd.Framework)
		}
	}
}

// synthesizeRoutes gives every app service an /api/{id}/* rule except the
// front-end, which gets the low-priority catch-all. The front-end is the
// first service claimed by a UI framework tag or a conventional name.
func synthesizeRoutes(services []ServiceDescriptor) []RoutingRule {
	frontend := -1
	for i, sd := range services {
		if frontendFrameworks[sd.Framework] || frontendNames[sd.ID] {
			frontend = i
			break
		}
	}
	var routes []RoutingRule
	for i, sd := range services {
		if i == frontend {
			continue
		}
		routes = append(routes, RoutingRule{
			ServiceID:   sd.ID,
			PathPattern: "/api/" + sd.ID + "/*",
			Priority:    apiRoutePriority,
		})
	}
	if frontend >= 0 {
		routes = append(routes, RoutingRule{
			ServiceID:   services[frontend].ID,
			PathPattern: "/*",
			Priority:    frontendRoutePriority,
		})
	}
	return routes
}
