// File: internal/plugins/plugins.go
// Brief: Built-in stack plugin bundles and their registration.

package plugins

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"

	"github.com/example/gantry/internal/plugin"
)

// Stack keys of the built-in plugins.
const (
	StackStatic       = "static"
	StackLaravel      = "laravel"
	StackNextJS       = "nextjs"
	StackNode         = "node"
	StackDjango       = "django"
	StackFlask        = "flask"
	StackRails        = "rails"
	StackPHP          = "php"
	StackMultiservice = "multiservice"
)

// Detector priorities, dispatched highest first. Specific rules pre-empt
// broad ones: the static rule beats every framework, and the php catch-all
// runs last.
const (
	priorityMultiservice = 100
	priorityStatic       = 90
	priorityLaravel      = 80
	priorityNextJS       = 75
	priorityDjango       = 70
	priorityRails        = 65
	priorityFlask        = 60
	priorityNode         = 50
	priorityPHP          = 20
)

// Options configures the built-in bundles.
type Options struct {
	Log logr.Logger
	// WorkDir is the staging root for build artifacts and workspace
	// deployment targets.
	WorkDir string
}

// RegisterBuiltins constructs every built-in plugin bundle and registers it.
// All bundles share one local builder and one workspace provisioner/deployer
// pair; only the detectors differ per stack.
func RegisterBuiltins(reg *plugin.Registry, opts Options) error {
	log := opts.Log.WithName("plugins")
	builder := &LocalBuilder{Log: log.WithName("build"), WorkDir: opts.WorkDir}
	provisioner := &WorkspaceProvisioner{Log: log.WithName("provision"), WorkDir: opts.WorkDir}
	deployer := &WorkspaceDeployer{Log: log.WithName("deploy")}
	health := workspaceHealth(opts.WorkDir)

	detectors := []struct {
		stackKey string
		detector plugin.Detector
	}{
		{StackMultiservice, &multiserviceDetector{log: log, priority: priorityMultiservice}},
		{StackStatic, &staticDetector{log: log, priority: priorityStatic}},
		{StackLaravel, &laravelDetector{log: log, priority: priorityLaravel}},
		{StackNextJS, newProfileDetector(StackNextJS, priorityNextJS, log)},
		{StackDjango, newProfileDetector(StackDjango, priorityDjango, log)},
		{StackRails, newProfileDetector(StackRails, priorityRails, log)},
		{StackFlask, newProfileDetector(StackFlask, priorityFlask, log)},
		{StackNode, &nodeDetector{log: log, priority: priorityNode}},
		{StackPHP, &phpDetector{log: log, priority: priorityPHP}},
	}

	for _, d := range detectors {
		p := &plugin.Plugin{
			StackKey:    d.stackKey,
			Detector:    d.detector,
			Builder:     builder,
			Provisioner: provisioner,
			Deployer:    deployer,
			Health:      health,
		}
		if err := reg.Register(p); err != nil {
			return fmt.Errorf("register %s: %w", d.stackKey, err)
		}
	}
	return nil
}

// workspaceHealth reports healthy when the staging root is writable.
func workspaceHealth(workDir string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return fmt.Errorf("staging root: %w", err)
		}
		probe := filepath.Join(workDir, ".healthprobe")
		if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
			return fmt.Errorf("staging root not writable: %w", err)
		}
		return os.Remove(probe)
	}
}
