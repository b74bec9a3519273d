// File: internal/plugin/plugin.go
// Brief: Detector/Builder/Provisioner/Deployer contracts and the plugin bundle.

package plugin

import (
	"context"

	"github.com/example/gantry/internal/scan"
)

// Credentials is an opaque map handed through the pipeline to provisioners
// and deployers. The orchestrator never inspects or caches it.
type Credentials map[string]string

// DetectionContext carries caller-supplied facts into detectors: the signal
// snapshot collected once per analysis and the repository URL, if known.
type DetectionContext struct {
	Signals       *scan.Signals
	RepositoryURL string
}

// Detector decides whether a repository matches its stack. A nil plan with a
// nil error means "no match" and is the normal negative outcome; an error
// means the detector itself failed and is caught by the registry.
type Detector interface {
	Detect(ctx context.Context, repoPath string, dctx DetectionContext) (*StackPlan, error)
	Priority() int
}

// Builder turns a plan into a build artifact.
type Builder interface {
	Build(ctx context.Context, plan *StackPlan, repoPath string) (*BuildResult, error)
	ValidateBuildRequirements(repoPath string) bool
}

// Provisioner prepares infrastructure for a built artifact.
type Provisioner interface {
	Provision(ctx context.Context, plan *StackPlan, build *BuildResult, creds Credentials) (*ProvisionResult, error)
	Destroy(ctx context.Context, prov *ProvisionResult, creds Credentials) (bool, error)
}

// Deployer places a built artifact onto provisioned infrastructure.
type Deployer interface {
	Deploy(ctx context.Context, plan *StackPlan, build *BuildResult, prov *ProvisionResult, creds Credentials) (*DeployResult, error)
	ValidateDeployment(ctx context.Context, deploy *DeployResult) (bool, error)
	Rollback(ctx context.Context, deploy *DeployResult, creds Credentials) (bool, error)
}

// Plugin bundles the four role implementations for one stack key. Health is
// optional; a nil Health means the plugin always reports healthy.
type Plugin struct {
	StackKey    string
	Detector    Detector
	Builder     Builder
	Provisioner Provisioner
	Deployer    Deployer
	Health      func(ctx context.Context) error
}
