package plugins

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"

	"github.com/example/gantry/internal/plugin"
)

// deployFixture builds a tiny artifact, provisions a target, and deploys
// once, returning the pieces later assertions need.
func deployFixture(t *testing.T) (*WorkspaceProvisioner, *WorkspaceDeployer, *plugin.StackPlan, *plugin.BuildResult, *plugin.ProvisionResult, *plugin.DeployResult) {
	t.Helper()
	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, "index.html"), "<html>v1</html>")

	work := t.TempDir()
	builder := &LocalBuilder{Log: logr.Discard(), WorkDir: work}
	prov := &WorkspaceProvisioner{Log: logr.Discard(), WorkDir: work}
	dep := &WorkspaceDeployer{Log: logr.Discard()}
	plan := &plugin.StackPlan{StackKey: StackStatic, OutputDir: "."}

	build, err := builder.Build(context.Background(), plan, repo)
	if err != nil || !build.Success {
		t.Fatalf("build: %v %+v", err, build)
	}
	provisioned, err := prov.Provision(context.Background(), plan, build, nil)
	if err != nil || !provisioned.Success {
		t.Fatalf("provision: %v %+v", err, provisioned)
	}
	deployed, err := dep.Deploy(context.Background(), plan, build, provisioned, nil)
	if err != nil || !deployed.Success {
		t.Fatalf("deploy: %v %+v", err, deployed)
	}
	return prov, dep, plan, build, provisioned, deployed
}

func TestWorkspace_DeployActivatesRelease(t *testing.T) {
	_, dep, _, _, provisioned, deployed := deployFixture(t)

	targetDir, _ := outputString(provisioned.Outputs, outputTargetDir)
	release, _ := outputString(deployed.Outputs, outputRelease)
	if targetDir == "" || release == "" {
		t.Fatalf("outputs=%+v %+v", provisioned.Outputs, deployed.Outputs)
	}
	if _, err := os.Stat(filepath.Join(targetDir, "releases", release, "index.html")); err != nil {
		t.Fatalf("release content: %v", err)
	}
	if deployed.URL == "" {
		t.Fatalf("deploy result missing url")
	}

	ok, err := dep.ValidateDeployment(context.Background(), deployed)
	if err != nil || !ok {
		t.Fatalf("validate: %v %v", ok, err)
	}
}

func TestWorkspace_RollbackNeedsPriorRelease(t *testing.T) {
	_, dep, _, _, _, deployed := deployFixture(t)

	if ok, err := dep.Rollback(context.Background(), deployed, nil); ok || err == nil {
		t.Fatalf("rollback with one release must fail: %v %v", ok, err)
	}
}

func TestWorkspace_RollbackRestoresPreviousRelease(t *testing.T) {
	_, dep, plan, build, provisioned, first := deployFixture(t)

	second, err := dep.Deploy(context.Background(), plan, build, provisioned, nil)
	if err != nil || !second.Success {
		t.Fatalf("second deploy: %v %+v", err, second)
	}
	firstRelease, _ := outputString(first.Outputs, outputRelease)
	secondRelease, _ := outputString(second.Outputs, outputRelease)
	if firstRelease == secondRelease {
		t.Fatalf("releases must be distinct")
	}

	ok, err := dep.Rollback(context.Background(), second, nil)
	if err != nil || !ok {
		t.Fatalf("rollback: %v %v", ok, err)
	}
	targetDir, _ := outputString(provisioned.Outputs, outputTargetDir)
	current, err := activeRelease(targetDir)
	if err != nil {
		t.Fatalf("active release: %v", err)
	}
	if current != firstRelease {
		t.Fatalf("current=%q, want %q", current, firstRelease)
	}
}

func TestWorkspace_DestroyRemovesTarget(t *testing.T) {
	prov, _, _, _, provisioned, _ := deployFixture(t)

	ok, err := prov.Destroy(context.Background(), provisioned, nil)
	if err != nil || !ok {
		t.Fatalf("destroy: %v %v", ok, err)
	}
	targetDir, _ := outputString(provisioned.Outputs, outputTargetDir)
	if _, statErr := os.Stat(targetDir); !os.IsNotExist(statErr) {
		t.Fatalf("target still present: %v", statErr)
	}
}

func TestWorkspace_DeployWithoutTargetDir(t *testing.T) {
	dep := &WorkspaceDeployer{Log: logr.Discard()}
	res, err := dep.Deploy(context.Background(), &plugin.StackPlan{StackKey: StackStatic},
		&plugin.BuildResult{Success: true}, &plugin.ProvisionResult{Success: true}, nil)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if res.Success || res.ErrorMessage == "" {
		t.Fatalf("result=%+v", res)
	}
}
