// File: internal/plugins/workspace.go
// Brief: Workspace provisioner and deployer: local staging targets with
// versioned releases.

package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/example/gantry/internal/plugin"
)

// Provision/deploy output keys shared between the two roles.
const (
	outputTargetID  = "target_id"
	outputTargetDir = "target_dir"
	outputRelease   = "release"
)

// currentMarker names the file inside a target that points at the active
// release.
const currentMarker = "CURRENT"

// WorkspaceProvisioner materializes a deployment target as a directory tree
// under WorkDir. It stands where a cloud provisioner would: everything the
// deployer needs travels through ProvisionResult.Outputs.
type WorkspaceProvisioner struct {
	Log     logr.Logger
	WorkDir string
}

func (w *WorkspaceProvisioner) Provision(ctx context.Context, plan *plugin.StackPlan, build *plugin.BuildResult, creds plugin.Credentials) (*plugin.ProvisionResult, error) {
	start := time.Now()
	res := &plugin.ProvisionResult{}

	targetID := fmt.Sprintf("%s-%d", plan.StackKey, time.Now().UnixNano())
	targetDir := filepath.Join(w.WorkDir, "targets", targetID)
	if err := os.MkdirAll(filepath.Join(targetDir, "releases"), 0o755); err != nil {
		res.ErrorMessage = fmt.Sprintf("create target: %v", err)
		res.ElapsedSeconds = time.Since(start).Seconds()
		return res, nil
	}

	meta := map[string]any{
		"target_id":  targetID,
		"stack_key":  plan.StackKey,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	raw, _ := json.MarshalIndent(meta, "", "  ")
	if err := os.WriteFile(filepath.Join(targetDir, "target.json"), raw, 0o644); err != nil {
		res.ErrorMessage = fmt.Sprintf("write target metadata: %v", err)
		res.ElapsedSeconds = time.Since(start).Seconds()
		return res, nil
	}

	w.Log.V(1).Info("target provisioned", "target", targetID)
	res.Success = true
	res.ElapsedSeconds = time.Since(start).Seconds()
	res.Outputs = map[string]any{
		outputTargetID:  targetID,
		outputTargetDir: targetDir,
	}
	return res, nil
}

// Destroy removes the target directory.
func (w *WorkspaceProvisioner) Destroy(ctx context.Context, prov *plugin.ProvisionResult, creds plugin.Credentials) (bool, error) {
	dir, ok := outputString(prov.Outputs, outputTargetDir)
	if !ok {
		return false, fmt.Errorf("provision outputs missing %s", outputTargetDir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("destroy target: %w", err)
	}
	return true, nil
}

// WorkspaceDeployer copies a build artifact into a fresh release under the
// provisioned target and flips the CURRENT marker. Past releases stay on
// disk so a deployment can roll back.
type WorkspaceDeployer struct {
	Log logr.Logger
}

func (w *WorkspaceDeployer) Deploy(ctx context.Context, plan *plugin.StackPlan, build *plugin.BuildResult, prov *plugin.ProvisionResult, creds plugin.Credentials) (*plugin.DeployResult, error) {
	start := time.Now()
	res := &plugin.DeployResult{}

	targetDir, ok := outputString(prov.Outputs, outputTargetDir)
	if !ok {
		res.ErrorMessage = fmt.Sprintf("provision outputs missing %s", outputTargetDir)
		res.ElapsedSeconds = time.Since(start).Seconds()
		return res, nil
	}

	releaseName := fmt.Sprintf("%d", time.Now().UnixNano())
	releaseDir := filepath.Join(targetDir, "releases", releaseName)
	if err := copyTree(build.ArtifactDir, releaseDir); err != nil {
		res.ErrorMessage = fmt.Sprintf("stage release: %v", err)
		res.ElapsedSeconds = time.Since(start).Seconds()
		return res, nil
	}
	if err := activateRelease(targetDir, releaseName); err != nil {
		res.ErrorMessage = fmt.Sprintf("activate release: %v", err)
		res.ElapsedSeconds = time.Since(start).Seconds()
		return res, nil
	}

	res.Success = true
	res.URL = "file://" + releaseDir
	res.Logs = []string{
		fmt.Sprintf("staged artifact %s", build.ArtifactDigest),
		fmt.Sprintf("release %s activated", releaseName),
	}
	res.ElapsedSeconds = time.Since(start).Seconds()
	res.Outputs = map[string]any{
		outputTargetDir: targetDir,
		outputRelease:   releaseName,
	}
	w.Log.V(1).Info("deployed", "release", releaseName, "target", targetDir)
	return res, nil
}

// ValidateDeployment checks that the target's active release still exists.
func (w *WorkspaceDeployer) ValidateDeployment(ctx context.Context, deploy *plugin.DeployResult) (bool, error) {
	targetDir, ok := outputString(deploy.Outputs, outputTargetDir)
	if !ok {
		return false, fmt.Errorf("deploy outputs missing %s", outputTargetDir)
	}
	current, err := activeRelease(targetDir)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(filepath.Join(targetDir, "releases", current))
	if err != nil || !info.IsDir() {
		return false, nil
	}
	return true, nil
}

// Rollback re-activates the release preceding the current one.
func (w *WorkspaceDeployer) Rollback(ctx context.Context, deploy *plugin.DeployResult, creds plugin.Credentials) (bool, error) {
	targetDir, ok := outputString(deploy.Outputs, outputTargetDir)
	if !ok {
		return false, fmt.Errorf("deploy outputs missing %s", outputTargetDir)
	}
	current, err := activeRelease(targetDir)
	if err != nil {
		return false, err
	}
	releases, err := listReleases(targetDir)
	if err != nil {
		return false, err
	}
	previous := ""
	for i, name := range releases {
		if name == current && i > 0 {
			previous = releases[i-1]
			break
		}
	}
	if previous == "" {
		return false, fmt.Errorf("no release to roll back to")
	}
	if err := activateRelease(targetDir, previous); err != nil {
		return false, err
	}
	w.Log.V(1).Info("rolled back", "from", current, "to", previous)
	return true, nil
}

// activateRelease atomically points the CURRENT marker at a release.
func activateRelease(targetDir, releaseName string) error {
	tmp := filepath.Join(targetDir, currentMarker+".tmp")
	if err := os.WriteFile(tmp, []byte(releaseName+"\n"), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(targetDir, currentMarker))
}

func activeRelease(targetDir string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(targetDir, currentMarker))
	if err != nil {
		return "", fmt.Errorf("read current release: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// listReleases returns release names oldest first. Names are nanosecond
// timestamps, so lexicographic order of equal-width names is creation order.
func listReleases(targetDir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(targetDir, "releases"))
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func outputString(outputs map[string]any, key string) (string, bool) {
	if outputs == nil {
		return "", false
	}
	s, ok := outputs[key].(string)
	return s, ok && s != ""
}
