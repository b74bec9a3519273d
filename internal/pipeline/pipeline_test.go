package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr"

	"github.com/example/gantry/internal/plugin"
)

type stubDetector struct {
	plan     *plugin.StackPlan
	err      error
	priority int
}

func (d *stubDetector) Priority() int { return d.priority }
func (d *stubDetector) Detect(ctx context.Context, repoPath string, dctx plugin.DetectionContext) (*plugin.StackPlan, error) {
	return d.plan, d.err
}

type stubBuilder struct {
	res   *plugin.BuildResult
	err   error
	calls *[]string
}

func (b *stubBuilder) ValidateBuildRequirements(string) bool { return true }
func (b *stubBuilder) Build(ctx context.Context, plan *plugin.StackPlan, repoPath string) (*plugin.BuildResult, error) {
	*b.calls = append(*b.calls, "build")
	return b.res, b.err
}

type stubProvisioner struct {
	res   *plugin.ProvisionResult
	err   error
	calls *[]string
}

func (p *stubProvisioner) Provision(ctx context.Context, plan *plugin.StackPlan, build *plugin.BuildResult, creds plugin.Credentials) (*plugin.ProvisionResult, error) {
	*p.calls = append(*p.calls, "provision")
	return p.res, p.err
}
func (p *stubProvisioner) Destroy(context.Context, *plugin.ProvisionResult, plugin.Credentials) (bool, error) {
	return true, nil
}

type stubDeployer struct {
	res   *plugin.DeployResult
	err   error
	calls *[]string
}

func (d *stubDeployer) Deploy(ctx context.Context, plan *plugin.StackPlan, build *plugin.BuildResult, prov *plugin.ProvisionResult, creds plugin.Credentials) (*plugin.DeployResult, error) {
	*d.calls = append(*d.calls, "deploy")
	return d.res, d.err
}
func (d *stubDeployer) ValidateDeployment(context.Context, *plugin.DeployResult) (bool, error) {
	return true, nil
}
func (d *stubDeployer) Rollback(context.Context, *plugin.DeployResult, plugin.Credentials) (bool, error) {
	return true, nil
}

// stubBundle registers one fully stubbed plugin and returns the shared call
// recorder.
func stubBundle(t *testing.T, reg *plugin.Registry, stackKey string, det plugin.Detector,
	build *plugin.BuildResult, prov *plugin.ProvisionResult, deploy *plugin.DeployResult) *[]string {
	t.Helper()
	calls := &[]string{}
	err := reg.Register(&plugin.Plugin{
		StackKey:    stackKey,
		Detector:    det,
		Builder:     &stubBuilder{res: build, calls: calls},
		Provisioner: &stubProvisioner{res: prov, calls: calls},
		Deployer:    &stubDeployer{res: deploy, calls: calls},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return calls
}

func okResults() (*plugin.BuildResult, *plugin.ProvisionResult, *plugin.DeployResult) {
	return &plugin.BuildResult{Success: true, ElapsedSeconds: 1.5},
		&plugin.ProvisionResult{Success: true, ElapsedSeconds: 2.5},
		&plugin.DeployResult{Success: true, ElapsedSeconds: 3.0, URL: "https://example.test"}
}

func matchingDetector(stackKey string) *stubDetector {
	return &stubDetector{plan: &plugin.StackPlan{StackKey: stackKey, OutputDir: "."}, priority: 10}
}

func TestRun_CompletedSumsPhaseDurations(t *testing.T) {
	reg := plugin.NewRegistry(logr.Discard())
	build, prov, deploy := okResults()
	calls := stubBundle(t, reg, "static", matchingDetector("static"), build, prov, deploy)

	p := New(reg, Options{Log: logr.Discard()})
	res, err := p.Run(context.Background(), Analysis{RepoPath: t.TempDir()}, nil, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Success {
		t.Fatalf("result=%+v", res)
	}
	if res.ElapsedSeconds < 7.0 || res.ElapsedSeconds > 7.5 {
		t.Fatalf("elapsed=%f, want sum of stub durations (7.0)", res.ElapsedSeconds)
	}
	if got := p.Session().Status(); got != StatusCompleted {
		t.Fatalf("status=%s", got)
	}
	if want := []string{"build", "provision", "deploy"}; strings.Join(*calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls=%v", *calls)
	}
}

func TestRun_BuildFailureStopsPipeline(t *testing.T) {
	reg := plugin.NewRegistry(logr.Discard())
	build := &plugin.BuildResult{Success: false, ErrorMessage: "npm ci failed", ElapsedSeconds: 2.0}
	_, prov, deploy := okResults()
	calls := stubBundle(t, reg, "node", matchingDetector("node"), build, prov, deploy)

	p := New(reg, Options{Log: logr.Discard()})
	res, err := p.Run(context.Background(), Analysis{RepoPath: t.TempDir()}, nil, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Success {
		t.Fatalf("result=%+v", res)
	}
	if res.ErrorMessage != "npm ci failed" {
		t.Fatalf("message=%q, must be the phase error verbatim", res.ErrorMessage)
	}
	if res.ElapsedSeconds < 2.0 || res.ElapsedSeconds > 2.5 {
		t.Fatalf("elapsed=%f, want ≈2s", res.ElapsedSeconds)
	}
	if got := p.Session().Status(); got != StatusBuildFailed {
		t.Fatalf("status=%s", got)
	}
	if strings.Join(*calls, ",") != "build" {
		t.Fatalf("calls=%v, provision/deploy must never run after a failed build", *calls)
	}
}

func TestRun_ProvisionErrorReturnBecomesProvisionFailed(t *testing.T) {
	reg := plugin.NewRegistry(logr.Discard())
	calls := &[]string{}
	build, _, deploy := okResults()
	err := reg.Register(&plugin.Plugin{
		StackKey:    "node",
		Detector:    matchingDetector("node"),
		Builder:     &stubBuilder{res: build, calls: calls},
		Provisioner: &stubProvisioner{err: errors.New("bucket name taken"), calls: calls},
		Deployer:    &stubDeployer{res: deploy, calls: calls},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	p := New(reg, Options{Log: logr.Discard()})
	res, _ := p.Run(context.Background(), Analysis{RepoPath: t.TempDir()}, nil, "")
	if res.Success || res.ErrorMessage != "bucket name taken" {
		t.Fatalf("result=%+v", res)
	}
	if got := p.Session().Status(); got != StatusProvisionFailed {
		t.Fatalf("status=%s", got)
	}
	if strings.Join(*calls, ",") != "build,provision" {
		t.Fatalf("calls=%v", *calls)
	}
}

func TestRun_NoStackDetected(t *testing.T) {
	reg := plugin.NewRegistry(logr.Discard())
	build, prov, deploy := okResults()
	calls := stubBundle(t, reg, "node", &stubDetector{priority: 10}, build, prov, deploy)

	p := New(reg, Options{Log: logr.Discard()})
	res, err := p.Run(context.Background(), Analysis{RepoPath: t.TempDir()}, nil, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Success || res.ErrorMessage != "no suitable stack detected" {
		t.Fatalf("result=%+v", res)
	}
	if got := p.Session().Status(); got != StatusFailed {
		t.Fatalf("status=%s", got)
	}
	if len(*calls) != 0 {
		t.Fatalf("calls=%v, no phase may run without a stack", *calls)
	}
}

func TestRun_ForcedStackSynthesizesMinimalPlan(t *testing.T) {
	reg := plugin.NewRegistry(logr.Discard())
	build, prov, deploy := okResults()
	// Detector declines; the forced run must proceed anyway.
	stubBundle(t, reg, "rails", &stubDetector{priority: 10}, build, prov, deploy)

	p := New(reg, Options{Log: logr.Discard()})
	res, err := p.Run(context.Background(), Analysis{RepoPath: t.TempDir()}, nil, "rails")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Success {
		t.Fatalf("result=%+v", res)
	}
	snap := p.Session().Snapshot()
	if snap.Plan == nil || snap.Plan.StackKey != "rails" {
		t.Fatalf("plan=%+v", snap.Plan)
	}
	if !snap.Plan.HasConfig(plugin.ConfigSynthesized) {
		t.Fatalf("forced no-match plan must be marked synthesized: %+v", snap.Plan.Config)
	}
}

func TestRun_ForcedStackUnknownKey(t *testing.T) {
	reg := plugin.NewRegistry(logr.Discard())
	p := New(reg, Options{Log: logr.Discard()})
	res, err := p.Run(context.Background(), Analysis{RepoPath: t.TempDir()}, nil, "nope")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Success || !strings.Contains(res.ErrorMessage, `"nope"`) {
		t.Fatalf("result=%+v", res)
	}
	if got := p.Session().Status(); got != StatusFailed {
		t.Fatalf("status=%s", got)
	}
}

type vetoGate struct{ err error }

func (g *vetoGate) CheckPlan(context.Context, *plugin.StackPlan) error { return g.err }

func TestRun_GateVetoStopsBeforeBuild(t *testing.T) {
	reg := plugin.NewRegistry(logr.Discard())
	build, prov, deploy := okResults()
	calls := stubBundle(t, reg, "node", matchingDetector("node"), build, prov, deploy)

	p := New(reg, Options{Log: logr.Discard(), Gate: &vetoGate{err: errors.New("plan denied: no output dir")}})
	res, _ := p.Run(context.Background(), Analysis{RepoPath: t.TempDir()}, nil, "")
	if res.Success || res.ErrorMessage != "plan denied: no output dir" {
		t.Fatalf("result=%+v", res)
	}
	if got := p.Session().Status(); got != StatusFailed {
		t.Fatalf("status=%s", got)
	}
	if len(*calls) != 0 {
		t.Fatalf("calls=%v, gate veto must precede build", *calls)
	}
}

func TestRun_EventSequence(t *testing.T) {
	reg := plugin.NewRegistry(logr.Discard())
	build, prov, deploy := okResults()
	stubBundle(t, reg, "static", matchingDetector("static"), build, prov, deploy)

	var seen []string
	obs := EventObserverFunc(func(ev Event) {
		entry := string(ev.Type)
		if ev.Phase != "" {
			entry += ":" + ev.Phase
		}
		seen = append(seen, entry)
	})

	p := New(reg, Options{Log: logr.Discard(), Observers: []EventObserver{obs}})
	if _, err := p.Run(context.Background(), Analysis{RepoPath: t.TempDir()}, nil, ""); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{
		"RUN_STARTED",
		"PHASE_STARTED:detect", "PHASE_COMPLETED:detect",
		"PHASE_STARTED:build", "PHASE_COMPLETED:build",
		"PHASE_STARTED:provision", "PHASE_COMPLETED:provision",
		"PHASE_STARTED:deploy", "PHASE_COMPLETED:deploy",
		"RUN_COMPLETED",
	}
	if strings.Join(seen, "\n") != strings.Join(want, "\n") {
		t.Fatalf("events:\n%s", strings.Join(seen, "\n"))
	}
}

func TestRun_RepositoryURLReachesForcedPlan(t *testing.T) {
	reg := plugin.NewRegistry(logr.Discard())
	build, prov, deploy := okResults()
	stubBundle(t, reg, "static", &stubDetector{priority: 10}, build, prov, deploy)

	p := New(reg, Options{Log: logr.Discard()})
	_, err := p.Run(context.Background(), Analysis{
		RepoPath:      t.TempDir(),
		RepositoryURL: "https://example.com/acme/site.git",
	}, nil, "static")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	snap := p.Session().Snapshot()
	if got := snap.Plan.ConfigString(plugin.ConfigRepositoryURL); got != "https://example.com/acme/site.git" {
		t.Fatalf("repository_url=%q", got)
	}
}

func TestRun_ArtifactsWritten(t *testing.T) {
	reg := plugin.NewRegistry(logr.Discard())
	build, prov, deploy := okResults()
	stubBundle(t, reg, "static", matchingDetector("static"), build, prov, deploy)

	artifacts := t.TempDir()
	p := New(reg, Options{Log: logr.Discard(), ArtifactsDir: artifacts})
	if _, err := p.Run(context.Background(), Analysis{RepoPath: t.TempDir()}, nil, ""); err != nil {
		t.Fatalf("run: %v", err)
	}
	id := p.Session().ID()

	snap, err := readSessionSummary(artifacts, id)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if snap.Status != StatusCompleted || snap.ID != id {
		t.Fatalf("summary=%+v", snap)
	}

	raw, err := os.ReadFile(filepath.Join(artifacts, id, "events.jsonl"))
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 10 {
		t.Fatalf("event lines=%d", len(lines))
	}
}

func TestStatusTerminal(t *testing.T) {
	inProgress := []Status{StatusStarting, StatusDetecting, StatusBuilding, StatusProvisioning, StatusDeploying}
	for _, s := range inProgress {
		if s.Terminal() {
			t.Fatalf("%s marked terminal", s)
		}
	}
	terminal := []Status{StatusCompleted, StatusBuildFailed, StatusProvisionFailed, StatusDeployFailed, StatusFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("%s not terminal", s)
		}
	}
	if StatusCompleted.Failure() {
		t.Fatalf("completed is not a failure")
	}
	if !StatusBuildFailed.Failure() {
		t.Fatalf("build_failed is a failure")
	}
}

func TestSessionFinishIsIdempotent(t *testing.T) {
	s := newSession("/tmp/repo")
	s.finish(StatusBuildFailed, "boom", 2)
	s.finish(StatusCompleted, "", 9)
	snap := s.Snapshot()
	if snap.Status != StatusBuildFailed || snap.Error != "boom" || snap.ElapsedSeconds != 2 {
		t.Fatalf("snapshot=%+v", snap)
	}
}
