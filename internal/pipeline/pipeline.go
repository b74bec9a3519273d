// File: internal/pipeline/pipeline.go
// Brief: Four-phase deployment orchestrator: detect, build, provision,
// deploy.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/example/gantry/internal/plugin"
	"github.com/example/gantry/internal/scan"
)

// Analysis is the input of one run: the repository and whatever the caller
// already knows about it.
type Analysis struct {
	RepoPath string
	// Signals, when set, is reused by every detector instead of re-scanning.
	Signals *scan.Signals
	// RepositoryURL is injected into plans that lack one.
	RepositoryURL string
}

// PlanGate is consulted between detect and build. A non-nil error vetoes the
// run before any build work starts.
type PlanGate interface {
	CheckPlan(ctx context.Context, plan *plugin.StackPlan) error
}

// Options configures a Pipeline.
type Options struct {
	Log logr.Logger
	// Store persists sessions and events when set.
	Store *Store
	// ArtifactsDir, when set, receives per-session JSONL event logs and
	// summary files.
	ArtifactsDir string
	// Gate, when set, can veto a detected plan before build.
	Gate PlanGate
	// Observers receive every event, in emission order.
	Observers []EventObserver
}

// Pipeline drives one DeploymentSession per Run call through the phase
// state machine. The registry is shared and read-only; everything mutable
// lives in the per-run session, so independent runs may proceed
// concurrently from separate Pipeline instances.
type Pipeline struct {
	registry  *plugin.Registry
	log       logr.Logger
	store     *Store
	artifacts string
	gate      PlanGate
	observers []EventObserver

	session *Session
}

// New returns a pipeline bound to a plugin registry.
func New(registry *plugin.Registry, opts Options) *Pipeline {
	return &Pipeline{
		registry:  registry,
		log:       opts.Log.WithName("pipeline"),
		store:     opts.Store,
		artifacts: opts.ArtifactsDir,
		gate:      opts.Gate,
		observers: opts.Observers,
	}
}

// Session returns the session of the most recent Run, for progress polling.
func (p *Pipeline) Session() *Session {
	return p.session
}

// Run executes the state machine once. Phase failures are reported through
// the returned DeployResult (success=false, the failing phase's message
// verbatim, cumulative elapsed time); the error return is reserved for the
// orchestrator itself being unusable. No phase is retried, and no phase runs
// after a failed one.
func (p *Pipeline) Run(ctx context.Context, analysis Analysis, creds plugin.Credentials, stackOverride string) (*plugin.DeployResult, error) {
	if analysis.RepoPath == "" {
		return nil, errors.New("analysis needs a repository path")
	}

	session := newSession(analysis.RepoPath)
	p.session = session
	p.persistCreate(session)
	p.emit(newEvent(session.ID(), EventRunStarted))
	session.appendLog("info", "run started: "+analysis.RepoPath)

	res := p.run(ctx, session, analysis, creds, stackOverride)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, session *Session, analysis Analysis, creds plugin.Credentials, stackOverride string) *plugin.DeployResult {
	var elapsed float64

	// Detect.
	session.setStatus(StatusDetecting)
	p.emitPhase(session, EventPhaseStarted, PhaseDetect, "", 0)
	detectStart := time.Now()
	plan, bundle, failMsg := p.resolveStack(ctx, analysis, stackOverride)
	detectElapsed := time.Since(detectStart).Seconds()
	elapsed += detectElapsed
	if failMsg != "" {
		p.emitPhase(session, EventPhaseCompleted, PhaseDetect, "failed", detectElapsed)
		return p.finish(session, StatusFailed, failMsg, elapsed)
	}
	session.setPlan(plan)
	session.appendLog("info", "stack detected: "+plan.StackKey)
	p.emitPhase(session, EventPhaseCompleted, PhaseDetect, "ok", detectElapsed)

	if p.gate != nil {
		if err := p.gate.CheckPlan(ctx, plan); err != nil {
			session.appendLog("error", "plan rejected: "+err.Error())
			return p.finish(session, StatusFailed, err.Error(), elapsed)
		}
	}

	// Build.
	session.setStatus(StatusBuilding)
	p.emitPhase(session, EventPhaseStarted, PhaseBuild, "", 0)
	build, phaseElapsed, msg := p.buildPhase(ctx, bundle, plan, analysis.RepoPath)
	elapsed += phaseElapsed
	session.setBuild(build)
	if msg != "" {
		p.emitPhase(session, EventPhaseCompleted, PhaseBuild, "failed", phaseElapsed)
		return p.finish(session, StatusBuildFailed, msg, elapsed)
	}
	p.emitPhase(session, EventPhaseCompleted, PhaseBuild, "ok", phaseElapsed)

	// Provision.
	session.setStatus(StatusProvisioning)
	p.emitPhase(session, EventPhaseStarted, PhaseProvision, "", 0)
	prov, phaseElapsed, msg := p.provisionPhase(ctx, bundle, plan, build, creds)
	elapsed += phaseElapsed
	session.setProvision(prov)
	if msg != "" {
		p.emitPhase(session, EventPhaseCompleted, PhaseProvision, "failed", phaseElapsed)
		return p.finish(session, StatusProvisionFailed, msg, elapsed)
	}
	p.emitPhase(session, EventPhaseCompleted, PhaseProvision, "ok", phaseElapsed)

	// Deploy.
	session.setStatus(StatusDeploying)
	p.emitPhase(session, EventPhaseStarted, PhaseDeploy, "", 0)
	deploy, phaseElapsed, msg := p.deployPhase(ctx, bundle, plan, build, prov, creds)
	elapsed += phaseElapsed
	session.setDeploy(deploy)
	if msg != "" {
		p.emitPhase(session, EventPhaseCompleted, PhaseDeploy, "failed", phaseElapsed)
		return p.finish(session, StatusDeployFailed, msg, elapsed)
	}
	p.emitPhase(session, EventPhaseCompleted, PhaseDeploy, "ok", phaseElapsed)

	session.finish(StatusCompleted, "", elapsed)
	session.appendLog("info", "run completed")
	p.persistUpdate(session)
	ev := newEvent(session.ID(), EventRunCompleted)
	ev.Status = string(StatusCompleted)
	ev.ElapsedSeconds = elapsed
	p.emit(ev)

	final := *deploy
	final.ElapsedSeconds = elapsed
	return &final
}

// resolveStack produces the plan and plugin bundle for this run. With a
// forced stack the bundle is fetched directly and a declining detector is
// overridden by a synthesized minimal plan, so a forced stack always
// proceeds to build. Without force, the registry's priority-ordered detect
// decides; no match is the "no suitable stack detected" failure.
func (p *Pipeline) resolveStack(ctx context.Context, analysis Analysis, stackOverride string) (*plugin.StackPlan, *plugin.Plugin, string) {
	dctx := plugin.DetectionContext{
		Signals:       analysis.Signals,
		RepositoryURL: analysis.RepositoryURL,
	}

	if stackOverride != "" {
		bundle, ok := p.registry.Get(stackOverride)
		if !ok {
			return nil, nil, fmt.Sprintf("unknown stack %q", stackOverride)
		}
		plan := p.forcedDetect(ctx, bundle, analysis.RepoPath, dctx)
		if plan == nil {
			plan = synthesizeMinimalPlan(stackOverride)
			p.log.V(1).Info("forced stack did not match, synthesized minimal plan", "stack", stackOverride)
		}
		if dctx.RepositoryURL != "" && plan.ConfigString(plugin.ConfigRepositoryURL) == "" {
			plan.SetConfig(plugin.ConfigRepositoryURL, dctx.RepositoryURL)
		}
		return plan, bundle, ""
	}

	plan, err := p.registry.Detect(ctx, analysis.RepoPath, dctx)
	if err != nil {
		if errors.Is(err, plugin.ErrNoStackDetected) {
			return nil, nil, plugin.ErrNoStackDetected.Error()
		}
		return nil, nil, err.Error()
	}
	bundle, ok := p.registry.Get(plan.StackKey)
	if !ok {
		return nil, nil, fmt.Sprintf("no plugin registered for stack %q", plan.StackKey)
	}
	return plan, bundle, ""
}

// forcedDetect calls one detector directly, treating errors and panics the
// way the registry does: as "found nothing".
func (p *Pipeline) forcedDetect(ctx context.Context, bundle *plugin.Plugin, repoPath string, dctx plugin.DetectionContext) (plan *plugin.StackPlan) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Info("forced detector panicked", "stack", bundle.StackKey, "panic", fmt.Sprint(rec))
			plan = nil
		}
	}()
	plan, err := bundle.Detector.Detect(ctx, repoPath, dctx)
	if err != nil {
		p.log.Error(err, "forced detector failed", "stack", bundle.StackKey)
		return nil
	}
	return plan
}

// synthesizeMinimalPlan is the no-op plan used when a forced stack's own
// detector declines.
func synthesizeMinimalPlan(stackKey string) *plugin.StackPlan {
	plan := &plugin.StackPlan{StackKey: stackKey, OutputDir: "."}
	plan.SetConfig(plugin.ConfigSynthesized, true)
	return plan
}

func (p *Pipeline) buildPhase(ctx context.Context, bundle *plugin.Plugin, plan *plugin.StackPlan, repoPath string) (*plugin.BuildResult, float64, string) {
	if bundle.Builder == nil {
		return nil, 0, fmt.Sprintf("stack %q has no builder", bundle.StackKey)
	}
	if !bundle.Builder.ValidateBuildRequirements(repoPath) {
		return nil, 0, fmt.Sprintf("build requirements not satisfied for %s", repoPath)
	}
	start := time.Now()
	res, err := bundle.Builder.Build(ctx, plan, repoPath)
	walltime := time.Since(start).Seconds()
	if err != nil {
		return nil, walltime, err.Error()
	}
	elapsed := phaseElapsed(res.ElapsedSeconds, walltime)
	if !res.Success {
		return res, elapsed, res.ErrorMessage
	}
	return res, elapsed, ""
}

func (p *Pipeline) provisionPhase(ctx context.Context, bundle *plugin.Plugin, plan *plugin.StackPlan, build *plugin.BuildResult, creds plugin.Credentials) (*plugin.ProvisionResult, float64, string) {
	if bundle.Provisioner == nil {
		return nil, 0, fmt.Sprintf("stack %q has no provisioner", bundle.StackKey)
	}
	start := time.Now()
	res, err := bundle.Provisioner.Provision(ctx, plan, build, creds)
	walltime := time.Since(start).Seconds()
	if err != nil {
		return nil, walltime, err.Error()
	}
	elapsed := phaseElapsed(res.ElapsedSeconds, walltime)
	if !res.Success {
		return res, elapsed, res.ErrorMessage
	}
	return res, elapsed, ""
}

func (p *Pipeline) deployPhase(ctx context.Context, bundle *plugin.Plugin, plan *plugin.StackPlan, build *plugin.BuildResult, prov *plugin.ProvisionResult, creds plugin.Credentials) (*plugin.DeployResult, float64, string) {
	if bundle.Deployer == nil {
		return nil, 0, fmt.Sprintf("stack %q has no deployer", bundle.StackKey)
	}
	start := time.Now()
	res, err := bundle.Deployer.Deploy(ctx, plan, build, prov, creds)
	walltime := time.Since(start).Seconds()
	if err != nil {
		return nil, walltime, err.Error()
	}
	elapsed := phaseElapsed(res.ElapsedSeconds, walltime)
	if !res.Success {
		return res, elapsed, res.ErrorMessage
	}
	return res, elapsed, ""
}

// phaseElapsed prefers the duration the plugin reported; stub plugins in
// particular report their own timing.
func phaseElapsed(reported, walltime float64) float64 {
	if reported > 0 {
		return reported
	}
	return walltime
}

// finish moves the session to a failure terminal and returns the composite
// failure result: the failing phase's message verbatim plus the cumulative
// elapsed time across everything that ran.
func (p *Pipeline) finish(session *Session, status Status, message string, elapsed float64) *plugin.DeployResult {
	session.finish(status, message, elapsed)
	session.appendLog("error", message)
	p.persistUpdate(session)
	ev := newEvent(session.ID(), EventRunCompleted)
	ev.Status = string(status)
	ev.Message = message
	ev.ElapsedSeconds = elapsed
	p.emit(ev)
	p.log.Info("run failed", "session", session.ID(), "status", string(status), "error", message)
	return &plugin.DeployResult{
		Success:        false,
		ErrorMessage:   message,
		ElapsedSeconds: elapsed,
	}
}

func (p *Pipeline) emitPhase(session *Session, typ EventType, phase, status string, elapsed float64) {
	ev := newEvent(session.ID(), typ)
	ev.Phase = phase
	ev.Status = status
	ev.ElapsedSeconds = elapsed
	p.emit(ev)
}

// emit fans an event out to the store, the artifacts log, and every
// observer. Persistence uses a background context so terminal events
// survive a canceled run context.
func (p *Pipeline) emit(ev Event) {
	if p.store != nil {
		if err := p.store.AppendEvent(context.Background(), ev); err != nil {
			p.log.Error(err, "persist event", "type", string(ev.Type))
		}
	}
	if p.artifacts != "" {
		if err := appendSessionEvent(p.artifacts, ev); err != nil {
			p.log.Error(err, "append event log", "type", string(ev.Type))
		}
	}
	for _, obs := range p.observers {
		obs.ObserveEvent(ev)
	}
}

func (p *Pipeline) persistCreate(session *Session) {
	if p.store == nil {
		return
	}
	if err := p.store.CreateSession(context.Background(), session.Snapshot()); err != nil {
		p.log.Error(err, "persist session", "session", session.ID())
	}
}

func (p *Pipeline) persistUpdate(session *Session) {
	snap := session.Snapshot()
	if p.store != nil {
		if err := p.store.UpdateSession(context.Background(), snap); err != nil {
			p.log.Error(err, "update session", "session", snap.ID)
		}
	}
	if p.artifacts != "" {
		if err := writeSessionSummary(p.artifacts, snap); err != nil {
			p.log.Error(err, "write session summary", "session", snap.ID)
		}
	}
}
