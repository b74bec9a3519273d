package plugins

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/example/gantry/internal/classify"
	"github.com/example/gantry/internal/plugin"
	"github.com/example/gantry/internal/scan"
)

// signalsFor reuses the caller's signal snapshot when one was collected for
// this analysis, and scans the repository otherwise.
func signalsFor(ctx context.Context, repoPath string, dctx plugin.DetectionContext, log logr.Logger) (*scan.Signals, error) {
	if dctx.Signals != nil {
		return dctx.Signals, nil
	}
	return scan.Collect(ctx, repoPath, scan.Options{Log: log})
}

// profileDetector scores one classifier profile and emits a plan when the
// confidence is above zero. The plan shape comes from the per-stack planner.
type profileDetector struct {
	stackKey string
	profile  classify.Profile
	priority int
	log      logr.Logger
	plan     func(m classify.Match, sig *scan.Signals) *plugin.StackPlan
}

func newProfileDetector(stackKey string, priority int, log logr.Logger) *profileDetector {
	profile, ok := classify.ProfileFor(stackKey)
	if !ok {
		panic(fmt.Sprintf("no classifier profile for stack %q", stackKey))
	}
	return &profileDetector{
		stackKey: stackKey,
		profile:  profile,
		priority: priority,
		log:      log,
		plan:     plannerFor(stackKey),
	}
}

func (d *profileDetector) Priority() int { return d.priority }

func (d *profileDetector) Detect(ctx context.Context, repoPath string, dctx plugin.DetectionContext) (*plugin.StackPlan, error) {
	sig, err := signalsFor(ctx, repoPath, dctx, d.log)
	if err != nil {
		return nil, err
	}
	m := classify.Score(d.profile, sig)
	if m.Confidence == 0 {
		return nil, nil
	}
	p := d.plan(m, sig)
	p.StackKey = d.stackKey
	p.SetConfig(plugin.ConfigConfidence, m.Confidence)
	return p, nil
}

// plannerFor returns the plan shape for one framework stack: build command
// sequence and the directory holding the built output.
func plannerFor(stackKey string) func(classify.Match, *scan.Signals) *plugin.StackPlan {
	switch stackKey {
	case StackNextJS:
		return func(classify.Match, *scan.Signals) *plugin.StackPlan {
			return &plugin.StackPlan{
				BuildCommands: []string{"npm ci", "npm run build"},
				OutputDir:     ".next",
			}
		}
	case StackDjango:
		return func(_ classify.Match, sig *scan.Signals) *plugin.StackPlan {
			p := &plugin.StackPlan{
				BuildCommands: []string{"pip install -r requirements.txt"},
				OutputDir:     ".",
			}
			if sig.HasFile("manage.py") {
				p.BuildCommands = append(p.BuildCommands, "python manage.py collectstatic --noinput")
			}
			return p
		}
	case StackRails:
		return func(classify.Match, *scan.Signals) *plugin.StackPlan {
			return &plugin.StackPlan{
				BuildCommands: []string{"bundle install", "bundle exec rake assets:precompile"},
				OutputDir:     "public",
			}
		}
	case StackFlask:
		return func(classify.Match, *scan.Signals) *plugin.StackPlan {
			return &plugin.StackPlan{
				BuildCommands: []string{"pip install -r requirements.txt"},
				OutputDir:     ".",
			}
		}
	default:
		return func(classify.Match, *scan.Signals) *plugin.StackPlan {
			return &plugin.StackPlan{OutputDir: "."}
		}
	}
}

// nodeDetector is the generic node catch-all behind the framework-specific
// detectors: any repository with a root package.json matches.
type nodeDetector struct {
	log      logr.Logger
	priority int
}

func (d *nodeDetector) Priority() int { return d.priority }

func (d *nodeDetector) Detect(ctx context.Context, repoPath string, dctx plugin.DetectionContext) (*plugin.StackPlan, error) {
	sig, err := signalsFor(ctx, repoPath, dctx, d.log)
	if err != nil {
		return nil, err
	}
	if !sig.HasFile("package.json") {
		return nil, nil
	}

	p := &plugin.StackPlan{
		StackKey:      StackNode,
		BuildCommands: []string{"npm ci"},
		OutputDir:     ".",
	}
	if _, ok := sig.Scripts["build"]; ok {
		p.BuildCommands = append(p.BuildCommands, "npm run build")
		p.OutputDir = nodeOutputDir(sig)
	}
	if framework, confidence := nodeFrameworkMatch(sig); framework != "" {
		p.SetConfig("framework", framework)
		p.SetConfig(plugin.ConfigConfidence, confidence)
	}
	return p, nil
}

// nodeOutputDir picks the conventional build output directory for the
// toolchain in use.
func nodeOutputDir(sig *scan.Signals) string {
	if sig.HasDependency("react-scripts") {
		return "build"
	}
	return "dist"
}

// nodeFrameworkMatch scores the node-runtime profiles only, so a python or
// php repository cannot leak a framework tag into a node plan.
func nodeFrameworkMatch(sig *scan.Signals) (string, float64) {
	best := classify.Match{}
	for _, key := range []string{"express", "react-spa", "vue-spa"} {
		profile, ok := classify.ProfileFor(key)
		if !ok {
			continue
		}
		if m := classify.Score(profile, sig); m.Confidence > best.Confidence {
			best = m
		}
	}
	if best.Confidence == 0 {
		return "", 0
	}
	return best.StackKey, best.Confidence
}

// phpDetector is the lowest-priority catch-all for PHP repositories that no
// specific framework detector claimed.
type phpDetector struct {
	log      logr.Logger
	priority int
}

func (d *phpDetector) Priority() int { return d.priority }

func (d *phpDetector) Detect(ctx context.Context, repoPath string, dctx plugin.DetectionContext) (*plugin.StackPlan, error) {
	sig, err := signalsFor(ctx, repoPath, dctx, d.log)
	if err != nil {
		return nil, err
	}
	hasComposer := sig.HasFile("composer.json")
	if !hasComposer && sig.ExtensionCount(".php") == 0 {
		return nil, nil
	}
	p := &plugin.StackPlan{StackKey: StackPHP, OutputDir: "."}
	if hasComposer {
		p.BuildCommands = []string{"composer install --no-dev"}
	}
	return p, nil
}
