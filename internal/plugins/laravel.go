package plugins

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/example/gantry/internal/classify"
	"github.com/example/gantry/internal/plugin"
)

// laravelDetector confirms Laravel by both the framework dependency and the
// artisan entry point, then resolves the deployment sub-mode. Sub-mode
// decides the build sequence: a split SPA builds its frontend separately,
// server-rendered views compile assets in place, and an API-only app skips
// the asset toolchain entirely.
type laravelDetector struct {
	log      logr.Logger
	priority int
}

func (d *laravelDetector) Priority() int { return d.priority }

func (d *laravelDetector) Detect(ctx context.Context, repoPath string, dctx plugin.DetectionContext) (*plugin.StackPlan, error) {
	sig, err := signalsFor(ctx, repoPath, dctx, d.log)
	if err != nil {
		return nil, err
	}
	if !sig.HasDependency("laravel/framework") || !sig.HasFile("artisan") {
		return nil, nil
	}

	mode := classify.ClassifyLaravelMode(sig)
	p := &plugin.StackPlan{
		StackKey:      StackLaravel,
		BuildCommands: laravelBuildCommands(mode),
		OutputDir:     "public",
	}
	p.SetConfig(plugin.ConfigMode, string(mode))
	if mode == classify.LaravelModeSPASplit {
		if dir, ok := classify.SplitFrontendDir(sig); ok {
			p.SetConfig(plugin.ConfigFrontendDir, dir)
		}
	}
	if profile, ok := classify.ProfileFor("laravel"); ok {
		if m := classify.Score(profile, sig); m.Confidence > 0 {
			p.SetConfig(plugin.ConfigConfidence, m.Confidence)
		}
	}
	d.log.V(1).Info("laravel sub-mode resolved", "mode", string(mode))
	return p, nil
}

func laravelBuildCommands(mode classify.LaravelMode) []string {
	base := []string{"composer install --no-dev --optimize-autoloader"}
	if mode == classify.LaravelModeBladeSSR {
		base = append(base, "npm ci", "npm run build")
	}
	return append(base, "php artisan config:cache")
}
