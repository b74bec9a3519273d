package plugins

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/example/gantry/internal/classify"
	"github.com/example/gantry/internal/plugin"
)

// staticEntryPoint is the file the static rule anchors on.
const staticEntryPoint = "index.html"

// staticDetector matches plain HTML sites. The rule is deliberately narrow
// and runs at high priority so it pre-empts the broad catch-alls: a root
// index.html with no package.json. Repositories that are primarily Python
// never match, no matter how much HTML they contain; the .py thresholds
// live in the classify package.
type staticDetector struct {
	log      logr.Logger
	priority int
}

func (d *staticDetector) Priority() int { return d.priority }

func (d *staticDetector) Detect(ctx context.Context, repoPath string, dctx plugin.DetectionContext) (*plugin.StackPlan, error) {
	sig, err := signalsFor(ctx, repoPath, dctx, d.log)
	if err != nil {
		return nil, err
	}
	if !sig.HasFile(staticEntryPoint) {
		return nil, nil
	}
	if sig.HasFile("package.json") {
		return nil, nil
	}
	if classify.PrimarilyPython(sig) {
		d.log.V(1).Info("static rule declined, repository is primarily python", "repo", repoPath)
		return nil, nil
	}
	p := &plugin.StackPlan{StackKey: StackStatic, OutputDir: "."}
	p.SetConfig(plugin.ConfigEntryPoint, staticEntryPoint)
	return p, nil
}
