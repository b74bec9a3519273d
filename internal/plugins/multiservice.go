package plugins

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/example/gantry/internal/plugin"
	"github.com/example/gantry/internal/services"
)

// multiserviceDetector claims repositories that decompose into two or more
// app services. A single app surrounded by infrastructure containers stays
// with its framework detector; the decomposition is still available through
// the services command.
type multiserviceDetector struct {
	log      logr.Logger
	priority int
}

func (d *multiserviceDetector) Priority() int { return d.priority }

func (d *multiserviceDetector) Detect(ctx context.Context, repoPath string, dctx plugin.DetectionContext) (*plugin.StackPlan, error) {
	sig, err := signalsFor(ctx, repoPath, dctx, d.log)
	if err != nil {
		return nil, err
	}
	dec := services.Decompose(repoPath, sig, services.Options{Log: d.log})
	if len(dec.Services) < 2 {
		return nil, nil
	}

	p := &plugin.StackPlan{StackKey: StackMultiservice, OutputDir: "."}
	p.SetConfig(plugin.ConfigServices, dec.Services)
	if len(dec.SharedResources) > 0 {
		p.SetConfig(plugin.ConfigSharedResources, dec.SharedResources)
	}
	if len(dec.Routes) > 0 {
		p.SetConfig(plugin.ConfigRoutes, dec.Routes)
	}
	d.log.V(1).Info("multi-service repository",
		"services", len(dec.Services),
		"shared", len(dec.SharedResources))
	return p, nil
}
