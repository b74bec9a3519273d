package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-logr/logr"

	"github.com/example/gantry/internal/plugin"
)

// Gate evaluates detected plans against a policy bundle before the pipeline
// is allowed to build. In enforce mode a denial (or an evaluation failure)
// vetoes the run; in warn mode both are logged and the run proceeds.
type Gate struct {
	Bundle *Bundle
	Mode   Mode
	// Query overrides DefaultQuery when set.
	Query string
	// ReportPath, when set, receives the evaluation report as JSON.
	ReportPath string
	Log        logr.Logger
}

// NewGate wraps a loaded bundle. An empty mode means enforce.
func NewGate(bundle *Bundle, mode Mode, log logr.Logger) *Gate {
	if mode == "" {
		mode = ModeEnforce
	}
	return &Gate{Bundle: bundle, Mode: mode, Log: log.WithName("policy")}
}

// CheckPlan implements the pipeline's plan gate.
func (g *Gate) CheckPlan(ctx context.Context, plan *plugin.StackPlan) error {
	report, err := EvaluateWithQuery(ctx, g.Bundle, NewPlanInput(plan), g.Query)
	if err != nil {
		if g.Mode == ModeWarn {
			g.Log.Error(err, "policy evaluation failed, warn mode lets the run proceed")
			return nil
		}
		return fmt.Errorf("policy evaluation failed: %v", err)
	}
	report.Mode = g.Mode
	if g.ReportPath != "" {
		if werr := WriteReport(g.ReportPath, report); werr != nil {
			g.Log.Error(werr, "write policy report", "path", g.ReportPath)
		}
	}
	for _, w := range report.Warn {
		g.Log.Info("policy warning", "stack", plan.StackKey, "message", w.Message, "code", w.Code)
	}
	if report.Passed {
		return nil
	}
	if g.Mode == ModeWarn {
		for _, d := range report.Deny {
			g.Log.Info("policy denial ignored in warn mode", "stack", plan.StackKey, "message", d.Message, "code", d.Code)
		}
		return nil
	}
	return fmt.Errorf("policy denied plan for stack %q: %s", plan.StackKey, joinMessages(report.Deny))
}

func joinMessages(list []Violation) string {
	msgs := make([]string, 0, len(list))
	for _, v := range list {
		msgs = append(msgs, v.Message)
	}
	return strings.Join(msgs, "; ")
}
