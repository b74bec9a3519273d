package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/rego"

	"github.com/example/gantry/internal/plugin"
)

type Mode string

const (
	ModeEnforce Mode = "enforce"
	ModeWarn    Mode = "warn"
)

// DefaultQuery is the document consulted for plan decisions. Policies
// populate deny[...] and warn[...] rules under package gantry.plan.
const DefaultQuery = "data.gantry.plan"

// PlanInput is the document handed to policies as input.
type PlanInput struct {
	WhenUTC       time.Time         `json:"whenUtc"`
	StackKey      string            `json:"stackKey"`
	BuildCommands []string          `json:"buildCommands,omitempty"`
	OutputDir     string            `json:"outputDir,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	Config        map[string]any    `json:"config,omitempty"`
	RepositoryURL string            `json:"repositoryUrl,omitempty"`
	Data          map[string]any    `json:"data,omitempty"`
}

// NewPlanInput projects a stack plan into the policy input document.
func NewPlanInput(plan *plugin.StackPlan) PlanInput {
	return PlanInput{
		WhenUTC:       time.Now().UTC(),
		StackKey:      plan.StackKey,
		BuildCommands: plan.BuildCommands,
		OutputDir:     plan.OutputDir,
		Env:           plan.Env,
		Config:        plan.Config,
		RepositoryURL: plan.ConfigString(plugin.ConfigRepositoryURL),
	}
}

type Violation struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Subject string `json:"subject,omitempty"`
}

type Report struct {
	PolicyRef   string      `json:"policyRef,omitempty"`
	Mode        Mode        `json:"mode"`
	Passed      bool        `json:"passed"`
	DenyCount   int         `json:"denyCount"`
	WarnCount   int         `json:"warnCount"`
	Deny        []Violation `json:"deny,omitempty"`
	Warn        []Violation `json:"warn,omitempty"`
	EvaluatedAt time.Time   `json:"evaluatedAt"`
}

// Evaluate runs the bundle's deny/warn rules against one plan input.
func Evaluate(ctx context.Context, bundle *Bundle, input PlanInput) (*Report, error) {
	return EvaluateWithQuery(ctx, bundle, input, DefaultQuery)
}

func EvaluateWithQuery(ctx context.Context, bundle *Bundle, input PlanInput, query string) (*Report, error) {
	if bundle == nil || len(bundle.Modules) == 0 {
		return nil, errors.New("policy bundle is required")
	}
	input.Data = bundle.Data
	query = strings.TrimSpace(query)
	if query == "" {
		query = DefaultQuery
	}
	opts := []func(*rego.Rego){
		rego.Query(query),
		rego.Input(input),
	}
	for name, src := range bundle.Modules {
		opts = append(opts, rego.Module(name, src))
	}
	rs, err := rego.New(opts...).Eval(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{
		Mode:        ModeEnforce,
		EvaluatedAt: time.Now().UTC(),
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		report.Passed = true
		return report, nil
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		report.Passed = true
		return report, nil
	}
	report.Deny = violations(doc["deny"])
	report.Warn = violations(doc["warn"])
	report.DenyCount = len(report.Deny)
	report.WarnCount = len(report.Warn)
	report.Passed = report.DenyCount == 0
	return report, nil
}

func violations(v any) []Violation {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Violation, 0, len(list))
	for _, entry := range list {
		out = append(out, decodeViolation(entry))
	}
	return out
}

func decodeViolation(entry any) Violation {
	switch t := entry.(type) {
	case string:
		return Violation{Message: t}
	case map[string]any:
		viol := Violation{}
		viol.Message, _ = t["message"].(string)
		viol.Code, _ = t["code"].(string)
		viol.Subject, _ = t["subject"].(string)
		if viol.Message == "" {
			viol.Message = fmt.Sprintf("%v", t)
		}
		return viol
	default:
		return Violation{Message: fmt.Sprintf("%v", t)}
	}
}
