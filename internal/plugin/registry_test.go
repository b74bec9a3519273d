package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/go-logr/logr"
)

type stubDetector struct {
	key      string
	priority int
	plan     *StackPlan
	err      error
	panics   bool
	calls    *[]string
}

func (d *stubDetector) Detect(ctx context.Context, repoPath string, dctx DetectionContext) (*StackPlan, error) {
	if d.calls != nil {
		*d.calls = append(*d.calls, d.key)
	}
	if d.panics {
		panic("detector exploded")
	}
	return d.plan, d.err
}

func (d *stubDetector) Priority() int { return d.priority }

func registryWith(t *testing.T, plugins ...*Plugin) *Registry {
	t.Helper()
	r := NewRegistry(logr.Discard())
	for _, p := range plugins {
		if err := r.Register(p); err != nil {
			t.Fatalf("register %s: %v", p.StackKey, err)
		}
	}
	return r
}

func TestRegister_DuplicateStackKey(t *testing.T) {
	r := registryWith(t, &Plugin{StackKey: "static", Detector: &stubDetector{key: "static"}})
	err := r.Register(&Plugin{StackKey: "static", Detector: &stubDetector{key: "static"}})
	var dup *DuplicateStackError
	if !errors.As(err, &dup) {
		t.Fatalf("err=%v, want DuplicateStackError", err)
	}
	if dup.StackKey != "static" {
		t.Fatalf("dup key=%q", dup.StackKey)
	}
}

func TestRegister_RequiresKeyAndDetector(t *testing.T) {
	r := NewRegistry(logr.Discard())
	if err := r.Register(&Plugin{StackKey: ""}); err == nil {
		t.Fatalf("expected error for missing stack key")
	}
	if err := r.Register(&Plugin{StackKey: "x"}); err == nil {
		t.Fatalf("expected error for missing detector")
	}
}

func TestDetect_PriorityOrderFirstMatchWins(t *testing.T) {
	var calls []string
	r := registryWith(t,
		&Plugin{StackKey: "low", Detector: &stubDetector{key: "low", priority: 1, calls: &calls, plan: &StackPlan{StackKey: "low"}}},
		&Plugin{StackKey: "high", Detector: &stubDetector{key: "high", priority: 100, calls: &calls, plan: &StackPlan{StackKey: "high"}}},
		&Plugin{StackKey: "mid", Detector: &stubDetector{key: "mid", priority: 50, calls: &calls}},
	)
	plan, err := r.Detect(context.Background(), "/repo", DetectionContext{})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if plan.StackKey != "high" {
		t.Fatalf("plan stack=%s, want high", plan.StackKey)
	}
	if len(calls) != 1 || calls[0] != "high" {
		t.Fatalf("calls=%v, want detection to stop at first match", calls)
	}
}

func TestDetect_EqualPriorityTieBreaksOnStackKey(t *testing.T) {
	var calls []string
	r := registryWith(t,
		&Plugin{StackKey: "zeta", Detector: &stubDetector{key: "zeta", priority: 10, calls: &calls}},
		&Plugin{StackKey: "alpha", Detector: &stubDetector{key: "alpha", priority: 10, calls: &calls}},
	)
	_, err := r.Detect(context.Background(), "/repo", DetectionContext{})
	if !errors.Is(err, ErrNoStackDetected) {
		t.Fatalf("err=%v, want ErrNoStackDetected", err)
	}
	if len(calls) != 2 || calls[0] != "alpha" || calls[1] != "zeta" {
		t.Fatalf("calls=%v, want alphabetical within equal priority", calls)
	}
}

func TestDetect_ErroringAndPanickingDetectorsAreSkipped(t *testing.T) {
	var calls []string
	r := registryWith(t,
		&Plugin{StackKey: "boom", Detector: &stubDetector{key: "boom", priority: 30, calls: &calls, panics: true}},
		&Plugin{StackKey: "broken", Detector: &stubDetector{key: "broken", priority: 20, calls: &calls, err: errors.New("io failure")}},
		&Plugin{StackKey: "works", Detector: &stubDetector{key: "works", priority: 10, calls: &calls, plan: &StackPlan{StackKey: "works"}}},
	)
	plan, err := r.Detect(context.Background(), "/repo", DetectionContext{})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if plan.StackKey != "works" {
		t.Fatalf("plan stack=%s", plan.StackKey)
	}
	if len(calls) != 3 {
		t.Fatalf("calls=%v, want all three detectors tried", calls)
	}
}

func TestDetect_InjectsRepositoryURL(t *testing.T) {
	r := registryWith(t,
		&Plugin{StackKey: "static", Detector: &stubDetector{key: "static", plan: &StackPlan{StackKey: "static"}}},
	)
	plan, err := r.Detect(context.Background(), "/repo", DetectionContext{RepositoryURL: "https://github.com/acme/site.git"})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if got := plan.ConfigString(ConfigRepositoryURL); got != "https://github.com/acme/site.git" {
		t.Fatalf("repository_url=%q", got)
	}
}

func TestDetect_DoesNotOverwriteRepositoryURL(t *testing.T) {
	existing := &StackPlan{StackKey: "static"}
	existing.SetConfig(ConfigRepositoryURL, "https://example.com/original.git")
	r := registryWith(t,
		&Plugin{StackKey: "static", Detector: &stubDetector{key: "static", plan: existing}},
	)
	plan, err := r.Detect(context.Background(), "/repo", DetectionContext{RepositoryURL: "https://example.com/other.git"})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if got := plan.ConfigString(ConfigRepositoryURL); got != "https://example.com/original.git" {
		t.Fatalf("repository_url=%q, plan value should win", got)
	}
}

func TestHealth_AtLeastOneHealthyPlugin(t *testing.T) {
	failing := func(ctx context.Context) error { return errors.New("unreachable") }
	r := registryWith(t,
		&Plugin{StackKey: "a", Detector: &stubDetector{key: "a"}, Health: failing},
		&Plugin{StackKey: "b", Detector: &stubDetector{key: "b"}},
	)
	report := r.Health(context.Background())
	if !report.Healthy {
		t.Fatalf("registry should be healthy with one healthy plugin")
	}
	if report.Stacks["a"] == "" || report.Stacks["b"] != "" {
		t.Fatalf("stacks=%v", report.Stacks)
	}
}

func TestHealth_AllUnhealthy(t *testing.T) {
	failing := func(ctx context.Context) error { return errors.New("down") }
	r := registryWith(t,
		&Plugin{StackKey: "a", Detector: &stubDetector{key: "a"}, Health: failing},
	)
	if report := r.Health(context.Background()); report.Healthy {
		t.Fatalf("registry healthy with zero healthy plugins")
	}
}

func TestStackKeys_Sorted(t *testing.T) {
	r := registryWith(t,
		&Plugin{StackKey: "zeta", Detector: &stubDetector{key: "zeta"}},
		&Plugin{StackKey: "alpha", Detector: &stubDetector{key: "alpha"}},
	)
	keys := r.StackKeys()
	if len(keys) != 2 || keys[0] != "alpha" || keys[1] != "zeta" {
		t.Fatalf("keys=%v", keys)
	}
}
