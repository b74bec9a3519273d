package policy

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr"

	"github.com/example/gantry/internal/plugin"
)

const blockPHPPolicy = `
package gantry.plan

deny[msg] {
  input.stackKey == "php"
  msg := {"code": "STACK_BLOCKED", "message": "php stacks are not deployable here", "subject": input.stackKey}
}

warn[msg] {
  not input.outputDir
  msg := "plan has no output directory"
}
`

func loadTestBundle(t *testing.T, rego string, data string) *Bundle {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "policy.rego"), []byte(rego), 0o644); err != nil {
		t.Fatalf("write rego: %v", err)
	}
	if data != "" {
		if err := os.WriteFile(filepath.Join(dir, "data.json"), []byte(data), 0o644); err != nil {
			t.Fatalf("write data: %v", err)
		}
	}
	b, err := LoadBundle(context.Background(), dir)
	if err != nil {
		t.Fatalf("load bundle: %v", err)
	}
	return b
}

func TestEvaluate_DenyAndWarn(t *testing.T) {
	t.Parallel()

	b := loadTestBundle(t, blockPHPPolicy, "")

	rep, err := Evaluate(context.Background(), b, NewPlanInput(&plugin.StackPlan{StackKey: "php"}))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if rep.Passed {
		t.Fatalf("expected denial, got %+v", rep)
	}
	if rep.DenyCount != 1 || rep.Deny[0].Code != "STACK_BLOCKED" {
		t.Fatalf("deny=%+v", rep.Deny)
	}
	if rep.WarnCount != 1 {
		t.Fatalf("warn=%+v", rep.Warn)
	}

	rep, err = Evaluate(context.Background(), b, NewPlanInput(&plugin.StackPlan{StackKey: "node", OutputDir: "dist"}))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !rep.Passed || rep.DenyCount != 0 || rep.WarnCount != 0 {
		t.Fatalf("report=%+v", rep)
	}
}

func TestEvaluate_BundleDataVisibleToPolicies(t *testing.T) {
	t.Parallel()

	b := loadTestBundle(t, `
package gantry.plan

deny[msg] {
  input.data.blocked[_] == input.stackKey
  msg := "stack blocked by bundle data"
}
`, `{"blocked": ["node"]}`)

	rep, err := Evaluate(context.Background(), b, NewPlanInput(&plugin.StackPlan{StackKey: "node"}))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if rep.Passed || rep.Deny[0].Message != "stack blocked by bundle data" {
		t.Fatalf("report=%+v", rep)
	}
}

func TestLoadBundle_SingleRegoFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plan.rego")
	if err := os.WriteFile(path, []byte(blockPHPPolicy), 0o644); err != nil {
		t.Fatalf("write rego: %v", err)
	}
	b, err := LoadBundle(context.Background(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(b.Modules) != 1 {
		t.Fatalf("modules=%v", b.Modules)
	}
	if _, ok := b.Modules["plan.rego"]; !ok {
		t.Fatalf("modules=%v", b.Modules)
	}
}

func TestLoadBundle_Tarball(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	entries := map[string]string{
		"policies/plan.rego": blockPHPPolicy,
		"data.json":          `{"blocked": []}`,
		"README.md":          "ignored",
	}
	for name, body := range entries {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("tar body: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}

	path := filepath.Join(t.TempDir(), "bundle.tgz")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write tarball: %v", err)
	}

	b, err := LoadBundle(context.Background(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := b.Modules["policies/plan.rego"]; !ok {
		t.Fatalf("modules=%v", b.Modules)
	}
	if b.Data == nil {
		t.Fatalf("data.json not loaded")
	}
}

func TestLoadBundle_EmptyDir(t *testing.T) {
	t.Parallel()

	if _, err := LoadBundle(context.Background(), t.TempDir()); err == nil {
		t.Fatalf("expected error for dir without modules")
	}
}

func TestGate_EnforceDeniesPlan(t *testing.T) {
	t.Parallel()

	gate := NewGate(loadTestBundle(t, blockPHPPolicy, ""), ModeEnforce, logr.Discard())

	err := gate.CheckPlan(context.Background(), &plugin.StackPlan{StackKey: "php", OutputDir: "public"})
	if err == nil {
		t.Fatalf("expected veto")
	}
	if !strings.Contains(err.Error(), "php stacks are not deployable here") {
		t.Fatalf("error=%v", err)
	}

	if err := gate.CheckPlan(context.Background(), &plugin.StackPlan{StackKey: "node", OutputDir: "dist"}); err != nil {
		t.Fatalf("clean plan vetoed: %v", err)
	}
}

func TestGate_WarnModePasses(t *testing.T) {
	t.Parallel()

	gate := NewGate(loadTestBundle(t, blockPHPPolicy, ""), ModeWarn, logr.Discard())
	if err := gate.CheckPlan(context.Background(), &plugin.StackPlan{StackKey: "php"}); err != nil {
		t.Fatalf("warn mode must not veto: %v", err)
	}
}

func TestGate_WritesReport(t *testing.T) {
	t.Parallel()

	gate := NewGate(loadTestBundle(t, blockPHPPolicy, ""), ModeEnforce, logr.Discard())
	gate.ReportPath = DefaultReportPath(t.TempDir())

	_ = gate.CheckPlan(context.Background(), &plugin.StackPlan{StackKey: "php"})

	raw, err := os.ReadFile(gate.ReportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(raw), `"passed": false`) {
		t.Fatalf("report=%s", raw)
	}
}
