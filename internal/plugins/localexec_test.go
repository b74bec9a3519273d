package plugins

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr"

	"github.com/example/gantry/internal/plugin"
)

func TestLocalBuilder_StagesAndDigests(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, "index.html"), "<html></html>")
	writeFile(t, filepath.Join(repo, "assets", "app.css"), "body {}")
	writeFile(t, filepath.Join(repo, "node_modules", "x", "x.js"), "ignored")

	b := &LocalBuilder{Log: logr.Discard(), WorkDir: t.TempDir()}
	plan := &plugin.StackPlan{StackKey: StackStatic, OutputDir: "."}

	res, err := b.Build(context.Background(), plan, repo)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !res.Success {
		t.Fatalf("result=%+v", res)
	}
	if !strings.HasPrefix(res.ArtifactDigest, "sha256:") {
		t.Fatalf("digest=%q", res.ArtifactDigest)
	}
	if files, _ := res.Outputs["files"].(int); files != 2 {
		t.Fatalf("files=%v, node_modules must not be staged", res.Outputs["files"])
	}

	again, err := b.Build(context.Background(), plan, repo)
	if err != nil || !again.Success {
		t.Fatalf("rebuild: %v %+v", err, again)
	}
	if again.ArtifactDigest != res.ArtifactDigest {
		t.Fatalf("digest changed on identical input: %q vs %q", res.ArtifactDigest, again.ArtifactDigest)
	}
	if again.ArtifactDir == res.ArtifactDir {
		t.Fatalf("artifact dirs must be unique per build")
	}
}

func TestLocalBuilder_CommandFailureIsResultNotError(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, "index.html"), "<html></html>")

	b := &LocalBuilder{Log: logr.Discard(), WorkDir: t.TempDir()}
	plan := &plugin.StackPlan{StackKey: StackStatic, BuildCommands: []string{"false"}, OutputDir: "."}

	res, err := b.Build(context.Background(), plan, repo)
	if err != nil {
		t.Fatalf("command failure must not surface as builder error: %v", err)
	}
	if res.Success {
		t.Fatalf("result=%+v", res)
	}
	if !strings.Contains(res.ErrorMessage, `"false"`) {
		t.Fatalf("message=%q", res.ErrorMessage)
	}
	if res.ElapsedSeconds < 0 {
		t.Fatalf("elapsed=%f", res.ElapsedSeconds)
	}
}

func TestLocalBuilder_PlanEnvReachesCommands(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, "index.html"), "<html></html>")

	b := &LocalBuilder{Log: logr.Discard(), WorkDir: t.TempDir()}
	plan := &plugin.StackPlan{
		StackKey:      StackStatic,
		BuildCommands: []string{`sh -c 'test "$GANTRY_PROBE" = on'`},
		OutputDir:     ".",
		Env:           map[string]string{"GANTRY_PROBE": "on"},
	}

	res, err := b.Build(context.Background(), plan, repo)
	if err != nil || !res.Success {
		t.Fatalf("env not forwarded: err=%v result=%+v", err, res)
	}
}

func TestLocalBuilder_MissingOutputDir(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, "main.go"), "package main")

	b := &LocalBuilder{Log: logr.Discard(), WorkDir: t.TempDir()}
	plan := &plugin.StackPlan{StackKey: StackNode, OutputDir: "dist"}

	res, err := b.Build(context.Background(), plan, repo)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if res.Success || !strings.Contains(res.ErrorMessage, "dist") {
		t.Fatalf("result=%+v", res)
	}
}

func TestLocalBuilder_ValidateBuildRequirements(t *testing.T) {
	b := &LocalBuilder{Log: logr.Discard(), WorkDir: t.TempDir()}
	if !b.ValidateBuildRequirements(t.TempDir()) {
		t.Fatalf("existing directory rejected")
	}
	if b.ValidateBuildRequirements(filepath.Join(t.TempDir(), "missing")) {
		t.Fatalf("missing directory accepted")
	}
}
