package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

var (
	testCfgOnce sync.Once
	testCfgDir  string
	testCfgErr  error
)

// testConfigFile writes configYAML to a file that outlives the test. Every
// root command registers a cobra initializer that re-reads its config file on
// each later Execute, so a config under t.TempDir() would be read again after
// cleanup deleted it.
func testConfigFile(t *testing.T, configYAML string) string {
	t.Helper()
	testCfgOnce.Do(func() {
		testCfgDir, testCfgErr = os.MkdirTemp("", "gantry-test")
	})
	if testCfgErr != nil {
		t.Fatalf("test config dir: %v", testCfgErr)
	}
	f, err := os.CreateTemp(testCfgDir, "config-*.yaml")
	if err != nil {
		t.Fatalf("create config: %v", err)
	}
	if _, err := f.WriteString(configYAML); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close config: %v", err)
	}
	return f.Name()
}

// runGantry executes the root command against an isolated config file and
// returns everything written to stdout.
func runGantry(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("GANTRY_CONFIG", testConfigFile(t, "{}\n"))

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, path string, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestRootCommandRejectsUnknownSubcommand(t *testing.T) {
	if _, err := runGantry(t, "launch"); err == nil {
		t.Fatal("expected error for unknown subcommand")
	}
}
