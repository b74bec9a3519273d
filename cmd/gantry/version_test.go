package main

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestVersionCommandPrintsClientVersion(t *testing.T) {
	out, err := runGantry(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "Client Version:") {
		t.Fatalf("expected client version line, got %q", out)
	}
	if !strings.Contains(out, "GoVersion:") {
		t.Fatalf("expected go version line, got %q", out)
	}
}

func TestVersionCommandShortOutput(t *testing.T) {
	out, err := runGantry(t, "version", "--short")
	if err != nil {
		t.Fatalf("version --short: %v", err)
	}
	if strings.Contains(out, "Client Version:") {
		t.Fatalf("short output should omit labels, got %q", out)
	}
	if strings.TrimSpace(out) == "" {
		t.Fatal("short output should carry the version string")
	}
}

func TestVersionCommandJSONOutput(t *testing.T) {
	out, err := runGantry(t, "version", "--json")
	if err != nil {
		t.Fatalf("version --json: %v", err)
	}
	var info struct {
		Version   string `json:"version"`
		GoVersion string `json:"goVersion"`
	}
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode version json: %v", err)
	}
	if info.Version == "" || info.GoVersion == "" {
		t.Fatalf("expected populated version info, got %+v", info)
	}
}
