// File: internal/plugins/localexec.go
// Brief: Local command-execution builder: runs plan build commands, stages
// the output directory, digests the artifact tree.

package plugins

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-logr/logr"
	shellwords "github.com/mattn/go-shellwords"
	"github.com/opencontainers/go-digest"

	"github.com/example/gantry/internal/plugin"
)

// stageSkipDirs are never copied into an artifact.
var stageSkipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// LocalBuilder executes a plan's build commands in the repository and stages
// the declared output directory under WorkDir. Command failures are build
// failures, not builder errors: the result carries success=false and the
// command's message, and the error return stays nil.
type LocalBuilder struct {
	Log     logr.Logger
	WorkDir string
}

// ValidateBuildRequirements reports whether the repository path is usable.
func (b *LocalBuilder) ValidateBuildRequirements(repoPath string) bool {
	info, err := os.Stat(repoPath)
	return err == nil && info.IsDir()
}

// Build runs each command in order, then stages plan.OutputDir into a fresh
// artifact directory and digests it.
func (b *LocalBuilder) Build(ctx context.Context, plan *plugin.StackPlan, repoPath string) (*plugin.BuildResult, error) {
	start := time.Now()
	res := &plugin.BuildResult{}

	for _, command := range plan.BuildCommands {
		output, err := b.runCommand(ctx, command, repoPath, plan.Env)
		if err != nil {
			res.ErrorMessage = commandFailure(command, err, output)
			res.ElapsedSeconds = time.Since(start).Seconds()
			return res, nil
		}
		b.Log.V(1).Info("build command done", "command", command)
	}

	artifactDir, dgst, files, err := b.stage(plan, repoPath)
	if err != nil {
		res.ErrorMessage = err.Error()
		res.ElapsedSeconds = time.Since(start).Seconds()
		return res, nil
	}

	res.Success = true
	res.ArtifactDir = artifactDir
	res.ArtifactDigest = dgst.String()
	res.ElapsedSeconds = time.Since(start).Seconds()
	res.Outputs = map[string]any{"files": files}
	return res, nil
}

func (b *LocalBuilder) runCommand(ctx context.Context, command, repoPath string, env map[string]string) (string, error) {
	argv, err := shellwords.Parse(command)
	if err != nil {
		return "", fmt.Errorf("parse command: %w", err)
	}
	if len(argv) == 0 {
		return "", fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = repoPath
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// commandFailure folds the command, the process error, and the tail of its
// output into one message.
func commandFailure(command string, err error, output string) string {
	msg := fmt.Sprintf("build command %q: %v", command, err)
	if tail := outputTail(output, 20); tail != "" {
		msg += "\n" + tail
	}
	return msg
}

func outputTail(output string, maxLines int) string {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return ""
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, "\n")
}

// stage copies the plan's output directory into a unique artifact directory
// and returns its digest and file count.
func (b *LocalBuilder) stage(plan *plugin.StackPlan, repoPath string) (string, digest.Digest, int, error) {
	outputDir := plan.OutputDir
	if outputDir == "" {
		outputDir = "."
	}
	srcDir := filepath.Join(repoPath, filepath.FromSlash(outputDir))
	if info, err := os.Stat(srcDir); err != nil || !info.IsDir() {
		return "", "", 0, fmt.Errorf("build output directory %q not found", outputDir)
	}

	artifactDir := filepath.Join(b.WorkDir, "artifacts",
		fmt.Sprintf("%s-%d", plan.StackKey, time.Now().UnixNano()))
	if err := copyTree(srcDir, artifactDir); err != nil {
		return "", "", 0, fmt.Errorf("stage artifact: %w", err)
	}
	dgst, files, err := digestTree(artifactDir)
	if err != nil {
		return "", "", 0, fmt.Errorf("digest artifact: %w", err)
	}
	return artifactDir, dgst, files, nil
}

// copyTree copies regular files from src into dst, skipping VCS and
// dependency directories. Symlinks are not followed.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(src, path)
		if relErr != nil {
			return relErr
		}
		if d.IsDir() {
			if stageSkipDirs[d.Name()] && rel != "." {
				return fs.SkipDir
			}
			return os.MkdirAll(filepath.Join(dst, rel), 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, filepath.Join(dst, rel))
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// digestTree computes a stable digest over the artifact tree: each file's
// content digest keyed by its slash path, folded into one manifest digest.
// Renaming, adding, or editing any file changes the result.
func digestTree(root string) (digest.Digest, int, error) {
	var entries []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		entries = append(entries, filepath.ToSlash(rel)+":"+digest.FromBytes(raw).String())
		return nil
	})
	if err != nil {
		return "", 0, err
	}
	sort.Strings(entries)
	return digest.FromString(strings.Join(entries, "\n")), len(entries), nil
}
