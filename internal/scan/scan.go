// File: internal/scan/scan.go
// Brief: Repository signal extraction: file inventory, manifests, Dockerfile, git remote.

package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-logr/logr"
	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
	"golang.org/x/sync/errgroup"
)

// ignoreFileName lists walk exclusions in .dockerignore syntax.
const ignoreFileName = ".gantryignore"

// skipDirs are never descended into regardless of ignore rules. They hold
// generated or vendored trees whose contents would drown the real signals.
var skipDirs = map[string]bool{
	".git": true,
	".hg":  true,
	".svn": true,

	"node_modules":     true,
	"bower_components": true,
	"vendor":           true,
	"__pycache__":      true,
	".venv":            true,
	"venv":             true,

	"dist":   true,
	"build":  true,
	"bin":    true,
	"target": true,
	".next":  true,
	".nuxt":  true,

	".cache":  true,
	".idea":   true,
	".vscode": true,
}

// Signals is the raw evidence extracted from one repository checkout. All
// paths are repository-relative and slash-separated. Classification and
// service decomposition read from it; nothing mutates it after Collect.
type Signals struct {
	Root string

	Files           []string
	Dirs            map[string]bool
	ExtensionCounts map[string]int
	TotalFiles      int

	// Dependencies maps lowercased declared dependency names to version
	// constraints ("" when the manifest does not carry one).
	Dependencies map[string]string
	Manifests    []string
	Scripts      map[string]string

	DockerfilePorts []int
	DockerfileBase  string

	RepositoryURL string
}

// Options tunes a Collect run.
type Options struct {
	Log logr.Logger
}

// Collect walks root and extracts every signal the classifier and the
// service decomposer consume. Individual extractor failures (unreadable
// manifest, missing git metadata) are logged and skipped; only a failure to
// walk the tree itself is returned as an error.
func Collect(ctx context.Context, root string, opts Options) (*Signals, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", root)
	}

	matcher, err := loadIgnoreMatcher(abs)
	if err != nil {
		return nil, err
	}

	sig := &Signals{
		Root:            abs,
		Dirs:            map[string]bool{},
		ExtensionCounts: map[string]int{},
		Dependencies:    map[string]string{},
		Scripts:         map[string]string{},
	}

	log := opts.Log
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			log.V(1).Info("skipping unreadable entry", "path", p, "reason", walkErr.Error())
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, relErr := filepath.Rel(abs, p)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			if matcher != nil {
				if ignored, matchErr := matcher.MatchesOrParentMatches(rel); matchErr == nil && ignored {
					return filepath.SkipDir
				}
			}
			sig.Dirs[rel] = true
			return nil
		}
		if matcher != nil {
			if ignored, matchErr := matcher.MatchesOrParentMatches(rel); matchErr == nil && ignored {
				return nil
			}
		}
		sig.Files = append(sig.Files, rel)
		if ext := strings.ToLower(path.Ext(rel)); ext != "" {
			sig.ExtensionCounts[ext]++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(sig.Files)
	sig.TotalFiles = len(sig.Files)

	// The extractors touch disjoint Signals fields, so they can run
	// concurrently. Each one logs and swallows its own failures.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		collectManifests(sig, log)
		return nil
	})
	g.Go(func() error {
		collectDockerfile(sig, log)
		return nil
	})
	g.Go(func() error {
		if url, urlErr := repositoryURL(gctx, abs); urlErr != nil {
			log.V(1).Info("repository url unavailable", "reason", urlErr.Error())
		} else {
			sig.RepositoryURL = url
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sig, nil
}

func loadIgnoreMatcher(root string) (*patternmatcher.PatternMatcher, error) {
	raw, err := os.ReadFile(filepath.Join(root, ignoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	patterns, err := ignorefile.ReadAll(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ignoreFileName, err)
	}
	return patternmatcher.New(patterns)
}

// HasDependency reports whether any scanned manifest declared the dependency.
// Matching is case-insensitive.
func (s *Signals) HasDependency(name string) bool {
	_, ok := s.Dependencies[strings.ToLower(name)]
	return ok
}

// DependencyVersion returns the declared constraint for a dependency.
func (s *Signals) DependencyVersion(name string) (string, bool) {
	v, ok := s.Dependencies[strings.ToLower(name)]
	return v, ok
}

// ExtensionCount returns how many files carry the extension (".py", ".html").
func (s *Signals) ExtensionCount(ext string) int {
	return s.ExtensionCounts[strings.ToLower(ext)]
}

// ExtensionRatio returns ExtensionCount over the total walked file count.
func (s *Signals) ExtensionRatio(ext string) float64 {
	if s.TotalFiles == 0 {
		return 0
	}
	return float64(s.ExtensionCount(ext)) / float64(s.TotalFiles)
}

// HasFile reports whether the exact repository-relative path exists.
func (s *Signals) HasFile(rel string) bool {
	i := sort.SearchStrings(s.Files, rel)
	return i < len(s.Files) && s.Files[i] == rel
}

// CountFileMatches counts files matching pattern. Patterns containing a
// slash match against the full relative path; bare patterns match against
// base names anywhere in the tree ("*.html" counts every HTML file).
func (s *Signals) CountFileMatches(pattern string) int {
	n := 0
	full := strings.Contains(pattern, "/")
	for _, f := range s.Files {
		candidate := f
		if !full {
			candidate = path.Base(f)
		}
		if ok, err := path.Match(pattern, candidate); err == nil && ok {
			n++
		}
	}
	return n
}

// HasFileMatch reports whether at least one file matches pattern.
func (s *Signals) HasFileMatch(pattern string) bool {
	return s.CountFileMatches(pattern) > 0
}

// HasTopDir reports whether a top-level directory with the given name exists.
func (s *Signals) HasTopDir(name string) bool {
	return s.Dirs[name]
}

// HasDir reports whether the relative directory path exists.
func (s *Signals) HasDir(rel string) bool {
	return s.Dirs[filepath.ToSlash(rel)]
}

// FileContains reports whether the file at the relative path contains needle.
// Missing or unreadable files report false; content probes never abort a run.
func (s *Signals) FileContains(rel, needle string) bool {
	raw, err := os.ReadFile(filepath.Join(s.Root, filepath.FromSlash(rel)))
	if err != nil {
		return false
	}
	return strings.Contains(string(raw), needle)
}

// FilesUnder returns the scanned files below the given directory prefix.
func (s *Signals) FilesUnder(dir string) []string {
	prefix := strings.TrimSuffix(filepath.ToSlash(dir), "/") + "/"
	var out []string
	for _, f := range s.Files {
		if strings.HasPrefix(f, prefix) {
			out = append(out, f)
		}
	}
	return out
}
