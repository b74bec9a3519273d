// File: internal/scan/manifests.go
// Brief: Dependency extraction from the manifest formats gantry understands.

package scan

import (
	"bufio"
	"encoding/json"
	"encoding/xml"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-logr/logr"
	"github.com/pelletier/go-toml/v2"
)

// NodeManifest is the subset of package.json gantry reads.
type NodeManifest struct {
	Name            string            `json:"name"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	Scripts         map[string]string `json:"scripts"`
}

// ComposerManifest is the subset of composer.json gantry reads.
type ComposerManifest struct {
	Require    map[string]string `json:"require"`
	RequireDev map[string]string `json:"require-dev"`
}

// ReadNodeManifest parses a package.json file.
func ReadNodeManifest(path string) (*NodeManifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m NodeManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ReadComposerManifest parses a composer.json file.
func ReadComposerManifest(path string) (*ComposerManifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m ComposerManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// requirementNameRe strips version constraints, extras, and environment
// markers from a requirements.txt line, leaving the bare package name.
var requirementNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*`)

// ReadRequirements parses a pip requirements.txt file into name->constraint.
func ReadRequirements(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	deps := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		name := requirementNameRe.FindString(line)
		if name == "" {
			continue
		}
		deps[normalizePythonName(name)] = strings.TrimSpace(strings.TrimPrefix(line, name))
	}
	return deps, scanner.Err()
}

func normalizePythonName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", "-"))
}

type pyProjectFile struct {
	Project struct {
		Dependencies []string `toml:"dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies map[string]any `toml:"dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// ReadPyProject parses pyproject.toml dependencies (PEP 621 and poetry).
func ReadPyProject(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file pyProjectFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return nil, err
	}
	deps := map[string]string{}
	for _, entry := range file.Project.Dependencies {
		name := requirementNameRe.FindString(strings.TrimSpace(entry))
		if name == "" {
			continue
		}
		deps[normalizePythonName(name)] = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(entry), name))
	}
	for name, constraint := range file.Tool.Poetry.Dependencies {
		if strings.EqualFold(name, "python") {
			continue
		}
		deps[normalizePythonName(name)] = stringifyConstraint(constraint)
	}
	return deps, nil
}

func stringifyConstraint(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// ReadGoMod extracts the module path and required module paths from go.mod.
func ReadGoMod(path string) (module string, deps map[string]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	deps = map[string]string{}
	inBlock := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "module "):
			module = strings.TrimSpace(strings.TrimPrefix(line, "module "))
		case strings.HasPrefix(line, "require ("):
			inBlock = true
		case inBlock && line == ")":
			inBlock = false
		case inBlock || strings.HasPrefix(line, "require "):
			entry := strings.TrimSpace(strings.TrimPrefix(line, "require "))
			fields := strings.Fields(entry)
			if len(fields) >= 2 && !strings.HasPrefix(fields[0], "//") {
				deps[strings.ToLower(fields[0])] = fields[1]
			}
		}
	}
	return module, deps, scanner.Err()
}

var gemfileGemRe = regexp.MustCompile(`^\s*gem\s+['"]([^'"]+)['"]`)

// ReadGemfile extracts gem names from a Gemfile.
func ReadGemfile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	deps := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if m := gemfileGemRe.FindStringSubmatch(scanner.Text()); m != nil {
			deps[strings.ToLower(m[1])] = ""
		}
	}
	return deps, scanner.Err()
}

type mavenPOM struct {
	Dependencies struct {
		Dependency []struct {
			GroupID    string `xml:"groupId"`
			ArtifactID string `xml:"artifactId"`
			Version    string `xml:"version"`
		} `xml:"dependency"`
	} `xml:"dependencies"`
}

// ReadMavenPOM extracts dependency coordinates from pom.xml. Each dependency
// is recorded twice: as groupId:artifactId and as the bare artifactId.
func ReadMavenPOM(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pom mavenPOM
	if err := xml.Unmarshal(raw, &pom); err != nil {
		return nil, err
	}
	deps := map[string]string{}
	for _, d := range pom.Dependencies.Dependency {
		if d.ArtifactID == "" {
			continue
		}
		deps[strings.ToLower(d.ArtifactID)] = d.Version
		if d.GroupID != "" {
			deps[strings.ToLower(d.GroupID+":"+d.ArtifactID)] = d.Version
		}
	}
	return deps, nil
}

type csharpProject struct {
	ItemGroups []struct {
		PackageReferences []struct {
			Include string `xml:"Include,attr"`
			Version string `xml:"Version,attr"`
		} `xml:"PackageReference"`
	} `xml:"ItemGroup"`
}

// ReadCSProj extracts PackageReference entries from a .csproj file.
func ReadCSProj(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var proj csharpProject
	if err := xml.Unmarshal(raw, &proj); err != nil {
		return nil, err
	}
	deps := map[string]string{}
	for _, group := range proj.ItemGroups {
		for _, ref := range group.PackageReferences {
			if ref.Include != "" {
				deps[strings.ToLower(ref.Include)] = ref.Version
			}
		}
	}
	return deps, nil
}

// collectManifests parses every recognized manifest at the repository root
// and merges the declared dependencies into sig. Parse failures are logged
// and skipped so a malformed manifest never aborts analysis.
func collectManifests(sig *Signals, log logr.Logger) {
	merge := func(file string, deps map[string]string, err error) {
		if err != nil {
			if !os.IsNotExist(err) {
				log.V(1).Info("manifest unreadable", "file", file, "reason", err.Error())
			}
			return
		}
		sig.Manifests = append(sig.Manifests, file)
		for name, constraint := range deps {
			if _, exists := sig.Dependencies[name]; !exists {
				sig.Dependencies[name] = constraint
			}
		}
	}

	if node, err := ReadNodeManifest(filepath.Join(sig.Root, "package.json")); err != nil {
		merge("package.json", nil, err)
	} else {
		deps := map[string]string{}
		for name, v := range node.Dependencies {
			deps[strings.ToLower(name)] = v
		}
		for name, v := range node.DevDependencies {
			deps[strings.ToLower(name)] = v
		}
		for name, v := range node.Scripts {
			sig.Scripts[name] = v
		}
		merge("package.json", deps, nil)
	}

	if composer, err := ReadComposerManifest(filepath.Join(sig.Root, "composer.json")); err != nil {
		merge("composer.json", nil, err)
	} else {
		deps := map[string]string{}
		for name, v := range composer.Require {
			deps[strings.ToLower(name)] = v
		}
		for name, v := range composer.RequireDev {
			deps[strings.ToLower(name)] = v
		}
		merge("composer.json", deps, nil)
	}

	reqs, err := ReadRequirements(filepath.Join(sig.Root, "requirements.txt"))
	merge("requirements.txt", reqs, err)

	pyproject, err := ReadPyProject(filepath.Join(sig.Root, "pyproject.toml"))
	merge("pyproject.toml", pyproject, err)

	if _, goDeps, goErr := ReadGoMod(filepath.Join(sig.Root, "go.mod")); goErr != nil {
		merge("go.mod", nil, goErr)
	} else {
		merge("go.mod", goDeps, nil)
	}

	gems, err := ReadGemfile(filepath.Join(sig.Root, "Gemfile"))
	merge("Gemfile", gems, err)

	maven, err := ReadMavenPOM(filepath.Join(sig.Root, "pom.xml"))
	merge("pom.xml", maven, err)

	matches, _ := filepath.Glob(filepath.Join(sig.Root, "*.csproj"))
	for _, match := range matches {
		refs, csErr := ReadCSProj(match)
		merge(filepath.Base(match), refs, csErr)
	}
}
