// File: internal/services/probe.go
// Brief: Per-directory runtime/framework probing and image-name inference.

package services

import (
	"path/filepath"
	"strings"

	"github.com/distribution/reference"

	"github.com/example/gantry/internal/scan"
)

// dirProbe summarizes the project markers of one service directory.
type dirProbe struct {
	Runtime   Runtime
	Framework string
	Ports     []int
	HasMarker bool
}

// probeDir inspects a service directory for manifests and a Dockerfile.
// Probe order matters: a Laravel app carries both composer.json and
// package.json, so PHP is tested before node.
func probeDir(root, rel string) dirProbe {
	dir := filepath.Join(root, filepath.FromSlash(rel))
	probe := dirProbe{Runtime: RuntimeGeneric}

	if composer, err := scan.ReadComposerManifest(filepath.Join(dir, "composer.json")); err == nil {
		probe.Runtime = RuntimePHP
		probe.HasMarker = true
		if _, ok := composer.Require["laravel/framework"]; ok {
			probe.Framework = "laravel"
		}
	} else if node, nodeErr := scan.ReadNodeManifest(filepath.Join(dir, "package.json")); nodeErr == nil {
		probe.Runtime = RuntimeNode
		probe.HasMarker = true
		probe.Framework = nodeFramework(node)
	} else if pyDeps, pyOK := pythonDeps(dir); pyOK {
		probe.Runtime = RuntimePython
		probe.HasMarker = true
		probe.Framework = pythonFramework(pyDeps)
	} else if _, goDeps, goErr := scan.ReadGoMod(filepath.Join(dir, "go.mod")); goErr == nil {
		probe.Runtime = RuntimeGolang
		probe.HasMarker = true
		if _, ok := goDeps["github.com/gin-gonic/gin"]; ok {
			probe.Framework = "gin"
		}
	} else if maven, mvnErr := scan.ReadMavenPOM(filepath.Join(dir, "pom.xml")); mvnErr == nil {
		probe.Runtime = RuntimeJava
		probe.HasMarker = true
		if _, ok := maven["spring-boot-starter-web"]; ok {
			probe.Framework = "springboot"
		}
	} else if hasCSProj(dir) {
		probe.Runtime = RuntimeDotnet
		probe.HasMarker = true
	}

	if info, err := scan.ParseDockerfile(filepath.Join(dir, "Dockerfile")); err == nil {
		probe.HasMarker = true
		probe.Ports = info.Ports
		if probe.Runtime == RuntimeGeneric && info.BaseImage != "" {
			probe.Runtime = imageRuntime(info.BaseImage)
		}
	}
	return probe
}

func nodeFramework(m *scan.NodeManifest) string {
	has := func(name string) bool {
		if _, ok := m.Dependencies[name]; ok {
			return true
		}
		_, ok := m.DevDependencies[name]
		return ok
	}
	switch {
	case has("next"):
		return "nextjs"
	case has("express"):
		return "express"
	case has("react"):
		return "react-spa"
	case has("vue"):
		return "vue-spa"
	}
	return ""
}

func pythonDeps(dir string) (map[string]string, bool) {
	deps := map[string]string{}
	found := false
	if reqs, err := scan.ReadRequirements(filepath.Join(dir, "requirements.txt")); err == nil {
		found = true
		for name, v := range reqs {
			deps[name] = v
		}
	}
	if project, err := scan.ReadPyProject(filepath.Join(dir, "pyproject.toml")); err == nil {
		found = true
		for name, v := range project {
			deps[name] = v
		}
	}
	return deps, found
}

func pythonFramework(deps map[string]string) string {
	for _, candidate := range []string{"django", "fastapi", "flask"} {
		if _, ok := deps[candidate]; ok {
			return candidate
		}
	}
	return ""
}

func hasCSProj(dir string) bool {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csproj"))
	return err == nil && len(matches) > 0
}

// imageRuntime infers a runtime from a container image reference.
func imageRuntime(image string) Runtime {
	named, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return RuntimeGeneric
	}
	repo := reference.Path(named)
	base := repo
	if i := strings.LastIndexByte(repo, '/'); i >= 0 {
		base = repo[i+1:]
	}
	switch {
	case base == "node" || strings.HasPrefix(base, "node"):
		return RuntimeNode
	case base == "python" || strings.HasPrefix(base, "python"):
		return RuntimePython
	case base == "golang":
		return RuntimeGolang
	case base == "php" || strings.HasPrefix(base, "php"):
		return RuntimePHP
	case base == "openjdk" || base == "eclipse-temurin" || base == "amazoncorretto" || base == "maven" || base == "gradle":
		return RuntimeJava
	case strings.Contains(repo, "dotnet"):
		return RuntimeDotnet
	}
	return RuntimeGeneric
}
