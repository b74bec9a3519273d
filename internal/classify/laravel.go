package classify

import (
	"path"
	"strings"

	"github.com/example/gantry/internal/scan"
)

// LaravelMode is the deployment shape of a confirmed Laravel repository.
type LaravelMode string

const (
	// LaravelModeSPASplit: a standalone frontend lives next to the Laravel
	// app and deploys separately from the API.
	LaravelModeSPASplit LaravelMode = "spa_split"
	// LaravelModeBladeSSR: views render server-side, via Blade or an
	// Inertia bridge, so app and frontend deploy as one unit.
	LaravelModeBladeSSR LaravelMode = "blade_or_inertia_ssr"
	// LaravelModeAPIOnly: no frontend signals at all.
	LaravelModeAPIOnly LaravelMode = "api_only"
)

// spaDirs are the conventional homes of a split frontend.
var spaDirs = []string{"frontend", "client"}

// bridgeDeps bind a client framework to the Laravel request cycle.
var bridgeDeps = []string{
	"inertiajs/inertia-laravel",
	"livewire/livewire",
	"@inertiajs/react",
	"@inertiajs/vue3",
	"@inertiajs/svelte",
}

// buildToolConfigs at the repository root indicate a compiled frontend.
var buildToolConfigs = []string{"vite.config.js", "vite.config.ts", "webpack.mix.js"}

var componentExtensions = map[string]bool{
	".vue":    true,
	".jsx":    true,
	".tsx":    true,
	".svelte": true,
}

// ClassifyLaravelMode resolves the sub-mode of a repository already
// confirmed as Laravel. Rules run in strict order and the first hit wins,
// so exactly one mode comes back for any input.
func ClassifyLaravelMode(sig *scan.Signals) LaravelMode {
	if dir, ok := splitFrontendDir(sig); ok && dir != "" {
		return LaravelModeSPASplit
	}
	if hasServerRenderedFrontend(sig) {
		return LaravelModeBladeSSR
	}
	return LaravelModeAPIOnly
}

// SplitFrontendDir returns the directory holding the standalone frontend
// when the repository classifies as spa_split.
func SplitFrontendDir(sig *scan.Signals) (string, bool) {
	return splitFrontendDir(sig)
}

func splitFrontendDir(sig *scan.Signals) (string, bool) {
	for _, dir := range spaDirs {
		if !sig.HasTopDir(dir) {
			continue
		}
		if !sig.HasFile(dir + "/package.json") {
			continue
		}
		if hasComponentFiles(sig.FilesUnder(dir)) {
			return dir, true
		}
	}
	return "", false
}

func hasServerRenderedFrontend(sig *scan.Signals) bool {
	for _, dep := range bridgeDeps {
		if sig.HasDependency(dep) {
			return true
		}
	}
	if sig.HasFile("app/Http/Middleware/HandleInertiaRequests.php") {
		return true
	}
	if sig.FileContains("app/Http/Kernel.php", "HandleInertiaRequests") {
		return true
	}
	for _, cfg := range buildToolConfigs {
		if sig.HasFile(cfg) {
			return true
		}
	}
	return hasComponentFiles(sig.FilesUnder("resources/js"))
}

func hasComponentFiles(files []string) bool {
	for _, f := range files {
		if componentExtensions[strings.ToLower(path.Ext(f))] {
			return true
		}
	}
	return false
}
