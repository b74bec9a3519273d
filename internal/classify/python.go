package classify

import "github.com/example/gantry/internal/scan"

// Python-dominance thresholds. The values are tuned heuristics carried over
// from observed behavior across real repositories; treat them as knobs, not
// invariants.
const (
	PythonDominanceRatio     = 0.30
	PythonDominanceFileCount = 5
)

// pythonMarkerFiles at the repository root mark a Python project even when
// the file counts stay below the thresholds.
var pythonMarkerFiles = []string{
	"requirements.txt",
	"setup.py",
	"pyproject.toml",
	"Pipfile",
	"manage.py",
	"app.py",
}

// PrimarilyPython reports whether the repository should be treated as a
// Python project. Detectors for asset-oriented stacks (static HTML in
// particular) must decline to match when this holds, no matter how much
// HTML the tree contains.
func PrimarilyPython(sig *scan.Signals) bool {
	if sig.ExtensionRatio(".py") > PythonDominanceRatio {
		return true
	}
	if sig.ExtensionCount(".py") > PythonDominanceFileCount {
		return true
	}
	for _, marker := range pythonMarkerFiles {
		if sig.HasFile(marker) {
			return true
		}
	}
	return false
}
