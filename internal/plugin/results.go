package plugin

// BuildResult is the outcome of the build phase. ArtifactDir points at the
// staged output; Outputs carries anything else the builder wants to hand to
// the provisioner.
type BuildResult struct {
	Success        bool           `json:"success"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	ElapsedSeconds float64        `json:"elapsed_seconds"`
	ArtifactDir    string         `json:"artifact_dir,omitempty"`
	ArtifactDigest string         `json:"artifact_digest,omitempty"`
	Outputs        map[string]any `json:"outputs,omitempty"`
}

// ProvisionResult is the outcome of the provision phase. Outputs carries
// infrastructure identifiers (buckets, distributions, service ids) keyed by
// provisioner-specific names.
type ProvisionResult struct {
	Success        bool           `json:"success"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	ElapsedSeconds float64        `json:"elapsed_seconds"`
	Outputs        map[string]any `json:"outputs,omitempty"`
}

// DeployResult is the outcome of the deploy phase and, by extension, of a
// whole pipeline run.
type DeployResult struct {
	Success        bool           `json:"success"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	ElapsedSeconds float64        `json:"elapsed_seconds"`
	URL            string         `json:"url,omitempty"`
	Logs           []string       `json:"logs,omitempty"`
	Outputs        map[string]any `json:"outputs,omitempty"`
}
