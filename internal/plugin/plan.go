package plugin

// Well-known StackPlan config keys. Everything else in Config is
// stack-specific and opaque to the orchestrator.
const (
	ConfigEntryPoint      = "entry_point"
	ConfigRepositoryURL   = "repository_url"
	ConfigMode            = "mode"
	ConfigConfidence      = "confidence"
	ConfigServices        = "services"
	ConfigSharedResources = "shared_resources"
	ConfigRoutes          = "routes"
	ConfigFrontendDir     = "frontend_dir"
	ConfigSynthesized     = "synthesized"
)

// StackPlan describes how one repository builds and deploys for a specific
// stack. A plan is produced once per analysis and treated as immutable after
// detection; only the registry's repository_url injection touches it, before
// the plan is handed to the pipeline.
type StackPlan struct {
	StackKey      string            `json:"stack_key"`
	BuildCommands []string          `json:"build_commands,omitempty"`
	OutputDir     string            `json:"output_dir,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	Config        map[string]any    `json:"config,omitempty"`
}

// SetConfig stores a config value, allocating the map on first use.
func (p *StackPlan) SetConfig(key string, value any) {
	if p.Config == nil {
		p.Config = map[string]any{}
	}
	p.Config[key] = value
}

// ConfigString returns a string config value, or "" when absent or not a
// string.
func (p *StackPlan) ConfigString(key string) string {
	if p.Config == nil {
		return ""
	}
	s, _ := p.Config[key].(string)
	return s
}

// HasConfig reports whether the key is present with a non-empty value.
func (p *StackPlan) HasConfig(key string) bool {
	if p.Config == nil {
		return false
	}
	v, ok := p.Config[key]
	if !ok {
		return false
	}
	if s, isString := v.(string); isString {
		return s != ""
	}
	return true
}
