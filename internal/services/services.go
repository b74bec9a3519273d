package services

import "strings"

// Runtime is the coarse execution environment of one service.
type Runtime string

const (
	RuntimeNode    Runtime = "node"
	RuntimePython  Runtime = "python"
	RuntimeDotnet  Runtime = "dotnet"
	RuntimeJava    Runtime = "java"
	RuntimeGolang  Runtime = "golang"
	RuntimePHP     Runtime = "php"
	RuntimeGeneric Runtime = "generic"
)

// Source identifies which extraction source produced a descriptor.
type Source string

const (
	SourceCompose    Source = "compose"
	SourceKubernetes Source = "k8s"
	SourceFolder     Source = "folder"
)

// ServiceDescriptor is one application component of a multi-service
// repository. After decomposition, Ports holds exactly one canonical port.
type ServiceDescriptor struct {
	ID            string   `json:"id"`
	Path          string   `json:"path"`
	Runtime       Runtime  `json:"runtime"`
	Framework     string   `json:"framework,omitempty"`
	Ports         []int    `json:"ports"`
	HealthPath    string   `json:"health_path,omitempty"`
	Source        Source   `json:"source"`
	Image         string   `json:"image,omitempty"`
	BuildCommands []string `json:"build_commands,omitempty"`
	BlueprintID   string   `json:"blueprint_id,omitempty"`
}

// ResourceCategory buckets an infrastructure service.
type ResourceCategory string

const (
	CategoryDatabase      ResourceCategory = "database"
	CategoryCache         ResourceCategory = "cache"
	CategorySearch        ResourceCategory = "search"
	CategoryMessaging     ResourceCategory = "messaging"
	CategoryObservability ResourceCategory = "observability"
	CategoryAuth          ResourceCategory = "auth"
	CategoryGateway       ResourceCategory = "gateway"
	CategoryAdmin         ResourceCategory = "admin"
)

// SharedResource is an infrastructure dependency carved out of the service
// list. A service is either an app service or a shared resource, never both.
type SharedResource struct {
	Category      ResourceCategory `json:"category"`
	Name          string           `json:"name"`
	ManagedTarget string           `json:"managed_target,omitempty"`
}

// RoutingRule routes a path pattern to one app service. Higher priority
// rules are evaluated first.
type RoutingRule struct {
	ServiceID   string `json:"service_id"`
	PathPattern string `json:"path_pattern"`
	Priority    int    `json:"priority"`
}

// Decomposition is the complete result of analyzing a multi-service
// repository: deduplicated app services, shared infrastructure, and the
// synthesized routing table.
type Decomposition struct {
	Services        []ServiceDescriptor `json:"services"`
	SharedResources []SharedResource    `json:"shared_resources,omitempty"`
	Routes          []RoutingRule       `json:"routes,omitempty"`
}

// normalizeID lowercases a service name and squashes separators to hyphens
// so ids compare cleanly across extraction sources.
func normalizeID(name string) string {
	cleaned := strings.ToLower(name)
	cleaned = strings.ReplaceAll(cleaned, " ", "-")
	cleaned = strings.ReplaceAll(cleaned, "_", "-")
	cleaned = strings.Trim(cleaned, "-.")
	if cleaned == "" {
		cleaned = "service"
	}
	return cleaned
}
