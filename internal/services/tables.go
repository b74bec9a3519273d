package services

import "strings"

// runtimeDefaultPorts is the last resort of port resolution.
var runtimeDefaultPorts = map[Runtime]int{
	RuntimeNode:    3000,
	RuntimePython:  8000,
	RuntimeDotnet:  5000,
	RuntimeJava:    8080,
	RuntimeGolang:  8080,
	RuntimePHP:     8080,
	RuntimeGeneric: 8080,
}

// stackRef keys the {runtime, framework} lookup tables. Framework "" is the
// per-runtime fallback row.
type stackRef struct {
	Runtime   Runtime
	Framework string
}

var buildCommandTable = map[stackRef][]string{
	{RuntimeNode, "nextjs"}:      {"npm ci", "npm run build"},
	{RuntimeNode, "react-spa"}:   {"npm ci", "npm run build"},
	{RuntimeNode, "vue-spa"}:     {"npm ci", "npm run build"},
	{RuntimeNode, "express"}:     {"npm ci"},
	{RuntimeNode, ""}:            {"npm ci"},
	{RuntimePython, "django"}:    {"pip install -r requirements.txt", "python manage.py collectstatic --noinput"},
	{RuntimePython, "flask"}:     {"pip install -r requirements.txt"},
	{RuntimePython, "fastapi"}:   {"pip install -r requirements.txt"},
	{RuntimePython, ""}:          {"pip install -r requirements.txt"},
	{RuntimeGolang, "gin"}:       {"go build ./..."},
	{RuntimeGolang, ""}:          {"go build ./..."},
	{RuntimeJava, "springboot"}:  {"./mvnw package -DskipTests"},
	{RuntimeJava, ""}:            {"mvn package -DskipTests"},
	{RuntimeDotnet, ""}:          {"dotnet publish -c Release -o out"},
	{RuntimePHP, "laravel"}:      {"composer install --no-dev --optimize-autoloader", "php artisan config:cache"},
	{RuntimePHP, ""}:             {"composer install --no-dev"},
}

// BuildCommandsFor resolves the build command sequence for a service shape,
// falling back from {runtime, framework} to the bare runtime row.
func BuildCommandsFor(runtime Runtime, framework string) []string {
	if cmds, ok := buildCommandTable[stackRef{runtime, framework}]; ok {
		return append([]string(nil), cmds...)
	}
	if cmds, ok := buildCommandTable[stackRef{runtime, ""}]; ok {
		return append([]string(nil), cmds...)
	}
	return nil
}

// DefaultHealthPath is assigned when no framework-specific path is known.
const DefaultHealthPath = "/healthz"

var healthPathTable = map[string]string{
	"springboot": "/actuator/health",
	"rails":      "/up",
	"laravel":    "/up",
}

// HealthPathFor returns the health-check path for a framework.
func HealthPathFor(framework string) string {
	if p, ok := healthPathTable[framework]; ok {
		return p
	}
	return DefaultHealthPath
}

var blueprintTable = map[stackRef]string{
	{RuntimeNode, "nextjs"}:     "node-nextjs",
	{RuntimeNode, "express"}:    "node-express",
	{RuntimeNode, "react-spa"}:  "node-spa",
	{RuntimeNode, "vue-spa"}:    "node-spa",
	{RuntimePython, "django"}:   "python-django",
	{RuntimePython, "flask"}:    "python-flask",
	{RuntimePython, "fastapi"}:  "python-fastapi",
	{RuntimeJava, "springboot"}: "java-springboot",
	{RuntimePHP, "laravel"}:     "php-laravel",
	{RuntimeGolang, "gin"}:      "golang-gin",
}

// BlueprintFor maps a service shape to its deployment blueprint id.
func BlueprintFor(runtime Runtime, framework string) string {
	if id, ok := blueprintTable[stackRef{runtime, framework}]; ok {
		return id
	}
	return string(runtime) + "-service"
}

// resourceCategories is evaluated in order; the first category with a
// matching keyword claims the service. Order encodes precedence: a service
// named "postgres-cache" is a database, not a cache.
var resourceCategories = []struct {
	Category ResourceCategory
	Keywords []string
}{
	{CategoryDatabase, []string{"postgres", "postgresql", "mysql", "mariadb", "mongodb", "mongo", "cockroach", "sqlserver", "database", "db"}},
	{CategoryCache, []string{"redis", "valkey", "memcached", "memcache", "cache"}},
	{CategorySearch, []string{"elasticsearch", "elastic", "opensearch", "solr", "meilisearch", "typesense", "search"}},
	{CategoryMessaging, []string{"kafka", "rabbitmq", "rabbit", "nats", "mqtt", "amqp", "pubsub", "queue"}},
	{CategoryObservability, []string{"prometheus", "grafana", "jaeger", "zipkin", "loki", "tempo", "otel", "telemetry", "metrics"}},
	{CategoryAuth, []string{"keycloak", "oauth", "auth", "identity", "sso"}},
	{CategoryGateway, []string{"traefik", "envoy", "haproxy", "nginx", "gateway", "proxy", "ingress"}},
	{CategoryAdmin, []string{"adminer", "pgadmin", "phpmyadmin", "admin", "dashboard"}},
}

// classifyResource tests a normalized service id against the ordered keyword
// sets. It returns the matched category and keyword, or ok=false for app
// services.
func classifyResource(id string) (ResourceCategory, string, bool) {
	for _, entry := range resourceCategories {
		for _, kw := range entry.Keywords {
			if strings.Contains(id, kw) {
				return entry.Category, kw, true
			}
		}
	}
	return "", "", false
}

// managedTargetTable maps a matched infrastructure keyword to the managed
// deployment target that replaces the self-hosted container. Keywords with
// no entry stay self-hosted.
var managedTargetTable = map[string]string{
	"postgres":      "managed-postgres",
	"postgresql":    "managed-postgres",
	"mysql":         "managed-mysql",
	"mariadb":       "managed-mysql",
	"mongodb":       "managed-mongodb",
	"mongo":         "managed-mongodb",
	"redis":         "managed-redis",
	"valkey":        "managed-redis",
	"memcached":     "managed-memcached",
	"memcache":      "managed-memcached",
	"elasticsearch": "managed-opensearch",
	"elastic":       "managed-opensearch",
	"opensearch":    "managed-opensearch",
	"kafka":         "managed-kafka",
	"rabbitmq":      "managed-rabbitmq",
	"rabbit":        "managed-rabbitmq",
}

// Routing priorities. API rules are evaluated before the frontend catch-all.
const (
	apiRoutePriority      = 100
	frontendRoutePriority = 1
)

// frontendNames are id heuristics that mark a service as the front-end.
var frontendNames = map[string]bool{
	"web":      true,
	"frontend": true,
	"ui":       true,
	"client":   true,
	"www":      true,
	"site":     true,
}

// frontendFrameworks mark UI-oriented frameworks.
var frontendFrameworks = map[string]bool{
	"nextjs":    true,
	"react-spa": true,
	"vue-spa":   true,
	"static":    true,
}
