package services

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-logr/logr"

	"github.com/example/gantry/internal/scan"
)

func writeFile(t *testing.T, path string, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func collectSignals(t *testing.T, root string) *scan.Signals {
	t.Helper()
	sig, err := scan.Collect(context.Background(), root, scan.Options{Log: logr.Discard()})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	return sig
}

func decompose(t *testing.T, root string) *Decomposition {
	t.Helper()
	return Decompose(root, collectSignals(t, root), Options{Log: logr.Discard()})
}

func TestDecompose_ComposeWebPostgresRedis(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "docker-compose.yml"), `
services:
  web:
    build: ./web
    ports:
      - "3000:3000"
  postgres:
    image: postgres:16
  redis:
    image: redis:7
`)
	writeFile(t, filepath.Join(root, "web", "package.json"), `{"dependencies": {"express": "^4"}}`)

	dec := decompose(t, root)

	if len(dec.Services) != 1 {
		t.Fatalf("services=%d, want 1 app service: %+v", len(dec.Services), dec.Services)
	}
	web := dec.Services[0]
	if web.ID != "web" || web.Ports[0] != 3000 {
		t.Fatalf("web=%+v", web)
	}
	if web.Runtime != RuntimeNode || web.Framework != "express" {
		t.Fatalf("web runtime/framework=%s/%s", web.Runtime, web.Framework)
	}

	if len(dec.SharedResources) != 2 {
		t.Fatalf("shared=%+v", dec.SharedResources)
	}
	byName := map[string]SharedResource{}
	for _, r := range dec.SharedResources {
		byName[r.Name] = r
	}
	if byName["postgres"].Category != CategoryDatabase || byName["postgres"].ManagedTarget != "managed-postgres" {
		t.Fatalf("postgres=%+v", byName["postgres"])
	}
	if byName["redis"].Category != CategoryCache || byName["redis"].ManagedTarget != "managed-redis" {
		t.Fatalf("redis=%+v", byName["redis"])
	}

	catchAlls := 0
	for _, route := range dec.Routes {
		if route.PathPattern == "/*" {
			catchAlls++
			if route.ServiceID != "web" || route.Priority != 1 {
				t.Fatalf("catch-all=%+v", route)
			}
		}
	}
	if catchAlls != 1 {
		t.Fatalf("routes=%+v, want exactly one catch-all", dec.Routes)
	}
}

func TestDecompose_ComposePortBeatsDockerfileExpose(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "docker-compose.yml"), `
services:
  api:
    build: ./api
    ports:
      - "3000:3000"
`)
	writeFile(t, filepath.Join(root, "api", "Dockerfile"), "FROM node:20\nEXPOSE 8080\n")
	writeFile(t, filepath.Join(root, "api", "package.json"), `{"dependencies": {"express": "^4"}}`)

	dec := decompose(t, root)
	if len(dec.Services) != 1 {
		t.Fatalf("services=%+v", dec.Services)
	}
	if got := dec.Services[0].Ports; len(got) != 1 || got[0] != 3000 {
		t.Fatalf("ports=%v, want [3000] (compose wins over EXPOSE)", got)
	}
}

func TestDecompose_DockerfileExposeThenRuntimeDefault(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "docker-compose.yml"), `
services:
  worker:
    build: ./worker
  pinger:
    build: ./pinger
`)
	writeFile(t, filepath.Join(root, "worker", "Dockerfile"), "FROM python:3.12\nEXPOSE 9000\n")
	writeFile(t, filepath.Join(root, "worker", "requirements.txt"), "celery==5.3\n")
	writeFile(t, filepath.Join(root, "pinger", "package.json"), `{"dependencies": {"axios": "^1"}}`)

	dec := decompose(t, root)
	ports := map[string]int{}
	for _, sd := range dec.Services {
		if len(sd.Ports) != 1 {
			t.Fatalf("%s ports=%v, want exactly one", sd.ID, sd.Ports)
		}
		ports[sd.ID] = sd.Ports[0]
	}
	if ports["worker"] != 9000 {
		t.Fatalf("worker port=%d, want EXPOSE 9000", ports["worker"])
	}
	if ports["pinger"] != 3000 {
		t.Fatalf("pinger port=%d, want node default 3000", ports["pinger"])
	}
}

func TestDecompose_Idempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "docker-compose.yml"), `
services:
  web:
    build: ./services/web
  postgres:
    image: postgres:16
`)
	writeFile(t, filepath.Join(root, "services", "web", "package.json"), `{"dependencies": {"react": "^18"}}`)
	writeFile(t, filepath.Join(root, "services", "api", "go.mod"), "module example.com/api\n\nrequire github.com/gin-gonic/gin v1.10.0\n")

	first := decompose(t, root)
	second := decompose(t, root)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("decomposition not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestDecompose_DedupAcrossSources(t *testing.T) {
	root := t.TempDir()
	// Compose declares the service with a build context under services/;
	// the folder scan would find the same directory again.
	writeFile(t, filepath.Join(root, "docker-compose.yml"), `
services:
  api:
    build: ./services/api
    image: acme/api:dev
`)
	writeFile(t, filepath.Join(root, "services", "api", "go.mod"), "module example.com/api\n")
	writeFile(t, filepath.Join(root, "services", "api", "Dockerfile"), "FROM golang:1.22\nEXPOSE 8090\n")

	dec := decompose(t, root)
	if len(dec.Services) != 1 {
		t.Fatalf("services=%+v, want single deduped record", dec.Services)
	}
	api := dec.Services[0]
	if api.Source != SourceCompose {
		t.Fatalf("source=%s, want compose (first occurrence wins)", api.Source)
	}
	if api.Ports[0] != 8090 {
		t.Fatalf("port=%d, want EXPOSE fill-in 8090", api.Ports[0])
	}
	if api.Image != "acme/api:dev" {
		t.Fatalf("image=%q", api.Image)
	}
}

func TestDecompose_FolderConventions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "services", "api", "go.mod"), "module example.com/api\n\nrequire github.com/gin-gonic/gin v1.10.0\n")
	writeFile(t, filepath.Join(root, "services", "common", "README.md"), "shared helpers, not a service")
	writeFile(t, filepath.Join(root, "apps", "storefront", "package.json"), `{"dependencies": {"vue": "^3"}}`)

	dec := decompose(t, root)
	if len(dec.Services) != 2 {
		t.Fatalf("services=%+v", dec.Services)
	}
	byID := map[string]ServiceDescriptor{}
	for _, sd := range dec.Services {
		byID[sd.ID] = sd
	}
	api, ok := byID["api"]
	if !ok || api.Runtime != RuntimeGolang || api.Framework != "gin" || api.Path != "services/api" {
		t.Fatalf("api=%+v", api)
	}
	ui, ok := byID["storefront"]
	if !ok || ui.Runtime != RuntimeNode || ui.Framework != "vue-spa" {
		t.Fatalf("storefront=%+v", ui)
	}
	if _, leaked := byID["common"]; leaked {
		t.Fatalf("markerless directory became a service")
	}
}

func TestDecompose_EnrichmentTables(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "services", "shop", "composer.json"), `{"require": {"laravel/framework": "^11.0"}}`)

	dec := decompose(t, root)
	if len(dec.Services) != 1 {
		t.Fatalf("services=%+v", dec.Services)
	}
	shop := dec.Services[0]
	if shop.HealthPath != "/up" {
		t.Fatalf("health=%q, want laravel /up", shop.HealthPath)
	}
	if shop.BlueprintID != "php-laravel" {
		t.Fatalf("blueprint=%q", shop.BlueprintID)
	}
	if len(shop.BuildCommands) == 0 || shop.BuildCommands[0] != "composer install --no-dev --optimize-autoloader" {
		t.Fatalf("build commands=%v", shop.BuildCommands)
	}
}

func TestDecompose_RoutingWithoutFrontend(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "services", "billing", "go.mod"), "module example.com/billing\n")
	writeFile(t, filepath.Join(root, "services", "ledger", "go.mod"), "module example.com/ledger\n")

	dec := decompose(t, root)
	if len(dec.Routes) != 2 {
		t.Fatalf("routes=%+v", dec.Routes)
	}
	for _, route := range dec.Routes {
		if route.PathPattern == "/*" {
			t.Fatalf("catch-all synthesized without a frontend: %+v", dec.Routes)
		}
		if route.Priority != 100 {
			t.Fatalf("api route priority=%d", route.Priority)
		}
	}
}

func TestClassifyResource_CategoryOrder(t *testing.T) {
	// database precedes cache, so a hybrid name lands in database.
	category, _, ok := classifyResource("postgres-cache")
	if !ok || category != CategoryDatabase {
		t.Fatalf("category=%s ok=%v, want database", category, ok)
	}
	category, _, ok = classifyResource("session-cache")
	if !ok || category != CategoryCache {
		t.Fatalf("category=%s, want cache", category)
	}
	if _, _, ok := classifyResource("checkout"); ok {
		t.Fatalf("app service misclassified as infrastructure")
	}
}

func TestNormalizeID(t *testing.T) {
	cases := map[string]string{
		"API_Server": "api-server",
		"Web App":    "web-app",
		"-cache.":    "cache",
		"":           "service",
	}
	for in, want := range cases {
		if got := normalizeID(in); got != want {
			t.Fatalf("normalizeID(%q)=%q, want %q", in, got, want)
		}
	}
}
