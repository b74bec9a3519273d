package credentials

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestParseRef(t *testing.T) {
	cases := []struct {
		name            string
		value           string
		defaultProvider string
		wantProvider    string
		wantPath        string
		wantErr         bool
	}{
		{
			name:         "explicit provider",
			value:        "secret://vault/app/db",
			wantProvider: "vault",
			wantPath:     "app/db",
		},
		{
			name:            "default provider",
			value:           "secret:///app/db",
			defaultProvider: "local",
			wantProvider:    "local",
			wantPath:        "app/db",
		},
		{
			name:            "default provider without slash",
			value:           "secret://password",
			defaultProvider: "local",
			wantProvider:    "local",
			wantPath:        "password",
		},
		{
			name:    "missing provider",
			value:   "secret://password",
			wantErr: true,
		},
		{
			name:    "missing path",
			value:   "secret://vault/",
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ref, ok, err := ParseRef(tc.value, tc.defaultProvider)
			if !ok {
				t.Fatalf("expected reference to be detected")
			}
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ref.Provider != tc.wantProvider {
				t.Fatalf("provider=%q, want %q", ref.Provider, tc.wantProvider)
			}
			if ref.Path != tc.wantPath {
				t.Fatalf("path=%q, want %q", ref.Path, tc.wantPath)
			}
		})
	}
}

func TestParseRef_PlainValue(t *testing.T) {
	_, ok, err := ParseRef("postgres://db:5432/app", "local")
	if ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func writeSecretsFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "secrets.yaml")
	payload := "db:\n  password: s3cr3t\napi:\n  token: t0k3n\n"
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write secrets file: %v", err)
	}
	return path
}

func TestResolveMap_FileProvider(t *testing.T) {
	secretsPath := writeSecretsFile(t, t.TempDir())

	resolver, err := NewResolver(Config{
		DefaultProvider: "local",
		Providers: map[string]ProviderConfig{
			"local": {Type: "file", Path: secretsPath},
		},
	}, ResolverOptions{})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	creds, err := resolver.ResolveMap(context.Background(), map[string]string{
		"DATABASE_PASSWORD": "secret://local/db/password",
		"API_TOKEN":         "secret:///api/token",
		"REGION":            "eu-west-1",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if creds["DATABASE_PASSWORD"] != "s3cr3t" {
		t.Fatalf("password=%q", creds["DATABASE_PASSWORD"])
	}
	if creds["API_TOKEN"] != "t0k3n" {
		t.Fatalf("token=%q", creds["API_TOKEN"])
	}
	if creds["REGION"] != "eu-west-1" {
		t.Fatalf("plain value changed: %q", creds["REGION"])
	}

	report := resolver.Audit()
	if len(report.Entries) != 2 {
		t.Fatalf("audit=%+v", report.Entries)
	}
}

func TestResolveMap_MaskMode(t *testing.T) {
	secretsPath := writeSecretsFile(t, t.TempDir())

	resolver, err := NewResolver(Config{
		Providers: map[string]ProviderConfig{
			"local": {Type: "file", Path: secretsPath},
		},
	}, ResolverOptions{Mode: ResolveModeMask})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	creds, err := resolver.ResolveMap(context.Background(), map[string]string{
		"DATABASE_PASSWORD": "secret://local/db/password",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if creds["DATABASE_PASSWORD"] == "s3cr3t" {
		t.Fatalf("expected masked value, got real secret")
	}
	report := resolver.Audit()
	if report.Empty() || !report.Entries[0].Masked {
		t.Fatalf("audit=%+v", report.Entries)
	}
}

func TestResolveMap_UnknownProvider(t *testing.T) {
	resolver, err := NewResolver(Config{}, ResolverOptions{})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	_, err = resolver.ResolveMap(context.Background(), map[string]string{
		"TOKEN": "secret://vault/app/token",
	})
	if err == nil {
		t.Fatalf("expected error for unconfigured provider")
	}
}

func TestAWSProviderFromEnvChain(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIAEXAMPLE")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "example-secret")
	t.Setenv("AWS_SESSION_TOKEN", "")
	t.Setenv("AWS_REGION", "eu-central-1")

	resolver, err := NewResolver(Config{
		Providers: map[string]ProviderConfig{
			"aws": {Type: "aws"},
		},
	}, ResolverOptions{})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	creds, err := resolver.ResolveMap(context.Background(), map[string]string{
		"AWS_ACCESS_KEY_ID": "secret://aws/access_key_id",
		"AWS_REGION":        "secret://aws/region",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if creds["AWS_ACCESS_KEY_ID"] != "AKIAEXAMPLE" {
		t.Fatalf("access key=%q", creds["AWS_ACCESS_KEY_ID"])
	}
	if creds["AWS_REGION"] != "eu-central-1" {
		t.Fatalf("region=%q", creds["AWS_REGION"])
	}

	if _, err := resolver.ResolveMap(context.Background(), map[string]string{
		"X": "secret://aws/unknown_field",
	}); err == nil {
		t.Fatalf("expected error for unknown aws credential path")
	}
}

func TestLoadAndResolve(t *testing.T) {
	dir := t.TempDir()
	writeSecretsFile(t, dir)

	credsPath := filepath.Join(dir, "creds.yaml")
	doc := `defaultProvider: local
providers:
  local:
    type: file
    path: secrets.yaml
credentials:
  DATABASE_PASSWORD: secret:///db/password
  DEPLOY_ENV: production
`
	if err := os.WriteFile(credsPath, []byte(doc), 0o600); err != nil {
		t.Fatalf("write creds file: %v", err)
	}

	creds, report, err := LoadAndResolve(context.Background(), credsPath)
	if err != nil {
		t.Fatalf("load and resolve: %v", err)
	}
	if creds["DATABASE_PASSWORD"] != "s3cr3t" || creds["DEPLOY_ENV"] != "production" {
		t.Fatalf("creds=%v", creds)
	}
	if report.Empty() {
		t.Fatalf("expected audit entries")
	}
}
