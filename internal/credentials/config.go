package credentials

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config declares the secret providers a credentials file may reference.
type Config struct {
	DefaultProvider string                    `yaml:"defaultProvider,omitempty"`
	Providers       map[string]ProviderConfig `yaml:"providers,omitempty"`
}

// ProviderConfig captures provider-specific settings. Which fields apply
// depends on Type: "file" uses Path; "vault" uses Address through
// AWSHeaderValue; "aws" uses Region and Profile.
type ProviderConfig struct {
	Type string `yaml:"type,omitempty"`

	// file
	Path string `yaml:"path,omitempty"`

	// vault
	Address        string `yaml:"address,omitempty"`
	Token          string `yaml:"token,omitempty"`
	Namespace      string `yaml:"namespace,omitempty"`
	Mount          string `yaml:"mount,omitempty"`
	KVVersion      int    `yaml:"kvVersion,omitempty"`
	Key            string `yaml:"key,omitempty"`
	AuthMethod     string `yaml:"authMethod,omitempty"`
	AuthMount      string `yaml:"authMount,omitempty"`
	RoleID         string `yaml:"roleId,omitempty"`
	SecretID       string `yaml:"secretId,omitempty"`
	AWSRole        string `yaml:"awsRole,omitempty"`
	AWSHeaderValue string `yaml:"awsHeaderValue,omitempty"`

	// aws (also used for vault aws-iam login)
	Region  string `yaml:"region,omitempty"`
	Profile string `yaml:"profile,omitempty"`
}

// File is the on-disk credentials document: provider declarations plus the
// flat credential map handed to the pipeline after resolution.
type File struct {
	DefaultProvider string                    `yaml:"defaultProvider,omitempty"`
	Providers       map[string]ProviderConfig `yaml:"providers,omitempty"`
	Credentials     map[string]string         `yaml:"credentials,omitempty"`
}

// Load reads a credentials file.
func Load(path string) (File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return File{}, fmt.Errorf("credentials file path is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return File{}, fmt.Errorf("parse credentials file %s: %w", path, err)
	}
	return f, nil
}

// Config extracts the provider declarations from a loaded file.
func (f File) Config() Config {
	return Config{DefaultProvider: f.DefaultProvider, Providers: f.Providers}
}
