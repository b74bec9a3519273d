package credentials

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	vault "github.com/hashicorp/vault/api"
)

const (
	vaultAuthToken   = "token"
	vaultAuthAppRole = "approle"
	vaultAuthAWSIAM  = "aws"
)

type vaultAuth struct {
	method   string
	mount    string
	token    string
	roleID   string
	secretID string

	awsRole     string
	awsRegion   string
	awsHeaderID string
	awsProfile  string
}

// vaultProvider reads KV v1/v2 secrets. Login happens lazily on first
// resolve and is attempted once per provider lifetime.
type vaultProvider struct {
	client    *vault.Client
	mount     string
	kvVersion int
	key       string

	auth     vaultAuth
	authOnce sync.Once
	authErr  error
}

func newVaultProvider(cfg ProviderConfig) (*vaultProvider, error) {
	address := strings.TrimSpace(cfg.Address)
	if address == "" {
		return nil, fmt.Errorf("vault address is required")
	}
	auth, err := vaultAuthFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	apiCfg := vault.DefaultConfig()
	apiCfg.Address = address
	client, err := vault.NewClient(apiCfg)
	if err != nil {
		return nil, err
	}
	if ns := strings.TrimSpace(cfg.Namespace); ns != "" {
		client.SetNamespace(ns)
	}
	if auth.method == vaultAuthToken {
		client.SetToken(auth.token)
	}

	mount := strings.Trim(strings.TrimSpace(cfg.Mount), "/")
	if mount == "" {
		mount = "secret"
	}
	kvVersion := cfg.KVVersion
	if kvVersion == 0 {
		kvVersion = 2
	}
	if kvVersion != 1 && kvVersion != 2 {
		return nil, fmt.Errorf("vault kvVersion must be 1 or 2")
	}
	return &vaultProvider{
		client:    client,
		mount:     mount,
		kvVersion: kvVersion,
		key:       strings.TrimSpace(cfg.Key),
		auth:      auth,
	}, nil
}

// vaultAuthFromConfig normalizes the auth method, inferring it from the
// populated fields when authMethod is not set.
func vaultAuthFromConfig(cfg ProviderConfig) (vaultAuth, error) {
	auth := vaultAuth{
		token:       strings.TrimSpace(cfg.Token),
		roleID:      strings.TrimSpace(cfg.RoleID),
		secretID:    strings.TrimSpace(cfg.SecretID),
		awsRole:     strings.TrimSpace(cfg.AWSRole),
		awsRegion:   strings.TrimSpace(cfg.Region),
		awsHeaderID: strings.TrimSpace(cfg.AWSHeaderValue),
		awsProfile:  strings.TrimSpace(cfg.Profile),
	}

	method := strings.ToLower(strings.TrimSpace(cfg.AuthMethod))
	switch method {
	case "", vaultAuthToken, vaultAuthAppRole:
	case "app-role", "app_role":
		method = vaultAuthAppRole
	case vaultAuthAWSIAM, "aws-iam", "iam":
		method = vaultAuthAWSIAM
	default:
		return vaultAuth{}, fmt.Errorf("unsupported vault auth method %q", cfg.AuthMethod)
	}
	if method == "" {
		switch {
		case auth.token != "":
			method = vaultAuthToken
		case auth.roleID != "" || auth.secretID != "":
			method = vaultAuthAppRole
		case auth.awsRole != "":
			method = vaultAuthAWSIAM
		default:
			method = vaultAuthToken
		}
	}
	auth.method = method

	auth.mount = strings.Trim(strings.TrimSpace(cfg.AuthMount), "/")
	if auth.mount == "" {
		switch method {
		case vaultAuthAppRole:
			auth.mount = "approle"
		case vaultAuthAWSIAM:
			auth.mount = "aws"
		}
	}

	switch method {
	case vaultAuthToken:
		if auth.token == "" {
			return vaultAuth{}, fmt.Errorf("vault token is required")
		}
	case vaultAuthAppRole:
		if auth.roleID == "" || auth.secretID == "" {
			return vaultAuth{}, fmt.Errorf("vault approle auth requires roleId and secretId")
		}
	case vaultAuthAWSIAM:
		if auth.awsRole == "" {
			return vaultAuth{}, fmt.Errorf("vault aws auth requires awsRole")
		}
	}
	return auth, nil
}

func (p *vaultProvider) Resolve(ctx context.Context, secretPath string) (string, error) {
	path, key := splitVaultPath(secretPath)
	if path == "" {
		return "", fmt.Errorf("vault secret path is required")
	}
	if err := p.ensureAuth(ctx); err != nil {
		return "", err
	}
	data, err := p.read(ctx, path)
	if err != nil {
		return "", err
	}
	if key == "" {
		key = p.key
	}
	return pickSecretValue(data, key)
}

func (p *vaultProvider) read(ctx context.Context, path string) (map[string]any, error) {
	switch p.kvVersion {
	case 1:
		secret, err := p.client.Logical().ReadWithContext(ctx, p.mount+"/"+path)
		if err != nil {
			return nil, err
		}
		if secret == nil || secret.Data == nil {
			return nil, fmt.Errorf("vault secret %q not found", path)
		}
		return secret.Data, nil
	default:
		secret, err := p.client.KVv2(p.mount).Get(ctx, path)
		if err != nil {
			return nil, err
		}
		if secret == nil || secret.Data == nil {
			return nil, fmt.Errorf("vault secret %q not found", path)
		}
		return secret.Data, nil
	}
}

func (p *vaultProvider) ensureAuth(ctx context.Context) error {
	if p.auth.method == vaultAuthToken {
		return nil
	}
	p.authOnce.Do(func() {
		p.authErr = p.login(ctx)
	})
	return p.authErr
}

func (p *vaultProvider) login(ctx context.Context) error {
	var data map[string]any
	switch p.auth.method {
	case vaultAuthAppRole:
		data = map[string]any{
			"role_id":   p.auth.roleID,
			"secret_id": p.auth.secretID,
		}
	case vaultAuthAWSIAM:
		payload, err := awsLoginPayload(ctx, p.auth)
		if err != nil {
			return err
		}
		data = payload
	default:
		return nil
	}
	secret, err := p.client.Logical().WriteWithContext(ctx, "auth/"+p.auth.mount+"/login", data)
	if err != nil {
		return err
	}
	if secret == nil || secret.Auth == nil || strings.TrimSpace(secret.Auth.ClientToken) == "" {
		return fmt.Errorf("vault %s auth did not return a client token", p.auth.method)
	}
	p.client.SetToken(secret.Auth.ClientToken)
	return nil
}

// awsLoginPayload builds the signed STS GetCallerIdentity request that
// vault's aws auth method verifies.
func awsLoginPayload(ctx context.Context, auth vaultAuth) (map[string]any, error) {
	region := auth.awsRegion
	if region == "" {
		region = strings.TrimSpace(os.Getenv("AWS_REGION"))
	}
	if region == "" {
		return nil, fmt.Errorf("aws region is required for vault aws auth (set region or AWS_REGION)")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if auth.awsProfile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(auth.awsProfile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("retrieve aws credentials: %w", err)
	}

	body := "Action=GetCallerIdentity&Version=2011-06-15"
	req, err := http.NewRequest(http.MethodPost, "https://sts.amazonaws.com/", strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	req.Header.Set("Host", "sts.amazonaws.com")
	if auth.awsHeaderID != "" {
		req.Header.Set("X-Vault-AWS-IAM-Server-ID", auth.awsHeaderID)
	}
	payloadHash := sha256.Sum256([]byte(body))
	if err := v4.NewSigner().SignHTTP(ctx, creds, req, hex.EncodeToString(payloadHash[:]), "sts", region, time.Now()); err != nil {
		return nil, fmt.Errorf("sign sts request: %w", err)
	}

	headers := map[string][]string{}
	for key, values := range req.Header {
		headers[key] = values
	}
	if req.Host != "" {
		headers["Host"] = []string{req.Host}
	}
	headerJSON, err := json.Marshal(headers)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"role":                    auth.awsRole,
		"iam_http_request_method": req.Method,
		"iam_request_url":         base64.StdEncoding.EncodeToString([]byte(req.URL.String())),
		"iam_request_body":        base64.StdEncoding.EncodeToString([]byte(body)),
		"iam_request_headers":     base64.StdEncoding.EncodeToString(headerJSON),
	}, nil
}

func splitVaultPath(raw string) (path, key string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}
	path, key, _ = strings.Cut(raw, "#")
	return strings.Trim(strings.TrimSpace(path), "/"), strings.TrimSpace(key)
}

// pickSecretValue selects one string out of a secret document: the named
// key, the conventional "value" key, or the only entry.
func pickSecretValue(data map[string]any, key string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("secret data is empty")
	}
	for _, candidate := range []string{key, "value"} {
		if candidate == "" {
			continue
		}
		if val, ok := data[candidate]; ok {
			return coerceString(val)
		}
	}
	if len(data) == 1 {
		for _, val := range data {
			return coerceString(val)
		}
	}
	if key == "" {
		return "", fmt.Errorf("secret value is ambiguous; add #<key> to the reference")
	}
	return "", fmt.Errorf("secret key %q not found", key)
}

func coerceString(val any) (string, error) {
	switch typed := val.(type) {
	case string:
		return typed, nil
	case []byte:
		return string(typed), nil
	default:
		return "", fmt.Errorf("secret value must be a string")
	}
}
