package credentials

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// awsProvider exposes static credential material from the ambient AWS
// config chain (env, shared config, IMDS) as secret paths:
//
//	secret://aws/access_key_id
//	secret://aws/secret_access_key
//	secret://aws/session_token
//	secret://aws/region
//
// The chain is consulted once per provider lifetime.
type awsProvider struct {
	region  string
	profile string

	once  sync.Once
	cfg   aws.Config
	creds aws.Credentials
	err   error
}

func newAWSProvider(cfg ProviderConfig) *awsProvider {
	return &awsProvider{
		region:  strings.TrimSpace(cfg.Region),
		profile: strings.TrimSpace(cfg.Profile),
	}
}

func (p *awsProvider) load(ctx context.Context) error {
	p.once.Do(func() {
		var opts []func(*awsconfig.LoadOptions) error
		if p.region != "" {
			opts = append(opts, awsconfig.WithRegion(p.region))
		}
		if p.profile != "" {
			opts = append(opts, awsconfig.WithSharedConfigProfile(p.profile))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			p.err = fmt.Errorf("load aws config: %w", err)
			return
		}
		p.cfg = cfg
		creds, err := cfg.Credentials.Retrieve(ctx)
		if err != nil {
			p.err = fmt.Errorf("retrieve aws credentials: %w", err)
			return
		}
		p.creds = creds
	})
	return p.err
}

func (p *awsProvider) Resolve(ctx context.Context, secretPath string) (string, error) {
	if err := p.load(ctx); err != nil {
		return "", err
	}
	switch strings.ToLower(strings.Trim(strings.TrimSpace(secretPath), "/")) {
	case "access_key_id":
		return p.creds.AccessKeyID, nil
	case "secret_access_key":
		return p.creds.SecretAccessKey, nil
	case "session_token":
		return p.creds.SessionToken, nil
	case "region":
		return p.cfg.Region, nil
	default:
		return "", fmt.Errorf("aws provider has no credential %q", secretPath)
	}
}
