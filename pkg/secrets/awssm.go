package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// AWSProvider reads secrets from AWS Secrets Manager.
type AWSProvider struct {
	client *secretsmanager.Client
}

// NewAWSProvider creates a Secrets Manager provider using the default AWS
// credential chain. region may be empty to use the ambient region.
func NewAWSProvider(ctx context.Context, region string) (*AWSProvider, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &AWSProvider{client: secretsmanager.NewFromConfig(cfg)}, nil
}

func (p *AWSProvider) Name() string { return "awssm" }

func (p *AWSProvider) Get(ctx context.Context, key string) (string, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &key,
	})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("reading secret %q: %w", key, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %q has no string value", key)
	}
	return *out.SecretString, nil
}

func (p *AWSProvider) GetBatch(ctx context.Context, keys []string) (map[string]string, error) {
	results := make(map[string]string, len(keys))
	for _, key := range keys {
		value, err := p.Get(ctx, key)
		if err != nil {
			if errors.Is(err, ErrSecretNotFound) {
				continue
			}
			return nil, err
		}
		results[key] = value
	}
	return results, nil
}

func (p *AWSProvider) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := secretsmanager.NewListSecretsPaginator(p.client, &secretsmanager.ListSecretsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing secrets: %w", err)
		}
		for _, entry := range page.SecretList {
			if entry.Name != nil && strings.HasPrefix(*entry.Name, prefix) {
				keys = append(keys, *entry.Name)
			}
		}
	}
	return keys, nil
}

func (p *AWSProvider) Set(ctx context.Context, key, value string) error {
	_, err := p.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     &key,
		SecretString: &value,
	})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			_, err = p.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
				Name:         &key,
				SecretString: &value,
			})
		}
	}
	if err != nil {
		return fmt.Errorf("writing secret %q: %w", key, err)
	}
	return nil
}

func (p *AWSProvider) Delete(ctx context.Context, key string) error {
	_, err := p.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId: &key,
	})
	if err != nil {
		return fmt.Errorf("deleting secret %q: %w", key, err)
	}
	return nil
}
