package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// SSMAPI is the subset of the SSM client used by ParameterStore.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ParameterStore reads SecureString parameters from AWS Systems Manager.
type ParameterStore struct {
	client SSMAPI
	prefix string
}

// NewParameterStore builds a ParameterStore from an AWS config.
func NewParameterStore(cfg aws.Config, prefix string) *ParameterStore {
	return NewParameterStoreWithClient(ssm.NewFromConfig(cfg), prefix)
}

// NewParameterStoreWithClient uses an existing client.
func NewParameterStoreWithClient(client SSMAPI, prefix string) *ParameterStore {
	return &ParameterStore{client: client, prefix: prefix}
}

// LoadAWSConfig resolves credentials through the SDK default chain.
func LoadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// ParameterName joins the prefix and name with exactly one slash between them.
func (ps *ParameterStore) ParameterName(name string) string {
	if ps.prefix == "" {
		return name
	}
	return strings.TrimSuffix(ps.prefix, "/") + "/" + strings.TrimPrefix(name, "/")
}

// GetSecret fetches and decrypts the parameter.
func (ps *ParameterStore) GetSecret(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name cannot be empty")
	}

	result, err := ps.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(ps.ParameterName(name)),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", ErrNotFound
	}

	return aws.ToString(result.Parameter.Value), nil
}
