package hailctx

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// staticCredentials wraps a cluster row's access_key/secret_key (spec §3:
// AmazonCloud carries its own credentials, not a shared environment
// profile) as an aws.CredentialsProvider.
func staticCredentials(accessKey, secretKey string) aws.CredentialsProviderFunc {
	return func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{AccessKeyID: accessKey, SecretAccessKey: secretKey}, nil
	}
}
