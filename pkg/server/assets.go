package server

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vango-dev/bigpipe/internal/config"
	"github.com/vango-dev/bigpipe/internal/errors"
	"github.com/vango-dev/bigpipe/pkg/assets"
)

// LoadResolver builds the asset resolver described by cfg: a manifest
// read from disk, a manifest fetched from S3, or plain prefixing when
// neither is configured. A manifest file wins over a bucket.
func LoadResolver(ctx context.Context, cfg config.AssetsConfig) (assets.Resolver, error) {
	switch {
	case cfg.Manifest != "":
		m, err := assets.Load(cfg.Manifest)
		if err != nil {
			return nil, errors.New("E150").WithDetail(cfg.Manifest).Wrap(err)
		}
		return assets.NewResolver(m, cfg.Prefix), nil

	case cfg.Bucket != "":
		m, err := assets.LoadS3(ctx, newS3Client(cfg.Region), cfg.Bucket, cfg.Key)
		if err != nil {
			return nil, errors.New("E150").WithDetail("s3://" + cfg.Bucket + "/" + cfg.Key).Wrap(err)
		}
		return assets.NewResolver(m, cfg.Prefix), nil

	default:
		return assets.NewPassthroughResolver(cfg.Prefix), nil
	}
}

// newS3Client reads static credentials from the standard AWS environment
// variables and falls back to anonymous access for public buckets.
func newS3Client(region string) *s3.Client {
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	var creds aws.CredentialsProvider = aws.AnonymousCredentials{}
	if key := os.Getenv("AWS_ACCESS_KEY_ID"); key != "" {
		creds = aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     key,
				SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
				SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
				Source:          "environment",
			}, nil
		}))
	}

	return s3.New(s3.Options{
		Region:      region,
		Credentials: creds,
	})
}
