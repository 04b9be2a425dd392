package assets

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// maxManifestSize bounds how much of a remote manifest object is read.
const maxManifestSize = 8 << 20

// ObjectGetter is the subset of *s3.Client used to fetch a manifest.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// LoadS3 fetches a manifest.json that the asset pipeline uploaded next to
// the fingerprinted files in bucket.
//
// Example usage:
//
//	client := s3.NewFromConfig(cfg)
//	manifest, err := assets.LoadS3(ctx, client, "my-assets", "release/manifest.json")
func LoadS3(ctx context.Context, client ObjectGetter, bucket, key string) (*Manifest, error) {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("assets: get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxManifestSize+1))
	if err != nil {
		return nil, fmt.Errorf("assets: read s3://%s/%s: %w", bucket, key, err)
	}
	if len(data) > maxManifestSize {
		return nil, fmt.Errorf("assets: s3://%s/%s exceeds %d bytes", bucket, key, maxManifestSize)
	}
	return Parse(data)
}
