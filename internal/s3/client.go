// Package s3 is the storage backend cmd/mirror republishes decoded depot
// chunks into: any S3-compatible object store, addressed through a small
// provider registry so an operator can point the mirror at AWS, MinIO, or
// one of the other S3-speaking services without memorizing endpoint and
// addressing-style quirks.
package s3

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kenchrcum/steam-cdn-client/internal/config"
)

// Client is the narrow backend surface the mirror needs: republish a chunk,
// check whether it is already mirrored, read it back, and retire it. There
// are deliberately no bucket-admin or listing operations; the mirror always
// writes into a pre-provisioned bucket.
type Client interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader, metadata map[string]string) error
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, map[string]string, error)
	HeadObject(ctx context.Context, bucket, key string) (map[string]string, error)
	DeleteObject(ctx context.Context, bucket, key string) error
}

type backendClient struct {
	api    *s3.Client
	bucket string
}

// NewClient builds a backend client from cfg, resolving a missing endpoint
// and region through the provider registry and applying the provider's
// addressing style.
func NewClient(cfg *config.BackendConfig) (Client, error) {
	endpoint, region, err := ResolveEndpoint(cfg.Provider, cfg.Endpoint, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("s3: resolving backend endpoint: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3: loading aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Provider != "aws" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = RequiresPathStyleAddressing(cfg.Provider)
	})

	return &backendClient{api: api, bucket: cfg.Bucket}, nil
}

func (c *backendClient) PutObject(ctx context.Context, bucket, key string, body io.Reader, metadata map[string]string) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		Body:     body,
		Metadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("s3: putting %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (c *backendClient) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, map[string]string, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("s3: getting %s/%s: %w", bucket, key, err)
	}
	return out.Body, out.Metadata, nil
}

func (c *backendClient) HeadObject(ctx context.Context, bucket, key string) (map[string]string, error) {
	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3: heading %s/%s: %w", bucket, key, err)
	}
	return out.Metadata, nil
}

func (c *backendClient) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3: deleting %s/%s: %w", bucket, key, err)
	}
	return nil
}
