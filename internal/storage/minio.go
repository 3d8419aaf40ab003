package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options holds the connection settings shared by every endpoint candidate.
type Options struct {
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// MinioClient implements ObjectClient using a MinIO (or any S3-compatible)
// backend. To switch providers, change the endpoint and credentials; no code
// changes are needed since the API surface is S3.
type MinioClient struct {
	client *minio.Client
	creds  Options
}

// NewMinioFactory returns a ClientFactory that binds a MinIO client to the
// requested endpoint host using the shared credentials.
func NewMinioFactory(opts Options) ClientFactory {
	return func(endpoint string) (ObjectClient, error) {
		client, err := minio.New(endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
			Secure: opts.UseSSL,
			Region: opts.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("create minio client for %q: %w", endpoint, err)
		}
		return &MinioClient{client: client, creds: opts}, nil
	}
}

// Stat checks existence of bucket/key. Missing keys map to ErrObjectNotFound;
// credential and bucket-configuration failures map to ErrMisconfigured so the
// caller can skip retrying them.
func (c *MinioClient) Stat(ctx context.Context, bucket, key string) error {
	_, err := c.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return classify(err, fmt.Sprintf("stat object %q", key))
	}
	return nil
}

// Put streams reader to the store under key. The ACL header requests
// public-read access; whether it takes effect depends on the provider's
// bucket policy, which is why callers verify readability afterwards.
func (c *MinioClient) Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error {
	_, err := c.client.PutObject(ctx, bucket, key, reader, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"x-amz-acl": "public-read"},
	})
	if err != nil {
		return classify(err, fmt.Sprintf("put object %q", key))
	}
	return nil
}

// PresignedGet mints a signed GET URL for bucket/key valid for expiry.
func (c *MinioClient) PresignedGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	u, err := c.client.PresignedGetObject(ctx, bucket, key, expiry, url.Values{})
	if err != nil {
		return "", classify(err, fmt.Sprintf("presign object %q", key))
	}
	return u.String(), nil
}

// EndpointURL returns the base URL of the bound endpoint.
func (c *MinioClient) EndpointURL() *url.URL {
	return c.client.EndpointURL()
}

// EnsureBucket creates the bucket if absent and applies an anonymous-read
// policy. Called once at startup, never on the upload path.
func (c *MinioClient) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := c.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := c.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.creds.Region}); err != nil {
			return fmt.Errorf("create bucket %q: %w", bucket, err)
		}
		log.Printf("storage: created bucket %q", bucket)
	}

	if err := c.client.SetBucketPolicy(ctx, bucket, publicReadPolicy(bucket)); err != nil {
		return fmt.Errorf("set bucket policy: %w", err)
	}
	return nil
}

// classify maps S3 error codes onto the package sentinels. Anything the
// service answered with is still an answer. Transport-level failures pass
// through untouched so the probe can tell "down" from "said no".
func classify(err error, op string) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey":
		return fmt.Errorf("%s: %w", op, ErrObjectNotFound)
	case "NoSuchBucket", "InvalidAccessKeyId", "SignatureDoesNotMatch", "InvalidBucketName":
		return fmt.Errorf("%s: %s: %w", op, resp.Code, ErrMisconfigured)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// publicReadPolicy returns an S3 bucket policy JSON that allows anonymous GET
// on all objects.
func publicReadPolicy(bucket string) string {
	policy := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect":    "Allow",
				"Principal": "*",
				"Action":    "s3:GetObject",
				"Resource":  fmt.Sprintf("arn:aws:s3:::%s/*", bucket),
			},
		},
	}
	b, _ := json.Marshal(policy)
	return string(b)
}
