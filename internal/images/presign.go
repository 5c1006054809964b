// Package images hands out time-limited readable URLs for auction image
// keys stored in an S3-compatible bucket.
package images

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const urlTTL = 15 * time.Minute

// URLSigner issues presigned GET URLs for stored image keys.
type URLSigner struct {
	bucket  string
	presign *s3.PresignClient
}

// NewURLSigner builds a signer for the given bucket. endpoint may be empty
// for AWS proper, or point at a MinIO-style S3 clone.
func NewURLSigner(ctx context.Context, region, endpoint, accessKey, secretKey, bucket string) (*URLSigner, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &URLSigner{bucket: bucket, presign: s3.NewPresignClient(client)}, nil
}

// ImageURL returns a readable URL for a stored key, valid for 15 minutes.
func (s *URLSigner) ImageURL(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(urlTTL))
	if err != nil {
		return "", fmt.Errorf("presign image %s: %w", key, err)
	}
	return req.URL, nil
}
