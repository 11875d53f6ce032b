package exports

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// ArchiveDelivery uploads per-date archives to S3-compatible object storage
// and generates signed download URLs.
type ArchiveDelivery struct {
	client       *s3.Client
	bucket       string
	signedURLTTL time.Duration
	logger       *zap.Logger
}

// NewArchiveDelivery creates an object storage delivery adapter. A non-empty
// endpoint overrides the AWS default, which also forces path-style
// addressing for S3-compatible providers.
func NewArchiveDelivery(endpoint, accessKey, secretKey, bucket, region string, signedURLTTL time.Duration, logger *zap.Logger) (*ArchiveDelivery, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	if endpoint != "" {
		cfg.BaseEndpoint = aws.String(endpoint)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.UsePathStyle = true
		}
	})

	return &ArchiveDelivery{
		client:       client,
		bucket:       bucket,
		signedURLTTL: signedURLTTL,
		logger:       logger,
	}, nil
}

// UploadArchive uploads one archive file and returns its object key.
func (d *ArchiveDelivery) UploadArchive(ctx context.Context, archivePath string) (string, error) {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return "", fmt.Errorf("read archive: %w", err)
	}

	hash := sha256.Sum256(data)
	checksum := hex.EncodeToString(hash[:])
	key := fmt.Sprintf("%s/%s", DefaultDataType, filepath.Base(archivePath))

	_, err = d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("application/zip"),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata: map[string]string{
			"checksum": checksum,
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload archive to object storage: %w", err)
	}

	d.logger.Info("uploaded archive to object storage",
		zap.String("key", key),
		zap.String("checksum", checksum),
		zap.Int("size_bytes", len(data)),
	)

	return key, nil
}

// GenerateSignedURL generates a presigned GET URL for a delivered archive.
func (d *ArchiveDelivery) GenerateSignedURL(ctx context.Context, key string) (string, error) {
	presigner := s3.NewPresignClient(d.client)

	getRequest, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = d.signedURLTTL
	})
	if err != nil {
		return "", fmt.Errorf("presign get request: %w", err)
	}

	return getRequest.URL, nil
}
