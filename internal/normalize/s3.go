package normalize

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig  = config.LoadDefaultConfig
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// S3Config configures object link presigning.
type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PathStyle bool
	Expiry    time.Duration
}

// S3Rewriter turns s3://bucket/key references into presigned GET URLs, which
// honor range requests.
type S3Rewriter struct {
	presign *s3.PresignClient
	expiry  time.Duration
}

// NewS3Rewriter loads AWS configuration. Static credentials are used when an
// access key is configured, the default provider chain otherwise.
func NewS3Rewriter(ctx context.Context, cfg S3Config) (*S3Rewriter, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}

		o.UsePathStyle = cfg.PathStyle
	})

	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = time.Hour
	}

	return &S3Rewriter{presign: s3.NewPresignClient(client), expiry: expiry}, nil
}

func (r *S3Rewriter) Rewrite(ctx context.Context, u *url.URL) (string, bool, error) {
	if !strings.EqualFold(u.Scheme, "s3") {
		return "", false, nil
	}

	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")

	if bucket == "" || key == "" {
		return "", false, fmt.Errorf("s3 url must name a bucket and a key")
	}

	req, err := presignGetObject(r.presign, ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(r.expiry))
	if err != nil {
		return "", false, fmt.Errorf("failed to presign s3://%s/%s: %w", bucket, key, err)
	}

	return req.URL, true, nil
}
