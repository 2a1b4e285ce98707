package normalize

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testS3Config() S3Config {
	return S3Config{
		Region:    "us-east-1",
		Endpoint:  "http://localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		PathStyle: true,
		Expiry:    15 * time.Minute,
	}
}

func TestS3Rewriter_Presigns(t *testing.T) {
	r, err := NewS3Rewriter(context.Background(), testS3Config())
	require.NoError(t, err)

	got := New(r).Normalize(context.Background(), "s3://logs/2024/app.log")

	assert.True(t, strings.HasPrefix(got, "http://localhost:9000/logs/2024/app.log?"), got)
	assert.Contains(t, got, "X-Amz-Signature=")
	assert.Contains(t, got, "X-Amz-Expires=900")
}

func TestS3Rewriter_IgnoresOtherSchemes(t *testing.T) {
	r, err := NewS3Rewriter(context.Background(), testS3Config())
	require.NoError(t, err)

	in := "https://example.com/app.log"
	assert.Equal(t, in, New(r).Normalize(context.Background(), in))
}

func TestS3Rewriter_MissingKeyKeepsOriginal(t *testing.T) {
	r, err := NewS3Rewriter(context.Background(), testS3Config())
	require.NoError(t, err)

	assert.Equal(t, "s3://logs", New(r).Normalize(context.Background(), "s3://logs"))
}

func TestS3Rewriter_PresignError(t *testing.T) {
	orig := presignGetObject
	t.Cleanup(func() { presignGetObject = orig })

	presignGetObject = func(*s3.PresignClient, context.Context, *s3.GetObjectInput, ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("signing failed")
	}

	r, err := NewS3Rewriter(context.Background(), testS3Config())
	require.NoError(t, err)

	assert.Equal(t, "s3://logs/app.log", New(r).Normalize(context.Background(), "s3://logs/app.log"))
}

func TestNewS3Rewriter_ConfigError(t *testing.T) {
	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })

	loadDefaultAWSConfig = func(context.Context, ...func(*config.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	}

	_, err := NewS3Rewriter(context.Background(), testS3Config())
	assert.ErrorContains(t, err, "failed to load aws config")
}
