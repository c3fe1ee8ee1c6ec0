package capture

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

// S3Storage implements the Storage interface on an S3 bucket
type S3Storage struct {
	bucket    string
	publicURL string
	uploader  s3manageriface.UploaderAPI
}

// NewS3Storage creates an S3Storage using the default credential chain.
// When publicURL is empty the URL reported by S3 is returned.
func NewS3Storage(bucket, region, publicURL string) (*S3Storage, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	sess, err := awssession.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("setting up aws session: %w", err)
	}

	return NewS3StorageWithUploader(bucket, publicURL, s3manager.NewUploader(sess)), nil
}

// NewS3StorageWithUploader creates an S3Storage with a custom uploader for testing
func NewS3StorageWithUploader(bucket, publicURL string, uploader s3manageriface.UploaderAPI) *S3Storage {
	return &S3Storage{
		bucket:    bucket,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		uploader:  uploader,
	}
}

// Upload puts the object into the bucket
func (s *S3Storage) Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	result, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectPath),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("uploading to s3://%s/%s: %w", s.bucket, objectPath, err)
	}

	if s.publicURL != "" {
		return s.publicURL + "/" + escapePath(objectPath), nil
	}
	return result.Location, nil
}
