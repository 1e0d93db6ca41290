package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used by S3Target.
type S3API interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Target writes exported tables as objects under {prefix}/{runID}/.
type S3Target struct {
	client     S3API
	bucketName string
	prefix     string
}

// S3Option configures an S3Target.
type S3Option func(*S3Target)

// WithS3Client sets a custom S3 client (useful for testing).
func WithS3Client(c S3API) S3Option {
	return func(s *S3Target) { s.client = c }
}

// NewS3Target creates an S3 export target. Without WithS3Client the default
// AWS credential chain is used.
func NewS3Target(ctx context.Context, bucketName, prefix string, opts ...S3Option) (*S3Target, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("S3 bucket name required")
	}
	s := &S3Target{
		bucketName: bucketName,
		prefix:     strings.Trim(prefix, "/"),
	}
	for _, o := range opts {
		o(s)
	}
	if s.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		s.client = s3.NewFromConfig(cfg)
	}
	return s, nil
}

// Name returns the target identifier.
func (s *S3Target) Name() string { return "s3://" + s.bucketName }

// Write puts one table document. Key format: {prefix}/{runID}/{table}.json
func (s *S3Target) Write(ctx context.Context, runID, table string, data []byte) error {
	key := path.Join(s.prefix, runID, table+".json")
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting %s to S3: %w", key, err)
	}
	return nil
}
