package export

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockS3Client struct {
	lastInput *s3.PutObjectInput
	lastBody  []byte
	err       error
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.lastInput = input
	m.lastBody, _ = io.ReadAll(input.Body)
	return &s3.PutObjectOutput{}, m.err
}

func TestS3Target_Write(t *testing.T) {
	mock := &mockS3Client{}
	target, err := NewS3Target(context.Background(), "my-bucket", "/exports/", WithS3Client(mock))
	require.NoError(t, err)
	assert.Equal(t, "s3://my-bucket", target.Name())

	require.NoError(t, target.Write(context.Background(), "run-1", "orders_mart", []byte(`{"a":1}`)))

	require.NotNil(t, mock.lastInput)
	assert.Equal(t, "my-bucket", *mock.lastInput.Bucket)
	assert.Equal(t, "exports/run-1/orders_mart.json", *mock.lastInput.Key)
	assert.Equal(t, "application/json", *mock.lastInput.ContentType)
	assert.JSONEq(t, `{"a":1}`, string(mock.lastBody))
}

func TestS3Target_NoPrefix(t *testing.T) {
	mock := &mockS3Client{}
	target, err := NewS3Target(context.Background(), "bucket", "", WithS3Client(mock))
	require.NoError(t, err)

	require.NoError(t, target.Write(context.Background(), "run-1", "t", nil))
	assert.Equal(t, "run-1/t.json", *mock.lastInput.Key)
}

func TestS3Target_MissingBucket(t *testing.T) {
	_, err := NewS3Target(context.Background(), "", "prefix")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "bucket name required")
}

func TestS3Target_PutError(t *testing.T) {
	mock := &mockS3Client{err: errors.New("access denied")}
	target, err := NewS3Target(context.Background(), "bucket", "p", WithS3Client(mock))
	require.NoError(t, err)

	err = target.Write(context.Background(), "run-1", "t", nil)
	assert.ErrorContains(t, err, "access denied")
}
