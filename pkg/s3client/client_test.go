package s3client

import (
	"errors"
	"fmt"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Endpoint: "localhost:9000"})
	assert.Error(t, err, "credentials are required")

	c, err := New(Config{Endpoint: "https://localhost:9000", AccessKey: "key", SecretKey: "secret"})
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		raw         string
		bucket, key string
		ok          bool
	}{
		{"s3://aliases/devices.json", "aliases", "devices.json", true},
		{"s3://aliases/2024/devices.json", "aliases", "2024/devices.json", true},
		{"s3://aliases", "", "", false},
		{"s3://aliases/", "", "", false},
		{"/tmp/devices.json", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			bucket, key, ok := ParseURL(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestGetObjectKey(t *testing.T) {
	c := &Client{config: Config{Prefix: "bot/"}}
	assert.Equal(t, "bot/devices.json", c.getObjectKey("/devices.json"))

	c = &Client{}
	assert.Equal(t, "devices.json", c.getObjectKey("devices.json"))
}

func TestErrorClassification(t *testing.T) {
	notFound := minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}
	denied := minio.ErrorResponse{Code: "AccessDenied", Message: "Access Denied."}

	assert.True(t, IsNotFoundError(fmt.Errorf("failed to get object: %w", notFound)))
	assert.False(t, IsNotFoundError(denied))
	assert.True(t, IsAuthError(denied))
	assert.False(t, IsAuthError(errors.New("timeout")))
	assert.Equal(t, "S3 error: Access Denied. (code: AccessDenied)", FormatError(denied))
	assert.Empty(t, FormatError(nil))
}
