package aliases

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bstardust/photo-gps-resolver/internal/storage/storagetest"
	"github.com/bstardust/photo-gps-resolver/pkg/common"
	"github.com/bstardust/photo-gps-resolver/pkg/models"
)

const table = `{
	"NIKON CORPORATION NIKON D750": "Nikon D750",
	"Canon EOS 80D": "Canon EOS 80D",
	"  ": "ignored",
	"SONY ILCE-7M3": ""
}`

type MockOpener struct {
	mock.Mock
}

func (m *MockOpener) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, bucket, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func TestParse(t *testing.T) {
	aliases, err := Parse(strings.NewReader(table))
	require.NoError(t, err)

	assert.Equal(t, []models.DeviceAlias{
		{RawTag: "Canon EOS 80D", CanonicalTag: "Canon EOS 80D"},
		{RawTag: "NIKON CORPORATION NIKON D750", CanonicalTag: "Nikon D750"},
	}, aliases)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse(strings.NewReader(`["not", "an", "object"]`))
	assert.Error(t, err)
}

func TestImport_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.json")
	require.NoError(t, os.WriteFile(path, []byte(table), 0o644))

	srv := storagetest.NewServer(nil)
	n, err := NewImporter(srv.Connector(3), nil).Import(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	calls := srv.Calls()
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.True(t, c.Committed)
		assert.Contains(t, c.SQL, "ON CONFLICT (raw_tag)")
	}
	assert.Equal(t, []any{"NIKON CORPORATION NIKON D750", "Nikon D750"}, calls[1].Args)
}

func TestImport_S3(t *testing.T) {
	ctx := context.Background()
	opener := new(MockOpener)
	opener.On("Open", ctx, "bot-data", "aliases/devices.json").
		Return(io.NopCloser(strings.NewReader(`{"SONY ILCE-7M3": "Sony A7 III"}`)), nil)

	srv := storagetest.NewServer(nil)
	n, err := NewImporter(srv.Connector(3), opener).Import(ctx, "s3://bot-data/aliases/devices.json")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	opener.AssertExpectations(t)
}

func TestImport_S3Failures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    error
		message string
	}{
		{
			name:    "missing object",
			err:     fmt.Errorf("failed to get object: %w", minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}),
			want:    ErrSourceNotFound,
			message: "NoSuchKey",
		},
		{
			name:    "bad credentials",
			err:     fmt.Errorf("failed to get object: %w", minio.ErrorResponse{Code: "InvalidAccessKeyId", Message: "The Access Key Id you provided does not exist."}),
			want:    ErrSourceDenied,
			message: "InvalidAccessKeyId",
		},
		{
			name:    "network",
			err:     errors.New("dial tcp: connection refused"),
			message: "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			opener := new(MockOpener)
			opener.On("Open", ctx, "bot-data", "devices.json").Return(nil, tt.err)

			srv := storagetest.NewServer(nil)
			_, err := NewImporter(srv.Connector(1), opener).Import(ctx, "s3://bot-data/devices.json")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			} else {
				assert.NotErrorIs(t, err, ErrSourceNotFound)
				assert.NotErrorIs(t, err, ErrSourceDenied)
			}
			assert.Empty(t, srv.Calls())
		})
	}
}

func TestImport_S3NotConfigured(t *testing.T) {
	_, err := NewImporter(storagetest.NewServer(nil).Connector(1), nil).
		Import(context.Background(), "s3://bot-data/devices.json")
	assert.Error(t, err)
}

func TestImport_StorageFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.json")
	require.NoError(t, os.WriteFile(path, []byte(table), 0o644))

	srv := storagetest.NewServer(func(string, []any) ([][]any, int64, error) {
		return nil, 0, &pgconn.PgError{Code: "42P01", Message: `relation "device_aliases" does not exist`}
	})
	n, err := NewImporter(srv.Connector(3), nil).Import(context.Background(), path)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, common.ErrStorage)
}

func TestImport_MissingFile(t *testing.T) {
	_, err := NewImporter(storagetest.NewServer(nil).Connector(1), nil).
		Import(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
