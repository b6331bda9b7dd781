package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bstardust/photo-gps-resolver/internal/stats"
	"github.com/bstardust/photo-gps-resolver/pkg/common"
	"github.com/bstardust/photo-gps-resolver/pkg/models"
)

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) ExtractFromReader(ctx context.Context, r io.Reader, chatID int64, lang models.Lang) (*models.ResolvedMetadata, error) {
	args := m.Called(ctx, r, chatID, lang)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ResolvedMetadata), args.Error(1)
}

type MockSaver struct {
	mock.Mock
}

func (m *MockSaver) Save(ctx context.Context, meta *models.ResolvedMetadata) error {
	return m.Called(ctx, meta).Error(0)
}

type MockSharer struct {
	mock.Mock
}

func (m *MockSharer) SharedFeatures(ctx context.Context, meta *models.ResolvedMetadata) (stats.Shared, error) {
	args := m.Called(ctx, meta)
	return args.Get(0).(stats.Shared), args.Error(1)
}

func request() Request {
	return Request{ChatID: 3, Lang: models.LangEnglish, Photo: strings.NewReader("jpeg"), Name: "photo.jpg"}
}

func TestProcess(t *testing.T) {
	ctx := context.Background()
	meta := &models.ResolvedMetadata{ChatID: 3, Camera: "Nikon D750"}

	ext := new(MockExtractor)
	ext.On("ExtractFromReader", ctx, mock.Anything, int64(3), models.LangEnglish).Return(meta, nil)
	saver := new(MockSaver)
	saver.On("Save", ctx, meta).Return(nil)
	sharer := new(MockSharer)
	sharer.On("SharedFeatures", ctx, meta).Return(stats.Shared{Camera: 4}, nil)

	res, err := NewProcessor(ext, saver, sharer).Process(ctx, request())
	require.NoError(t, err)

	assert.Same(t, meta, res.Metadata)
	assert.True(t, res.Saved)
	require.NotNil(t, res.Shared)
	assert.Equal(t, int64(4), res.Shared.Camera)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, "photo.jpg", res.Name)

	saver.AssertExpectations(t)
	sharer.AssertExpectations(t)
}

func TestProcess_ExtractionFailure(t *testing.T) {
	ctx := context.Background()
	ext := new(MockExtractor)
	ext.On("ExtractFromReader", ctx, mock.Anything, int64(3), models.LangEnglish).Return(nil, common.ErrNoExifData)
	saver := new(MockSaver)

	res, err := NewProcessor(ext, saver, nil).Process(ctx, request())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, common.ErrNoExifData)
	saver.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestProcess_StorageFailureKeepsMetadata(t *testing.T) {
	ctx := context.Background()
	meta := &models.ResolvedMetadata{ChatID: 3, Camera: "Nikon D750", Latitude: 45.5, Longitude: 45.5, HasLocation: true}
	unavailable := common.NewStorageError("add", true, errors.New("gave up after 3 attempts"))

	ext := new(MockExtractor)
	ext.On("ExtractFromReader", ctx, mock.Anything, int64(3), models.LangEnglish).Return(meta, nil)
	saver := new(MockSaver)
	saver.On("Save", ctx, meta).Return(unavailable)
	sharer := new(MockSharer)

	res, err := NewProcessor(ext, saver, sharer).Process(ctx, request())
	require.NoError(t, err)

	assert.Same(t, meta, res.Metadata)
	assert.True(t, res.Metadata.HasLocation)
	assert.False(t, res.Saved)
	assert.Nil(t, res.Shared)
	assert.Len(t, res.Warnings, 1)
	sharer.AssertNotCalled(t, "SharedFeatures", mock.Anything, mock.Anything)
}

func TestProcess_SharingFailure(t *testing.T) {
	ctx := context.Background()
	meta := &models.ResolvedMetadata{ChatID: 3, Camera: "Nikon D750"}
	unavailable := common.NewStorageError("execute", true, errors.New("gave up after 3 attempts"))

	ext := new(MockExtractor)
	ext.On("ExtractFromReader", ctx, mock.Anything, int64(3), models.LangEnglish).Return(meta, nil)
	saver := new(MockSaver)
	saver.On("Save", ctx, meta).Return(nil)
	sharer := new(MockSharer)
	sharer.On("SharedFeatures", ctx, meta).Return(stats.Shared{}, unavailable)

	res, err := NewProcessor(ext, saver, sharer).Process(ctx, request())
	require.NoError(t, err)
	assert.True(t, res.Saved)
	assert.Nil(t, res.Shared)
	assert.Len(t, res.Warnings, 1)
}

func TestProcess_UnsavedSkipsSharing(t *testing.T) {
	ctx := context.Background()
	meta := &models.ResolvedMetadata{ChatID: 3, Camera: "Nikon D750"}

	ext := new(MockExtractor)
	ext.On("ExtractFromReader", ctx, mock.Anything, int64(3), models.LangEnglish).Return(meta, nil)
	sharer := new(MockSharer)

	res, err := NewProcessor(ext, nil, sharer).Process(ctx, request())
	require.NoError(t, err)
	assert.False(t, res.Saved)
	assert.Nil(t, res.Shared)
	assert.Empty(t, res.Warnings)
	sharer.AssertNotCalled(t, "SharedFeatures", mock.Anything, mock.Anything)
}

func TestProcess_NoCollaborators(t *testing.T) {
	ctx := context.Background()
	meta := &models.ResolvedMetadata{ChatID: 3}
	ext := new(MockExtractor)
	ext.On("ExtractFromReader", ctx, mock.Anything, int64(3), models.LangEnglish).Return(meta, nil)

	res, err := NewProcessor(ext, nil, nil).Process(ctx, request())
	require.NoError(t, err)
	assert.False(t, res.Saved)
	assert.Nil(t, res.Shared)
}
