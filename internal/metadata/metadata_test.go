package metadata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bstardust/photo-gps-resolver/internal/coords"
	"github.com/bstardust/photo-gps-resolver/internal/exif"
	"github.com/bstardust/photo-gps-resolver/internal/geocode"
	"github.com/bstardust/photo-gps-resolver/pkg/common"
	"github.com/bstardust/photo-gps-resolver/pkg/models"
)

// Mock canonicalizer
type MockCanonicalizer struct {
	mock.Mock
}

func (m *MockCanonicalizer) Canonicalize(ctx context.Context, tags ...string) []string {
	args := m.Called(ctx, tags)
	return args.Get(0).([]string)
}

// Mock geocoder
type MockGeocoder struct {
	mock.Mock
}

func (m *MockGeocoder) Reverse(ctx context.Context, lat, lon float64, preferred models.Lang) (*geocode.Result, error) {
	args := m.Called(ctx, lat, lon, preferred)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geocode.Result), args.Error(1)
}

// identity keeps every tag as is
type identity struct{}

func (identity) Canonicalize(_ context.Context, tags ...string) []string {
	return tags
}

func passThrough() Canonicalizer {
	return identity{}
}

func rats(vals ...int64) []coords.Rational {
	out := make([]coords.Rational, 0, len(vals)/2)
	for i := 0; i+1 < len(vals); i += 2 {
		out = append(out, coords.Rational{Num: vals[i], Den: vals[i+1]})
	}
	return out
}

func gpsRecord(latRef, lonRef string) exif.Record {
	return exif.Record{
		exif.GPSLatitudeRef:  {Text: latRef},
		exif.GPSLatitude:     {Rats: rats(45, 1, 30, 1, 0, 1)},
		exif.GPSLongitudeRef: {Text: lonRef},
		exif.GPSLongitude:    {Rats: rats(45, 1, 30, 1, 0, 1)},
	}
}

func TestExtract_Hemispheres(t *testing.T) {
	tests := []struct {
		latRef, lonRef string
		lat, lon       float64
	}{
		{"N", "E", 45.5, 45.5},
		{"S", "E", -45.5, 45.5},
		{"N", "W", 45.5, -45.5},
		{"S", "W", -45.5, -45.5},
	}

	for _, tt := range tests {
		t.Run(tt.latRef+tt.lonRef, func(t *testing.T) {
			geo := new(MockGeocoder)
			geo.On("Reverse", mock.Anything, tt.lat, tt.lon, models.LangEnglish).Return(&geocode.Result{
				Address: map[models.Lang]string{models.LangEnglish: "Somewhere"},
				Country: map[models.Lang]string{models.LangEnglish: "Land", models.LangRussian: "Страна"},
			}, nil)

			e := NewExtractor(passThrough(), geo)
			meta, err := e.Extract(context.Background(), gpsRecord(tt.latRef, tt.lonRef), 42, models.LangEnglish)
			require.NoError(t, err)

			assert.True(t, meta.HasLocation)
			assert.InDelta(t, tt.lat, meta.Latitude, 1e-9)
			assert.InDelta(t, tt.lon, meta.Longitude, 1e-9)
			assert.Equal(t, "Land", meta.CountryIn(models.LangEnglish))
			assert.Equal(t, "Страна", meta.CountryIn(models.LangRussian))
			assert.Equal(t, int64(42), meta.ChatID)
			geo.AssertExpectations(t)
		})
	}
}

func TestExtract_CameraOnly(t *testing.T) {
	canon := new(MockCanonicalizer)
	canon.On("Canonicalize", mock.Anything, []string{"NIKON CORPORATION", ""}).Return([]string{"Nikon", ""})
	geo := new(MockGeocoder)

	e := NewExtractor(canon, geo)
	meta, err := e.Extract(context.Background(), exif.Record{exif.Make: {Text: "NIKON CORPORATION"}}, 7, models.LangRussian)
	require.NoError(t, err)

	assert.Equal(t, "Nikon", meta.Camera)
	assert.Empty(t, meta.Lens)
	assert.False(t, meta.HasLocation)
	assert.False(t, meta.LocationUnreadable)
	assert.Zero(t, meta.Latitude)
	geo.AssertNotCalled(t, "Reverse", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	canon.AssertExpectations(t)
}

func TestExtract_EmptyRecord(t *testing.T) {
	e := NewExtractor(passThrough(), nil)

	meta, err := e.Extract(context.Background(), exif.Record{}, 1, models.LangEnglish)
	assert.Nil(t, meta)
	assert.ErrorIs(t, err, common.ErrNoExifData)
}

func TestExtract_NothingInteresting(t *testing.T) {
	e := NewExtractor(passThrough(), nil)

	meta, err := e.Extract(context.Background(), exif.Record{"Orientation": {Text: "1"}}, 1, models.LangEnglish)
	assert.Nil(t, meta)
	assert.ErrorIs(t, err, common.ErrNoInterestingData)
}

func TestExtract_UnreadableLocationDegrades(t *testing.T) {
	tests := []struct {
		name string
		rec  exif.Record
	}{
		{"zero denominator", exif.Record{
			exif.Model:           {Text: "EOS 80D"},
			exif.GPSLatitudeRef:  {Text: "N"},
			exif.GPSLatitude:     {Rats: rats(45, 0, 30, 1, 0, 1)},
			exif.GPSLongitudeRef: {Text: "E"},
			exif.GPSLongitude:    {Rats: rats(45, 1, 30, 1, 0, 1)},
		}},
		{"two components", exif.Record{
			exif.Model:           {Text: "EOS 80D"},
			exif.GPSLatitudeRef:  {Text: "N"},
			exif.GPSLatitude:     {Text: "45/1, 30/1"},
			exif.GPSLongitudeRef: {Text: "E"},
			exif.GPSLongitude:    {Rats: rats(45, 1, 30, 1, 0, 1)},
		}},
		{"missing reference", exif.Record{
			exif.Model:        {Text: "EOS 80D"},
			exif.GPSLatitude:  {Rats: rats(45, 1, 30, 1, 0, 1)},
			exif.GPSLongitude: {Rats: rats(45, 1, 30, 1, 0, 1)},
		}},
		{"unknown reference", exif.Record{
			exif.Model:           {Text: "EOS 80D"},
			exif.GPSLatitudeRef:  {Text: "X"},
			exif.GPSLatitude:     {Rats: rats(45, 1, 30, 1, 0, 1)},
			exif.GPSLongitudeRef: {Text: "E"},
			exif.GPSLongitude:    {Rats: rats(45, 1, 30, 1, 0, 1)},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			geo := new(MockGeocoder)
			e := NewExtractor(passThrough(), geo)

			meta, err := e.Extract(context.Background(), tt.rec, 1, models.LangEnglish)
			require.NoError(t, err)

			assert.False(t, meta.HasLocation)
			assert.True(t, meta.LocationUnreadable)
			assert.Equal(t, "EOS 80D", meta.Camera)
			geo.AssertNotCalled(t, "Reverse", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestExtract_GeocodeFailureDegrades(t *testing.T) {
	geo := new(MockGeocoder)
	geo.On("Reverse", mock.Anything, 45.5, 45.5, models.LangEnglish).
		Return(nil, fmt.Errorf("%w: timeout", common.ErrGeocodeUnavailable))

	rec := gpsRecord("N", "E")
	rec[exif.Make] = exif.Tag{Text: "Canon"}
	rec[exif.Model] = exif.Tag{Text: "Canon EOS 80D"}

	e := NewExtractor(passThrough(), geo)
	meta, err := e.Extract(context.Background(), rec, 1, models.LangEnglish)
	require.NoError(t, err)

	assert.True(t, meta.HasLocation)
	assert.Equal(t, "Canon EOS 80D", meta.Camera)
	assert.Nil(t, meta.Address)
	assert.Nil(t, meta.Country)
}

func TestExtract_TextualAngle(t *testing.T) {
	rec := exif.Record{
		exif.GPSLatitudeRef:  {Text: "S"},
		exif.GPSLatitude:     {Text: "45/1, 30/1, 0/1"},
		exif.GPSLongitudeRef: {Text: "E"},
		exif.GPSLongitude:    {Text: "[10, 15, 0]"},
	}

	meta, err := NewExtractor(nil, nil).Extract(context.Background(), rec, 1, models.LangEnglish)
	require.NoError(t, err)

	assert.True(t, meta.HasLocation)
	assert.InDelta(t, -45.5, meta.Latitude, 1e-9)
	assert.InDelta(t, 10.25, meta.Longitude, 1e-9)
}

func TestExtract_LensAndTimestamp(t *testing.T) {
	rec := exif.Record{
		exif.DateTimeOriginal: {Text: "2019:05:01 12:30:00"},
		exif.LensMake:         {Text: "Sigma"},
		exif.LensModel:        {Text: "Sigma 35mm F1.4 DG HSM"},
	}

	meta, err := NewExtractor(nil, nil).Extract(context.Background(), rec, 1, models.LangEnglish)
	require.NoError(t, err)

	assert.Equal(t, "2019-05-01T12:30:00", meta.DateTime)
	assert.Equal(t, "Sigma 35mm F1.4 DG HSM", meta.Lens)
	assert.Empty(t, meta.Camera)
}

func TestDedupe(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Canon Canon EOS", "Canon EOS"},
		{"Canon Canon EOS 80D", "Canon EOS 80D"},
		{"Apple iPhone 12 Pro", "Apple iPhone 12 Pro"},
		{"NIKON CORPORATION NIKON D750", "NIKON CORPORATION D750"},
		{"Canon canon", "Canon canon"},
		{"  spaced   out  ", "spaced out"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Dedupe(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Dedupe(got), "dedupe is idempotent")
		})
	}
}

func TestTimestamp_NonStandardKeptRaw(t *testing.T) {
	raw := &RawMetadata{DateTime: "sometime in May"}
	assert.Equal(t, "sometime in May", raw.Timestamp())
}

func TestExtractFromReader_Photo(t *testing.T) {
	f, err := os.Open(filepath.Join("..", "exif", "testdata", "lens-gps.jpg"))
	require.NoError(t, err)
	defer f.Close()

	ctx := context.Background()
	geo := new(MockGeocoder)
	geo.On("Reverse", ctx, mock.Anything, mock.Anything, models.LangEnglish).Return(&geocode.Result{
		Address: map[models.Lang]string{models.LangEnglish: "Stockholm"},
		Country: map[models.Lang]string{models.LangEnglish: "Sweden", models.LangRussian: "Швеция"},
	}, nil)

	meta, err := NewExtractor(passThrough(), geo).ExtractFromReader(ctx, f, 7, models.LangEnglish)
	require.NoError(t, err)

	assert.True(t, meta.HasLocation)
	assert.InDelta(t, 59+19.0/60+57.17/3600, meta.Latitude, 1e-9)
	assert.InDelta(t, 18+3.0/60+53.79/3600, meta.Longitude, 1e-9)
	assert.Equal(t, "Apple iPhone 4S", meta.Camera)
	assert.Equal(t, "Apple iPhone 4S back camera 4.28mm f/2.4", meta.Lens)
	assert.Equal(t, "2014-09-01T15:03:47", meta.DateTime)
	assert.Equal(t, "Sweden", meta.CountryIn(models.LangEnglish))
	geo.AssertExpectations(t)
}
