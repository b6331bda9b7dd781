package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bstardust/photo-gps-resolver/internal/coords"
	"github.com/bstardust/photo-gps-resolver/internal/exif"
	"github.com/bstardust/photo-gps-resolver/internal/geocode"
	"github.com/bstardust/photo-gps-resolver/internal/logger"
	"github.com/bstardust/photo-gps-resolver/internal/metrics"
	"github.com/bstardust/photo-gps-resolver/pkg/common"
	"github.com/bstardust/photo-gps-resolver/pkg/models"
)

const (
	exifTimeLayout = "2006:01:02 15:04:05"
	isoTimeLayout  = "2006-01-02T15:04:05"
)

// RawMetadata holds the fields of interest as they appear in the photo
type RawMetadata struct {
	DateTime    string
	CameraMake  string
	CameraModel string
	LensMake    string
	LensModel   string

	LatitudeRef  string
	Latitude     coords.Angle
	LongitudeRef string
	Longitude    coords.Angle

	// GPSPresent is set when any of the four GPS tags exists
	GPSPresent bool
	gpsErr     error
}

// Read pulls the fields of interest out of rec
func Read(rec exif.Record) (*RawMetadata, error) {
	if len(rec) == 0 {
		return nil, common.ErrNoExifData
	}

	raw := &RawMetadata{}
	raw.DateTime, _ = rec.Text(exif.DateTimeOriginal)
	raw.CameraMake, _ = rec.Text(exif.Make)
	raw.CameraModel, _ = rec.Text(exif.Model)
	raw.LensMake, _ = rec.Text(exif.LensMake)
	raw.LensModel, _ = rec.Text(exif.LensModel)

	latRef, latRefOK := rec.Text(exif.GPSLatitudeRef)
	lonRef, lonRefOK := rec.Text(exif.GPSLongitudeRef)
	lat, latOK, latErr := rec.Angle(exif.GPSLatitude)
	lon, lonOK, lonErr := rec.Angle(exif.GPSLongitude)

	raw.GPSPresent = latRefOK || lonRefOK || latOK || lonOK

	switch {
	case !raw.GPSPresent:
	case !(latRefOK && lonRefOK && latOK && lonOK):
		raw.gpsErr = common.NewCoordinateError("incomplete GPS tags: lat=%t latRef=%t lon=%t lonRef=%t",
			latOK, latRefOK, lonOK, lonRefOK)
	case latErr != nil:
		raw.gpsErr = latErr
	case lonErr != nil:
		raw.gpsErr = lonErr
	default:
		raw.LatitudeRef, raw.Latitude = latRef, lat
		raw.LongitudeRef, raw.Longitude = lonRef, lon
	}

	if raw.DateTime == "" && raw.CameraMake == "" && raw.CameraModel == "" &&
		raw.LensMake == "" && raw.LensModel == "" && !raw.GPSPresent {
		return nil, common.ErrNoInterestingData
	}

	return raw, nil
}

// Location converts the GPS tags to signed decimal degrees
func (r *RawMetadata) Location() (lat, lon float64, err error) {
	if r.gpsErr != nil {
		return 0, 0, r.gpsErr
	}
	if lat, err = coords.ToDecimal(r.Latitude, r.LatitudeRef); err != nil {
		return 0, 0, fmt.Errorf("latitude: %w", err)
	}
	if lon, err = coords.ToDecimal(r.Longitude, r.LongitudeRef); err != nil {
		return 0, 0, fmt.Errorf("longitude: %w", err)
	}
	return lat, lon, nil
}

// Camera returns brand and model merged without repeated words
func (r *RawMetadata) Camera() string {
	return Dedupe(r.CameraMake + " " + r.CameraModel)
}

// Lens returns lens brand and model merged without repeated words
func (r *RawMetadata) Lens() string {
	return Dedupe(r.LensMake + " " + r.LensModel)
}

// Timestamp returns the capture time in ISO form, or the raw string when it
// does not follow the EXIF layout
func (r *RawMetadata) Timestamp() string {
	if t, err := time.Parse(exifTimeLayout, r.DateTime); err == nil {
		return t.Format(isoTimeLayout)
	}
	return r.DateTime
}

// Dedupe drops repeated whitespace-separated tokens, keeping the first
// occurrence of each. Tokens are compared case-sensitively.
func Dedupe(s string) string {
	tokens := strings.Fields(s)
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]

	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	return strings.Join(out, " ")
}

// Canonicalizer replaces raw device strings with canonical names
type Canonicalizer interface {
	Canonicalize(ctx context.Context, tags ...string) []string
}

// Extractor turns a photo's tags into ResolvedMetadata
type Extractor struct {
	canon    Canonicalizer
	geocoder geocode.Geocoder
}

// NewExtractor creates an extractor. Either collaborator may be nil, in which
// case that enrichment is skipped.
func NewExtractor(canon Canonicalizer, geocoder geocode.Geocoder) *Extractor {
	return &Extractor{
		canon:    canon,
		geocoder: geocoder,
	}
}

// ExtractFromReader decodes the photo in r and extracts its metadata
func (e *Extractor) ExtractFromReader(ctx context.Context, r io.Reader, chatID int64, lang models.Lang) (*models.ResolvedMetadata, error) {
	rec, err := exif.Decode(r)
	if err != nil {
		metrics.PhotosProcessed.WithLabelValues(metrics.OutcomeDecodeFailed).Inc()
		return nil, err
	}
	return e.Extract(ctx, rec, chatID, lang)
}

// Extract builds the metadata of one photo for the user chatID. Unreadable
// coordinates, failed alias lookups and failed geocoding degrade the result
// instead of failing it.
func (e *Extractor) Extract(ctx context.Context, rec exif.Record, chatID int64, lang models.Lang) (*models.ResolvedMetadata, error) {
	raw, err := Read(rec)
	if err != nil {
		if errors.Is(err, common.ErrNoExifData) {
			metrics.PhotosProcessed.WithLabelValues(metrics.OutcomeNoExif).Inc()
		} else {
			metrics.PhotosProcessed.WithLabelValues(metrics.OutcomeNoData).Inc()
		}
		logger.Info("Chat %d: %v", chatID, err)
		return nil, err
	}

	meta := &models.ResolvedMetadata{
		ChatID:   chatID,
		DateTime: raw.Timestamp(),
	}

	if raw.GPSPresent {
		lat, lon, err := raw.Location()
		if err != nil {
			logger.Warn("Chat %d: can't convert GPS tags %s %s / %s %s: %v",
				chatID, raw.Latitude, raw.LatitudeRef, raw.Longitude, raw.LongitudeRef, err)
			meta.LocationUnreadable = true
		} else {
			meta.Latitude, meta.Longitude, meta.HasLocation = lat, lon, true
		}
	}

	camera, lens := raw.Camera(), raw.Lens()
	if e.canon != nil {
		tags := e.canon.Canonicalize(ctx, camera, lens)
		camera, lens = tags[0], tags[1]
	}
	meta.Camera, meta.Lens = camera, lens

	if meta.HasLocation && e.geocoder != nil {
		res, err := e.geocoder.Reverse(ctx, meta.Latitude, meta.Longitude, lang)
		if err != nil {
			logger.Warn("Chat %d: address lookup skipped: %v", chatID, err)
		} else {
			meta.Address = res.Address
			meta.Country = res.Country
		}
	}

	if meta.HasLocation {
		metrics.PhotosProcessed.WithLabelValues(metrics.OutcomeResolved).Inc()
	} else {
		metrics.PhotosProcessed.WithLabelValues(metrics.OutcomeNoLocation).Inc()
	}

	logger.Debug("Chat %d: camera=%q lens=%q location=%t", chatID, meta.Camera, meta.Lens, meta.HasLocation)
	return meta, nil
}
