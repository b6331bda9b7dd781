// internal/exif/exif.go
package exif

import (
	"fmt"
	"io"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/bstardust/photo-gps-resolver/internal/coords"
	"github.com/bstardust/photo-gps-resolver/internal/logger"
)

// Tag names read by the metadata extractor
const (
	DateTimeOriginal = string(exif.DateTimeOriginal)
	Make             = string(exif.Make)
	Model            = string(exif.Model)
	LensMake         = string(exif.LensMake)
	LensModel        = string(exif.LensModel)
	GPSLatitudeRef   = string(exif.GPSLatitudeRef)
	GPSLatitude      = string(exif.GPSLatitude)
	GPSLongitudeRef  = string(exif.GPSLongitudeRef)
	GPSLongitude     = string(exif.GPSLongitude)
)

// Tag is a decoded tag value. Text is set for ASCII tags and holds the
// printable form of every other tag; Rats is set for numeric tags.
type Tag struct {
	Text string
	Rats []coords.Rational
}

// Record maps tag names to their raw values for a single photo
type Record map[string]Tag

// Text returns the trimmed text of a tag if it is present and not blank
func (r Record) Text(name string) (string, bool) {
	tag, ok := r[name]
	if !ok {
		return "", false
	}
	text := strings.TrimSpace(tag.Text)
	return text, text != ""
}

// Angle returns a GPS angle tag as degrees/minutes/seconds
func (r Record) Angle(name string) (coords.Angle, bool, error) {
	tag, ok := r[name]
	if !ok {
		return nil, false, nil
	}
	if len(tag.Rats) > 0 {
		return coords.Angle(tag.Rats), true, nil
	}
	angle, err := coords.ParseAngle(tag.Text)
	return angle, true, err
}

type walker struct {
	rec Record
}

func (w walker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	w.rec[string(name)] = convertTag(tag)
	return nil
}

// Decode reads every tag of the photo in r. A photo without an EXIF segment
// yields an empty record rather than an error.
func Decode(r io.Reader) (Record, error) {
	rec := Record{}

	x, err := exif.Decode(r)
	if err != nil {
		if x == nil || exif.IsCriticalError(err) {
			logger.Debug("No readable EXIF in photo: %v", err)
			return rec, nil
		}
		logger.Debug("Partially readable EXIF: %v", err)
	}

	if err := x.Walk(walker{rec: rec}); err != nil {
		return nil, fmt.Errorf("failed to walk EXIF tags: %w", err)
	}

	return rec, nil
}

func convertTag(tag *tiff.Tag) Tag {
	out := Tag{Text: tag.String()}

	switch tag.Format() {
	case tiff.StringVal:
		if s, err := tag.StringVal(); err == nil {
			out.Text = strings.TrimRight(s, "\x00 ")
		}
	case tiff.RatVal:
		for i := 0; i < int(tag.Count); i++ {
			num, den, err := tag.Rat2(i)
			if err != nil {
				break
			}
			out.Rats = append(out.Rats, coords.Rational{Num: num, Den: den})
		}
	case tiff.IntVal:
		for i := 0; i < int(tag.Count); i++ {
			v, err := tag.Int64(i)
			if err != nil {
				break
			}
			out.Rats = append(out.Rats, coords.Whole(v))
		}
	}

	return out
}
