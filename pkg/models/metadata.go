package models

import "time"

// Lang is a user language tag
type Lang string

const (
	LangEnglish Lang = "en-US"
	LangRussian Lang = "ru-RU"
)

// SupportedLangs lists every language the geocoder is queried in
var SupportedLangs = []Lang{LangEnglish, LangRussian}

// ParseLang returns the matching supported language or English
func ParseLang(s string) Lang {
	for _, l := range SupportedLangs {
		if string(l) == s {
			return l
		}
	}
	return LangEnglish
}

// Short returns the two-letter code used by the geocoding service
func (l Lang) Short() string {
	if len(l) < 2 {
		return "en"
	}
	return string(l[:2])
}

// ResolvedMetadata is the result of processing one photo. Latitude and
// Longitude are only meaningful when HasLocation is true.
type ResolvedMetadata struct {
	ChatID      int64           `json:"chat_id"`
	DateTime    string          `json:"date_time,omitempty"`
	Camera      string          `json:"camera,omitempty"`
	Lens        string          `json:"lens,omitempty"`
	Address     map[Lang]string `json:"address,omitempty"`
	Country     map[Lang]string `json:"country,omitempty"`
	Latitude    float64         `json:"latitude"`
	Longitude   float64         `json:"longitude"`
	HasLocation bool            `json:"has_location"`

	// LocationUnreadable is set when GPS tags existed but could not be decoded
	LocationUnreadable bool `json:"location_unreadable,omitempty"`
}

// CountryIn returns the country name in the given language, if known
func (m *ResolvedMetadata) CountryIn(lang Lang) string {
	if m.Country == nil {
		return ""
	}
	return m.Country[lang]
}

// AddressIn returns the address in the given language, if known
func (m *ResolvedMetadata) AddressIn(lang Lang) string {
	if m.Address == nil {
		return ""
	}
	return m.Address[lang]
}

// QueryRecord is the persisted trace of one processed photo. Coordinates are
// never part of it.
type QueryRecord struct {
	ChatID     int64
	CameraName *string
	LensName   *string
	CountryEn  *string
	CountryRu  *string
	CapturedAt time.Time
}

// NewQueryRecord builds the persisted row for m
func NewQueryRecord(m *ResolvedMetadata, at time.Time) QueryRecord {
	return QueryRecord{
		ChatID:     m.ChatID,
		CameraName: nullable(m.Camera),
		LensName:   nullable(m.Lens),
		CountryEn:  nullable(m.CountryIn(LangEnglish)),
		CountryRu:  nullable(m.CountryIn(LangRussian)),
		CapturedAt: at,
	}
}

// DeviceAlias maps a raw EXIF device string to its canonical name
type DeviceAlias struct {
	RawTag       string `json:"raw_tag"`
	CanonicalTag string `json:"canonical_tag"`
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
