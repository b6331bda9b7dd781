// Package geocode resolves coordinates into addresses with a
// Nominatim-compatible reverse geocoding service.
package geocode

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/bstardust/photo-gps-resolver/internal/logger"
	"github.com/bstardust/photo-gps-resolver/internal/metrics"
	"github.com/bstardust/photo-gps-resolver/pkg/common"
	"github.com/bstardust/photo-gps-resolver/pkg/models"
)

// DefaultBaseURL is the public OpenStreetMap Nominatim instance
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// Config for the reverse geocoder
type Config struct {
	BaseURL   string
	UserAgent string
	Email     string

	// RatePerSecond limits outgoing requests; zero disables the limit
	RatePerSecond float64

	// Timeout per HTTP request; zero means none
	Timeout time.Duration

	// BreakerFailures consecutive failures open the circuit for BreakerTimeout
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Result holds the address and country in every supported language
type Result struct {
	Address map[models.Lang]string
	Country map[models.Lang]string
}

// Geocoder turns a coordinate pair into a Result
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64, preferred models.Lang) (*Result, error)
}

type place struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		Country string `json:"country"`
	} `json:"address"`
	Error string `json:"error"`
}

// Nominatim is safe for concurrent use
type Nominatim struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[place]
}

// New creates a Nominatim client
func New(cfg Config) *Nominatim {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.UserAgent == "" {
		cfg.UserAgent = "photo-gps-resolver"
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = time.Minute
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	breaker := gobreaker.NewCircuitBreaker[place](gobreaker.Settings{
		Name:    "geocoder",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker %s changed from %s to %s", name, from, to)
		},
	})

	return &Nominatim{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		breaker: breaker,
	}
}

// Reverse looks the point up once per supported language, preferred first.
// Any failed lookup fails the whole call with ErrGeocodeUnavailable.
func (n *Nominatim) Reverse(ctx context.Context, lat, lon float64, preferred models.Lang) (*Result, error) {
	logger.Debug("Getting address from coordinates %f, %f...", lat, lon)

	res := &Result{
		Address: make(map[models.Lang]string, len(models.SupportedLangs)),
		Country: make(map[models.Lang]string, len(models.SupportedLangs)),
	}

	for _, lang := range ordered(preferred) {
		p, err := n.lookup(ctx, lat, lon, lang)
		if err != nil {
			metrics.GeocodeRequests.WithLabelValues(string(lang), "error").Inc()
			logger.Error("Getting address in %s has failed: %v", lang, err)
			return nil, fmt.Errorf("%w: %v", common.ErrGeocodeUnavailable, err)
		}
		metrics.GeocodeRequests.WithLabelValues(string(lang), "ok").Inc()

		res.Address[lang] = p.DisplayName
		res.Country[lang] = p.Address.Country
	}

	return res, nil
}

func (n *Nominatim) lookup(ctx context.Context, lat, lon float64, lang models.Lang) (place, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return place{}, err
	}

	return n.breaker.Execute(func() (place, error) {
		start := time.Now()
		defer func() { metrics.GeocodeDuration.Observe(time.Since(start).Seconds()) }()

		return n.fetch(ctx, lat, lon, lang)
	})
}

func (n *Nominatim) fetch(ctx context.Context, lat, lon float64, lang models.Lang) (place, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("accept-language", lang.Short())
	q.Set("addressdetails", "1")
	if n.cfg.Email != "" {
		q.Set("email", n.cfg.Email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.cfg.BaseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return place{}, err
	}
	req.Header.Set("User-Agent", n.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return place{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return place{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var p place
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return place{}, fmt.Errorf("decode response: %w", err)
	}
	if p.Error != "" {
		return place{}, fmt.Errorf("service error: %s", p.Error)
	}
	if p.Address.Country == "" {
		return place{}, fmt.Errorf("no country at %f, %f", lat, lon)
	}

	return p, nil
}

func ordered(preferred models.Lang) []models.Lang {
	langs := []models.Lang{preferred}
	for _, l := range models.SupportedLangs {
		if l != preferred {
			langs = append(langs, l)
		}
	}
	return langs
}
