package mapbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/couchcryptid/weather-snapshot-cache/internal/domain"
	"github.com/couchcryptid/weather-snapshot-cache/internal/observability"
)

const defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// ErrCircuitOpen is returned without contacting Mapbox while the breaker is open.
var ErrCircuitOpen = errors.New("mapbox circuit breaker open")

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	circuit    *gobreaker.CircuitBreaker
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client. Consecutive API failures open
// a circuit breaker so that an outage does not add a timeout to every message.
func NewClient(token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
		circuit:    newCircuit(logger),
		metrics:    metrics,
		logger:     logger,
	}
}

func newCircuit(logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mapbox",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// ForwardGeocode converts a place name to coordinates, restricted to country
// when one is given.
func (c *Client) ForwardGeocode(ctx context.Context, name, country string) (domain.GeocodingResult, error) {
	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(name))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {"place,locality"},
	}
	if country != "" {
		params.Set("country", strings.ToLower(country))
	}
	return c.doRequest(ctx, u+"?"+params.Encode(), methodForward)
}

// ReverseGeocode converts coordinates to place details.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	// Mapbox uses lon,lat order.
	coord := fmt.Sprintf("%.6f,%.6f", lon, lat)
	u := fmt.Sprintf("%s/%s.json", c.baseURL, coord)
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {"place,locality,region,country"},
	}
	return c.doRequest(ctx, u+"?"+params.Encode(), methodReverse)
}

func (c *Client) doRequest(ctx context.Context, fullURL, method string) (domain.GeocodingResult, error) {
	start := time.Now()
	out, err := c.circuit.Execute(func() (interface{}, error) {
		return c.fetch(ctx, fullURL, method)
	})
	c.metrics.GeocodeAPIDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.metrics.GeocodeRequests.WithLabelValues(method, "circuit_open").Inc()
		return domain.GeocodingResult{}, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		return domain.GeocodingResult{}, err
	}

	result, _ := out.(domain.GeocodingResult)
	outcome := "success"
	if result.Empty() {
		outcome = "empty"
	}
	c.metrics.GeocodeRequests.WithLabelValues(method, outcome).Inc()
	return result, nil
}

func (c *Client) fetch(ctx context.Context, fullURL, method string) (domain.GeocodingResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("%s geocode request: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.GeocodingResult{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %w", err)
	}
	if len(mapboxResp.Features) == 0 {
		return domain.GeocodingResult{}, nil
	}
	return mapboxResp.Features[0].toResult(), nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID         string         `json:"id"` // "place.123", "region.456", ...
	Center     []float64      `json:"center"`
	PlaceName  string         `json:"place_name"`
	Text       string         `json:"text"`
	Relevance  float64        `json:"relevance"`
	Properties properties     `json:"properties"`
	Context    []contextEntry `json:"context"`
}

type properties struct {
	ShortCode string `json:"short_code"`
}

type contextEntry struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	ShortCode string `json:"short_code"`
}

func (f feature) toResult() domain.GeocodingResult {
	result := domain.GeocodingResult{
		PlaceName:  f.PlaceName,
		Confidence: f.Relevance,
	}
	if len(f.Center) == 2 {
		result.Lon = f.Center[0]
		result.Lat = f.Center[1]
	}

	// The feature itself is the most specific level; its context lists the
	// enclosing ones.
	levels := append([]contextEntry{{ID: f.ID, Text: f.Text, ShortCode: f.Properties.ShortCode}}, f.Context...)
	for _, l := range levels {
		switch kind(l.ID) {
		case "place", "locality":
			if result.City == "" {
				result.City = l.Text
			}
		case "region":
			if result.State == "" {
				result.State = regionCode(l)
			}
		case "country":
			if result.Country == "" {
				result.Country = strings.ToUpper(l.ShortCode)
			}
		}
	}
	return result
}

func kind(id string) string {
	k, _, _ := strings.Cut(id, ".")
	return k
}

// regionCode prefers the subdivision part of an ISO 3166-2 code ("US-NJ" -> "NJ").
func regionCode(l contextEntry) string {
	if _, sub, ok := strings.Cut(l.ShortCode, "-"); ok && sub != "" {
		return strings.ToUpper(sub)
	}
	return l.Text
}
